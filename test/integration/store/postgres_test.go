// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

//go:build integration

package store_test

import (
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authview/authview/internal/profile"
)

func newUID() string {
	return ulid.Make().String()
}

var _ = Describe("PostgresStore", func() {
	Describe("records", func() {
		It("reports a missing record as not found", func() {
			_, err := env.store.GetRecord(env.ctx, newUID())
			Expect(err).To(MatchError(profile.ErrNotFound))
			Expect(profile.Classify(err)).To(Equal(profile.KindNotFound))
		})

		It("replaces on set and merges on update", func() {
			uid := newUID()
			Expect(env.store.SetRecord(env.ctx, uid, profile.Fields{"uid": uid, "name": "Ann"})).To(Succeed())

			Expect(env.store.UpdateFields(env.ctx, uid, profile.Fields{"name": "Annie"})).To(Succeed())
			got, err := env.store.GetRecord(env.ctx, uid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(profile.Fields{"uid": uid, "name": "Annie"}))

			Expect(env.store.SetRecord(env.ctx, uid, profile.Fields{"uid": uid})).To(Succeed())
			got, err = env.store.GetRecord(env.ctx, uid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(HaveKey("name"))
		})

		It("refuses to update a missing record", func() {
			err := env.store.UpdateFields(env.ctx, newUID(), profile.Fields{"name": "Boo"})
			Expect(err).To(MatchError(profile.ErrNotFound))
		})

		It("deletes a record once", func() {
			uid := newUID()
			Expect(env.store.SetRecord(env.ctx, uid, profile.Fields{"uid": uid})).To(Succeed())
			Expect(env.store.DeleteRecord(env.ctx, uid)).To(Succeed())
			Expect(env.store.DeleteRecord(env.ctx, uid)).To(MatchError(profile.ErrNotFound))
		})
	})

	Describe("owned content", func() {
		It("lists in id order and deletes only the owner's rows", func() {
			owner, other := newUID(), newUID()
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			items := []profile.Content{
				{ID: "01J0000000000000000000000B", OwnerUID: owner, Kind: "note", Body: "second", CreatedAt: at},
				{ID: "01J0000000000000000000000A", OwnerUID: owner, Kind: "note", Body: "first", CreatedAt: at},
				{ID: newUID(), OwnerUID: other, Kind: "note", Body: "other", CreatedAt: at},
			}
			for _, c := range items {
				Expect(env.store.AddOwnedContent(env.ctx, c)).To(Succeed())
			}

			listed, err := env.store.ListOwnedContent(env.ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(2))
			Expect(listed[0].Body).To(Equal("first"))
			Expect(listed[1].CreatedAt.Equal(at)).To(BeTrue())

			n, err := env.store.DeleteOwnedContent(env.ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			listed, err = env.store.ListOwnedContent(env.ctx, other)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
		})

		It("removes more rows than a single batch", func() {
			owner := newUID()
			for i := 0; i < 250; i++ {
				c := profile.Content{ID: newUID(), OwnerUID: owner, Kind: "note", Body: "x", CreatedAt: time.Now().UTC()}
				Expect(env.store.AddOwnedContent(env.ctx, c)).To(Succeed())
			}

			n, err := env.store.DeleteOwnedContent(env.ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(250))
		})
	})

	Describe("through the profile gateway", func() {
		var gw *profile.Gateway

		BeforeEach(func() {
			var err error
			gw, err = profile.NewGateway(env.store)
			Expect(err).NotTo(HaveOccurred())
		})

		It("creates, renames and cascades deletion", func() {
			uid := newUID()
			Expect(gw.CreateProfile(env.ctx, uid, "Ann")).To(Succeed())
			Expect(gw.UpdateName(env.ctx, uid, "Annie")).To(Succeed())

			rec, err := gw.Get(env.ctx, uid)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Name).To(Equal("Annie"))
			Expect(rec.UID).To(Equal(uid))

			_, err = gw.AddContent(env.ctx, uid, "", "hello")
			Expect(err).NotTo(HaveOccurred())

			Expect(gw.DeleteProfileAndOwnedData(env.ctx, uid)).To(Succeed())

			_, err = gw.Get(env.ctx, uid)
			Expect(profile.KindOf(err)).To(Equal(profile.KindNotFound))
			items, err := gw.ListContent(env.ctx, uid)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("treats an absent record as already deleted", func() {
			Expect(gw.DeleteProfileAndOwnedData(env.ctx, newUID())).To(Succeed())
		})
	})

	It("answers readiness pings", func() {
		Expect(env.store.Ping(env.ctx)).To(Succeed())
	})
})
