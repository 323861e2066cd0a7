// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/reauth"
	"github.com/authview/authview/internal/session"
	"github.com/authview/authview/pkg/errutil"
)

// NewShellCmd creates the interactive shell command. A nil deps uses the
// defaults.
func NewShellCmd(deps *ShellDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive account session",
		Long: `Start a line-oriented session against the configured document store.
Type "help" for the command list. Session changes are printed as they
happen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, deps)
		},
	}
}

func runShell(cmd *cobra.Command, deps *ShellDeps) error {
	d := deps.withDefaults()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	con := &console{w: cmd.OutOrStdout()}
	a, err := newApp(ctx, cfg, d, logger, shellMailer{con: con})
	if err != nil {
		return err
	}
	defer a.close()

	sh := &shell{app: a, con: con}
	if err := sh.attach(); err != nil {
		return err
	}
	return sh.run(ctx, cmd.InOrStdin())
}

// console serializes writes from the command loop and the session watcher.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format, args...) //nolint:errcheck // terminal output
}

// shellMailer shows password-reset codes in the shell instead of sending
// mail.
type shellMailer struct {
	con *console
}

func (m shellMailer) SendPasswordReset(_ context.Context, email, code string) error {
	m.con.printf("reset code for %s: %s\n", email, code)
	return nil
}

type shellCommand struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

type shell struct {
	*app
	con      *console
	commands map[string]shellCommand
}

// attach subscribes to the session and coordinator, then starts the
// observer so the first provider report is printed.
func (s *shell) attach() error {
	s.commands = s.commandTable()

	sub := s.observer.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for st := range sub.C() {
			s.con.printf("session: %s\n", describeState(st))
		}
	}()
	s.closers = append(s.closers, sub.Close)

	unwatch := s.coordinator.Watch(s.onReauth)
	s.closers = append(s.closers, unwatch)

	return s.observer.Start()
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		s.con.printf("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		name, args := fields[0], fields[1:]
		if name == "quit" || name == "exit" {
			break
		}
		cmd, ok := s.commands[name]
		if !ok {
			s.con.printf("unknown command %q; type help\n", name)
			continue
		}
		if err := cmd.run(ctx, args); err != nil {
			errutil.Log(ctx, s.logger, levelFor(err), name+" failed", err)
			s.con.printf("error: %s\n", describe(err))
		}
	}
	s.con.printf("\n")
	if err := scanner.Err(); err != nil {
		return oops.Code("SHELL_INPUT_FAILED").Wrap(err)
	}
	return nil
}

// levelFor logs user mistakes quietly and everything else as a warning.
func levelFor(err error) slog.Level {
	code := errutil.Code(err)
	switch {
	case strings.HasPrefix(code, "SHELL_"), strings.HasPrefix(code, "SCREEN_"), strings.HasPrefix(code, "REAUTH_"):
		return slog.LevelDebug
	case auth.KindOf(err) != auth.KindUnknown && auth.KindOf(err) != auth.KindNetwork:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

func usageErr(usage string) error {
	return oops.Code("SHELL_USAGE").With("usage", usage).Errorf("usage: %s", usage)
}

func (s *shell) commandTable() map[string]shellCommand {
	return map[string]shellCommand{
		"help": {"help", "list commands", s.cmdHelp},
		"status": {"status", "show the session state", func(context.Context, []string) error {
			s.con.printf("%s\n", describeState(s.observer.Current()))
			return nil
		}},
		"signin":    {"signin EMAIL PASSWORD", "sign in with email and password", s.cmdSignIn},
		"signup":    {"signup EMAIL PASSWORD CONFIRM FULL NAME", "create an account", s.cmdSignUp},
		"forgot":    {"forgot EMAIL", "request a password reset code", s.cmdForgot},
		"reset":     {"reset CODE NEW_PASSWORD", "set a new password with a reset code", s.cmdReset},
		"federated": {"federated apple|google SUBJECT EMAIL", "sign in through a federated provider", s.cmdFederated},
		"name":      {"name FULL NAME", "change your display name", s.cmdName},
		"passwd":    {"passwd NEW_PASSWORD CONFIRM", "change your password", s.cmdPasswd},
		"delete":    {"delete", "delete your account and data", s.cmdDelete},
		"choose":    {"choose PROVIDER", "pick a provider to re-authenticate with", s.cmdChoose},
		"credential": {"credential EMAIL PASSWORD | credential SUBJECT",
			"answer the re-authentication challenge", s.cmdCredential},
		"cancel":  {"cancel", "abandon the pending sensitive operation", s.cmdCancel},
		"note":    {"note TEXT", "store a note", s.cmdNote},
		"notes":   {"notes", "list your notes", s.cmdNotes},
		"signout": {"signout", "sign out", s.cmdSignOut},
	}
}

func (s *shell) cmdHelp(context.Context, []string) error {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := s.commands[name]
		s.con.printf("  %-45s %s\n", c.usage, c.help)
	}
	s.con.printf("  %-45s %s\n", "quit", "leave the shell")
	return nil
}

func (s *shell) cmdSignIn(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageErr(s.commands["signin"].usage)
	}
	form := s.signIn.Form()
	form.SetEmail(args[0])
	form.SetPassword(args[1])
	id, err := s.signIn.Submit(ctx)
	if err != nil {
		return err
	}
	s.con.printf("signed in as %s\n", id.Email)
	return nil
}

func (s *shell) cmdSignUp(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return usageErr(s.commands["signup"].usage)
	}
	form := s.signUp.Form()
	form.SetEmail(args[0])
	form.SetPassword(args[1])
	form.SetConfirmPassword(args[2])
	form.SetFullName(strings.Join(args[3:], " "))
	res, err := s.signUp.Submit(ctx)
	if err != nil {
		return err
	}
	if res.Outcome == auth.AccountCreatedProfilePending {
		s.con.printf("account created, but the profile could not be saved; retrying\n")
		if err := s.completeProfile(ctx, res.Identity); err != nil {
			return oops.Code("SHELL_PROFILE_PENDING").
				With("uid", res.Identity.UID).
				Errorf("profile still missing: %v", err)
		}
	}
	s.con.printf("account created for %s\n", res.Identity.Email)
	return nil
}

// completeProfile retries profile creation for a sign-up that left the
// record missing, then refreshes the session so the name shows.
func (s *shell) completeProfile(ctx context.Context, id auth.Identity) error {
	err := retry.Do(ctx, s.deps.ProfileBackoff(), func(ctx context.Context) error {
		res := s.auth.CompleteProfile(ctx, id)
		if res.Outcome == auth.AccountCreatedProfilePending {
			return retry.RetryableError(res.ProfileErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.observer.ReloadProfile(ctx)
}

func (s *shell) cmdForgot(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr(s.commands["forgot"].usage)
	}
	s.forgot.Form().SetEmail(args[0])
	msg, err := s.forgot.Submit(ctx)
	if err != nil {
		return err
	}
	s.con.printf("%s\n", msg)
	return nil
}

func (s *shell) cmdReset(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageErr(s.commands["reset"].usage)
	}
	if res := s.cfg.Password.Check(args[1]); !res.Valid {
		return oops.Code("SHELL_INVALID_PASSWORD").Errorf("%s", res.Message)
	}
	if err := s.provider.ConfirmPasswordReset(ctx, args[0], args[1]); err != nil {
		return err
	}
	s.con.printf("password updated; sign in with the new password\n")
	return nil
}

func (s *shell) cmdFederated(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usageErr(s.commands["federated"].usage)
	}
	provider, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	token, err := s.provider.IssueFederatedToken(provider, args[1], args[2])
	if err != nil {
		return err
	}
	id, err := s.auth.SignInWith(ctx, auth.Credential{Provider: provider, IDToken: token})
	if err != nil {
		return err
	}
	s.con.printf("signed in as %s via %s\n", id.Email, provider)
	return nil
}

func (s *shell) cmdName(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr(s.commands["name"].usage)
	}
	if err := s.profile.UpdateName(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	s.con.printf("name updated\n")
	return nil
}

func (s *shell) cmdPasswd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageErr(s.commands["passwd"].usage)
	}
	deferred, err := s.profile.ChangePassword(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if !deferred {
		s.con.printf("password changed\n")
	}
	return nil
}

func (s *shell) cmdDelete(ctx context.Context, _ []string) error {
	deferred, err := s.profile.DeleteAccount(ctx)
	if err != nil {
		return err
	}
	if !deferred {
		s.reportDeletion()
	}
	return nil
}

func (s *shell) reportDeletion() {
	res, ok := s.profile.LastDeletion()
	if !ok {
		return
	}
	switch res.Outcome {
	case auth.AccountDeletedDataPending:
		s.con.printf("account deleted; stored data could not be removed: %s\n", describe(res.DataErr))
	default:
		s.con.printf("account deleted\n")
	}
}

func (s *shell) cmdChoose(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr(s.commands["choose"].usage)
	}
	provider, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	return s.coordinator.ChooseProvider(provider)
}

func (s *shell) cmdCredential(ctx context.Context, args []string) error {
	snap := s.coordinator.Snapshot()
	if snap.Phase != reauth.PhaseAwaitingCredential {
		return oops.Code("SHELL_NO_CHALLENGE").
			With("phase", snap.Phase.String()).
			Errorf("no credential is being requested")
	}

	var cred auth.Credential
	switch snap.Provider {
	case auth.ProviderPassword:
		if len(args) != 2 {
			return usageErr("credential EMAIL PASSWORD")
		}
		cred = auth.PasswordCredential(args[0], args[1])
	default:
		if len(args) != 1 {
			return usageErr("credential SUBJECT")
		}
		current := s.auth.CurrentUser()
		if current == nil {
			return oops.Code("SHELL_NO_CHALLENGE").Errorf("signed out while re-authenticating")
		}
		token, err := s.provider.IssueFederatedToken(snap.Provider, args[0], current.Email)
		if err != nil {
			return err
		}
		cred = auth.Credential{Provider: snap.Provider, IDToken: token}
	}

	op := snap.Operation
	if err := s.coordinator.Submit(ctx, cred); err != nil {
		return err
	}
	switch op {
	case "delete_account":
		s.reportDeletion()
	case "change_password":
		s.con.printf("password changed\n")
	}
	return nil
}

func (s *shell) cmdCancel(context.Context, []string) error {
	if s.coordinator.Cancel() {
		s.con.printf("cancelled\n")
		return nil
	}
	s.con.printf("nothing to cancel\n")
	return nil
}

func (s *shell) cmdNote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr(s.commands["note"].usage)
	}
	c, err := s.profile.AddNote(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.con.printf("saved note %s\n", c.ID)
	return nil
}

func (s *shell) cmdNotes(ctx context.Context, _ []string) error {
	notes, err := s.profile.Notes(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		s.con.printf("no notes\n")
		return nil
	}
	for _, n := range notes {
		s.con.printf("%s  %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Body)
	}
	return nil
}

func (s *shell) cmdSignOut(ctx context.Context, _ []string) error {
	s.coordinator.Cancel()
	return s.profile.SignOut(ctx)
}

// onReauth prompts for the next step of a re-authentication challenge.
func (s *shell) onReauth(snap reauth.Snapshot) {
	switch snap.Phase {
	case reauth.PhaseAwaitingProviderChoice:
		names := make([]string, len(snap.Providers))
		for i, p := range snap.Providers {
			names[i] = string(p)
		}
		s.con.printf("%s requires you to sign in again. Choose a provider: %s\n",
			snap.Operation, strings.Join(names, ", "))
	case reauth.PhaseAwaitingCredential:
		if snap.LastErr != nil {
			s.con.printf("that credential was rejected; try again or cancel\n")
			return
		}
		if snap.Provider == auth.ProviderPassword {
			s.con.printf("enter: credential EMAIL PASSWORD\n")
		} else {
			s.con.printf("enter: credential SUBJECT (your %s account id)\n", snap.Provider)
		}
	case reauth.PhaseUnlocked:
		s.con.printf("verified; running %s\n", snap.Operation)
	}
}

var providerAliases = map[string]auth.ProviderType{
	"password": auth.ProviderPassword,
	"apple":    auth.ProviderApple,
	"google":   auth.ProviderGoogle,
}

func parseProvider(name string) (auth.ProviderType, error) {
	if p, ok := providerAliases[strings.ToLower(name)]; ok {
		return p, nil
	}
	for _, p := range providerAliases {
		if string(p) == name {
			return p, nil
		}
	}
	return "", oops.Code("SHELL_UNKNOWN_PROVIDER").With("provider", name).
		Errorf("unknown provider %q (password, apple, google)", name)
}

// describeState renders a session state. Unknown is shown as loading.
func describeState(st session.State) string {
	switch st.Status {
	case session.StatusSignedIn:
		who := st.Identity.Email
		if st.Profile != nil && st.Profile.Name != "" {
			return fmt.Sprintf("signed in as %s (%s)", who, st.Profile.Name)
		}
		return fmt.Sprintf("signed in as %s", who)
	case session.StatusSignedOut:
		return "signed out"
	default:
		return "loading"
	}
}

// describe turns an error into a line for the user.
func describe(err error) string {
	var pe *auth.ProviderError
	kind := auth.KindOf(err)
	if kind == auth.KindUnknown && errors.As(err, &pe) {
		kind = auth.Classify(err)
	}
	if kind != auth.KindUnknown {
		return kind.Description()
	}

	if oopsErr, ok := oops.AsOops(err); ok && errutil.Code(err) == "SCREEN_INCOMPLETE" {
		if fields, ok := oopsErr.Context()["fields"].([]string); ok && len(fields) > 0 {
			return "missing or invalid: " + strings.Join(fields, ", ")
		}
	}
	return err.Error()
}
