package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/jrsteele09/family-budget-client/app"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// appFactory builds the application on first use so that commands like --help never touch
// storage or the network.
type appFactory func(ctx context.Context, opts ...app.Option) (*app.App, error)

type cli struct {
	out     io.Writer
	errOut  io.Writer
	factory appFactory
	app     *app.App
}

func newCLI(out, errOut io.Writer, factory appFactory) *cli {
	return &cli{out: out, errOut: errOut, factory: factory}
}

func (c *cli) open(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.factory(ctx, app.WithSessionExpiredHandler(func(error) {
		fmt.Fprintln(c.errOut, "session expired, please log in")
	}))
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
}

type runFunc func(ctx context.Context, a *app.App, args []string) error

// public runs fn without requiring a session.
func (c *cli) public(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.open(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd.Context(), a, args)
	}
}

// protected restores the session first and refuses to run fn without one.
func (c *cli) protected(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.open(cmd.Context())
		if err != nil {
			return err
		}
		if state := a.Initialize(cmd.Context()); !state.IsAuthenticated() {
			return pkgerrors.Wrap(errors.ErrNotAuthenticated, "run `budgetctl login` first")
		}
		return fn(cmd.Context(), a, args)
	}
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Command line client for the family budget API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.profileCmd(),
		c.passwordCmd(),
		c.familiesCmd(),
		c.invitationsCmd(),
		c.budgetsCmd(),
		c.transactionsCmd(),
		c.goalsCmd(),
		c.analyticsCmd(),
	)
	return root
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: c.public(func(ctx context.Context, a *app.App, _ []string) error {
			res := a.Session.Login(ctx, email, password)
			if !res.Success {
				return errors.Wrapf(errors.ErrInvalidCredentials, "%s", res.Message)
			}
			fmt.Fprintf(c.out, "Logged in as %s\n", a.Session.State().CurrentUser.FullName())
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var reg users.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: c.public(func(ctx context.Context, a *app.App, _ []string) error {
			if err := reg.Validate(); err != nil {
				return err
			}
			res := a.Session.Register(ctx, reg)
			if !res.Success {
				return errors.Wrapf(errors.ErrRegistration, "%s", res.Message)
			}
			fmt.Fprintf(c.out, "Welcome, %s\n", a.Session.State().CurrentUser.FullName())
			return nil
		}),
	}
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.PasswordConfirm, "confirm", "", "password again")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: c.public(func(_ context.Context, a *app.App, _ []string) error {
			a.Session.Logout()
			fmt.Fprintln(c.out, "Logged out")
			return nil
		}),
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(_ context.Context, a *app.App, _ []string) error {
			p := a.Session.State().CurrentUser
			if p == nil {
				return errors.ErrNotAuthenticated
			}
			fmt.Fprintf(c.out, "%s <%s>\n", p.FullName(), p.Email)
			if exp := a.Session.AccessTokenExpiry(); !exp.IsZero() {
				fmt.Fprintf(c.out, "access token expires %s\n", exp.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		}),
	}
}

func (c *cli) profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Manage your profile"}

	var update users.ProfileUpdate
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change name or email",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			current := a.Session.State().CurrentUser
			if current != nil {
				if update.FirstName == "" {
					update.FirstName = current.FirstName
				}
				if update.LastName == "" {
					update.LastName = current.LastName
				}
				if update.Email == "" {
					update.Email = current.Email
				}
			}
			p, err := a.Users.UpdateProfile(ctx, update)
			if err != nil {
				return fmt.Errorf("%s: %w", users.ProfileUpdateMessage(err), err)
			}
			fmt.Fprintf(c.out, "Profile updated: %s <%s>\n", p.FullName(), p.Email)
			return nil
		}),
	}
	updateCmd.Flags().StringVar(&update.FirstName, "first-name", "", "first name")
	updateCmd.Flags().StringVar(&update.LastName, "last-name", "", "last name")
	updateCmd.Flags().StringVar(&update.Email, "email", "", "email")

	profile.AddCommand(updateCmd)
	return profile
}

func (c *cli) passwordCmd() *cobra.Command {
	var change users.PasswordChange
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			if err := a.Users.ChangePassword(ctx, change); err != nil {
				return fmt.Errorf("%s: %w", users.PasswordChangeMessage(err), err)
			}
			fmt.Fprintln(c.out, "Password changed")
			return nil
		}),
	}
	cmd.Flags().StringVar(&change.OldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&change.NewPassword, "new", "", "new password")
	cmd.Flags().StringVar(&change.NewPasswordConfirm, "confirm", "", "new password again")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func intArg(args []string, i int, name string) (int, error) {
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, errors.Invalid(name, fmt.Sprintf("%s must be a number, got %q", name, args[i]))
	}
	return v, nil
}
