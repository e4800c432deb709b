package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/family-budget-client/app"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/spf13/cobra"
)

// resolveFamily returns id when set, otherwise the selected family.
func resolveFamily(ctx context.Context, a *app.App, id int) (int, error) {
	if id != 0 {
		return id, nil
	}
	f, err := a.Families.Selected(ctx)
	if err != nil {
		return 0, fmt.Errorf("no family selected, create one with `budgetctl families create`: %w", err)
	}
	return f.ID, nil
}

func (c *cli) familiesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "families", Short: "Manage families and members"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your families",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			list, err := a.Families.List(ctx)
			if err != nil {
				return err
			}
			selected := 0
			if len(list) > 0 {
				if f, err := a.Families.Selected(ctx); err == nil {
					selected = f.ID
				}
			}
			w := c.table()
			fmt.Fprintln(w, "\tID\tNAME\tDESCRIPTION")
			for _, f := range list {
				mark := ""
				if f.ID == selected {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", mark, f.ID, f.Name, f.Description)
			}
			return w.Flush()
		}),
	})

	var in families.Input
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a family with you as its admin",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			f, err := a.Families.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("%s: %w", families.CreateMessage(err), err)
			}
			fmt.Fprintf(c.out, "Created family %d %q\n", f.ID, f.Name)
			return nil
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "family name")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "select FAMILY_ID",
		Short: "Choose the family other commands work on",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "family id")
			if err != nil {
				return err
			}
			f, err := a.Families.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := a.Families.Select(ctx, f.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Selected family %q\n", f.Name)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "members [FAMILY_ID]",
		Short: "List the members of a family",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := familyArg(ctx, a, args)
			if err != nil {
				return err
			}
			members, err := a.Families.Members(ctx, id)
			if err != nil {
				return err
			}
			w := c.table()
			fmt.Fprintln(w, "MEMBER ID\tNAME\tEMAIL\tROLE")
			for _, m := range members {
				name, email := "", ""
				if m.User != nil {
					name, email = m.User.FullName(), m.User.Email
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, name, email, m.Role)
			}
			return w.Flush()
		}),
	})

	var email string
	invite := &cobra.Command{
		Use:   "invite [FAMILY_ID]",
		Short: "Invite an existing user to a family",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := familyArg(ctx, a, args)
			if err != nil {
				return err
			}
			msg, err := a.Families.Invite(ctx, id, email)
			if err != nil {
				return fmt.Errorf("%s: %w", families.InviteMessage(err), err)
			}
			fmt.Fprintln(c.out, msg)
			return nil
		}),
	}
	invite.Flags().StringVar(&email, "email", "", "email of the user to invite")
	_ = invite.MarkFlagRequired("email")
	cmd.AddCommand(invite)

	cmd.AddCommand(c.memberActionCmd("promote", "Make a member an admin", func(ctx context.Context, a *app.App, familyID, memberID int) error {
		return a.Families.PromoteMember(ctx, familyID, memberID)
	}))
	cmd.AddCommand(c.memberActionCmd("remove", "Remove a member from a family", func(ctx context.Context, a *app.App, familyID, memberID int) error {
		return a.Families.RemoveMember(ctx, familyID, memberID)
	}))

	cmd.AddCommand(&cobra.Command{
		Use:   "leave FAMILY_ID",
		Short: "Leave a family",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "family id")
			if err != nil {
				return err
			}
			msg, err := a.Families.Leave(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, msg)
			return nil
		}),
	})
	return cmd
}

func familyArg(ctx context.Context, a *app.App, args []string) (int, error) {
	if len(args) == 0 {
		return resolveFamily(ctx, a, 0)
	}
	return intArg(args, 0, "family id")
}

func (c *cli) memberActionCmd(use, short string, action func(ctx context.Context, a *app.App, familyID, memberID int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FAMILY_ID MEMBER_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			familyID, err := intArg(args, 0, "family id")
			if err != nil {
				return err
			}
			memberID, err := intArg(args, 1, "member id")
			if err != nil {
				return err
			}
			if err := action(ctx, a, familyID, memberID); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Done")
			return nil
		}),
	}
}

func (c *cli) invitationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invitations", Short: "Pending invitations to join a family"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List invitations waiting for your answer",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			list, err := a.Families.Invitations(ctx)
			if err != nil {
				return err
			}
			w := c.table()
			fmt.Fprintln(w, "ID\tFAMILY\tINVITED BY")
			for _, m := range list {
				family, by := "", ""
				if m.Family != nil {
					family = m.Family.Name
				}
				if m.InvitedBy != nil {
					by = m.InvitedBy.FullName()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.ID, family, by)
			}
			return w.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "respond INVITATION_ID accept|reject",
		Short:     "Accept or reject an invitation",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(families.Accept), string(families.Reject)},
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "invitation id")
			if err != nil {
				return err
			}
			msg, err := a.Families.Respond(ctx, id, families.InvitationResponse(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, msg)
			return nil
		}),
	})
	return cmd
}
