package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/jrsteele09/family-budget-client/app"
	"github.com/jrsteele09/family-budget-client/budgets"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/utils"
	"github.com/jrsteele09/family-budget-client/savings"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Invalid(field, fmt.Sprintf("%q is not a valid amount", raw))
	}
	return d, nil
}

// parseOptionalDate returns the zero Date for "".
func parseOptionalDate(field, raw string) (utils.Date, error) {
	if raw == "" {
		return utils.Date{}, nil
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return utils.Date{}, errors.Invalid(field, fmt.Sprintf("%q is not a date, use YYYY-MM-DD", raw))
	}
	return d, nil
}

func (c *cli) budgetsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "budgets", Short: "Manage budgets"}

	var listFamily int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the budgets of a family",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			familyID, err := resolveFamily(ctx, a, listFamily)
			if err != nil {
				return err
			}
			list, err := a.Budgets.List(ctx, familyID)
			if err != nil {
				return err
			}
			w := c.table()
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tPERIOD\tAMOUNT\tSPENT\tREMAINING\tFROM\tTO")
			for _, b := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.Name, b.BudgetType, b.Period,
					b.Amount.StringFixed(2), b.SpentAmount.StringFixed(2), b.Remaining().StringFixed(2),
					b.StartDate, b.EndDate)
			}
			return w.Flush()
		}),
	}
	list.Flags().IntVar(&listFamily, "family", 0, "family id, defaults to the selected family")
	cmd.AddCommand(list)

	var (
		in                 budgets.Input
		amount, budgetType string
		period, start, end string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a budget",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			var err error
			if in.FamilyID, err = resolveFamily(ctx, a, in.FamilyID); err != nil {
				return err
			}
			if in.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			if in.StartDate, err = parseOptionalDate("start_date", start); err != nil {
				return err
			}
			if in.EndDate, err = parseOptionalDate("end_date", end); err != nil {
				return err
			}
			in.BudgetType = budgets.BudgetType(budgetType)
			in.Period = budgets.Period(period)

			b, err := a.Budgets.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("%s: %w", budgets.CreateMessage(err), err)
			}
			fmt.Fprintf(c.out, "Created budget %d %q (%s to %s)\n", b.ID, b.Name, b.StartDate, b.EndDate)
			return nil
		}),
	}
	create.Flags().IntVar(&in.FamilyID, "family", 0, "family id, defaults to the selected family")
	create.Flags().StringVar(&in.Name, "name", "", "budget name")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().StringVar(&amount, "amount", "", "planned amount")
	create.Flags().StringVar(&budgetType, "type", string(budgets.Expense), "income or expense")
	create.Flags().StringVar(&period, "period", string(budgets.Monthly), "weekly, monthly or yearly")
	create.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD), defaults to today")
	create.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD), defaults from the period")
	_ = create.MarkFlagRequired("amount")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete BUDGET_ID",
		Short: "Delete a budget and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "budget id")
			if err != nil {
				return err
			}
			if err := a.Budgets.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Budget deleted")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary BUDGET_ID",
		Short: "Show totals for a budget",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "budget id")
			if err != nil {
				return err
			}
			s, err := a.Budgets.Summary(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (%s, %s)\n", s.Budget.Name, s.Budget.BudgetType, s.Budget.Period)
			fmt.Fprintf(c.out, "planned:      %s\n", s.Budget.Amount.StringFixed(2))
			fmt.Fprintf(c.out, "transactions: %s\n", s.TotalTransactions.StringFixed(2))
			fmt.Fprintf(c.out, "remaining:    %s\n", s.Remaining.StringFixed(2))
			return nil
		}),
	})
	return cmd
}

func (c *cli) printTransactions(list []budgets.Transaction) error {
	w := c.table()
	fmt.Fprintln(w, "ID\tDATE\tBUDGET\tAMOUNT\tDESCRIPTION")
	for _, t := range list {
		budget := ""
		if t.Budget != nil {
			budget = t.Budget.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Date, budget, t.Amount.StringFixed(2), t.Description)
	}
	return w.Flush()
}

func (c *cli) transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transactions", Short: "Book and review transactions"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list BUDGET_ID",
		Short: "List the transactions of a budget",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "budget id")
			if err != nil {
				return err
			}
			list, err := a.Budgets.Transactions(ctx, id)
			if err != nil {
				return err
			}
			return c.printTransactions(list)
		}),
	})

	var historyFamily int
	history := &cobra.Command{
		Use:   "history",
		Short: "List every transaction of a family, newest first",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			familyID, err := resolveFamily(ctx, a, historyFamily)
			if err != nil {
				return err
			}
			list, err := a.Budgets.FamilyHistory(ctx, familyID)
			if err != nil {
				return err
			}
			return c.printTransactions(list)
		}),
	}
	history.Flags().IntVar(&historyFamily, "family", 0, "family id, defaults to the selected family")
	cmd.AddCommand(history)

	var (
		in           budgets.TransactionInput
		amount, date string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Book a transaction against a budget",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			var err error
			if in.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			if in.Date, err = parseOptionalDate("date", date); err != nil {
				return err
			}
			t, err := a.Budgets.AddTransaction(ctx, in)
			if err != nil {
				return fmt.Errorf("%s: %w", budgets.TransactionMessage(err), err)
			}
			fmt.Fprintf(c.out, "Booked transaction %d: %s on %s\n", t.ID, t.Amount.StringFixed(2), t.Date)
			return nil
		}),
	}
	add.Flags().IntVar(&in.BudgetID, "budget", 0, "budget id")
	add.Flags().StringVar(&amount, "amount", "", "amount")
	add.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD), defaults to today")
	add.Flags().StringVar(&in.Description, "description", "", "description")
	_ = add.MarkFlagRequired("budget")
	_ = add.MarkFlagRequired("amount")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete TRANSACTION_ID",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "transaction id")
			if err != nil {
				return err
			}
			if err := a.Budgets.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Transaction deleted")
			return nil
		}),
	})
	return cmd
}

func (c *cli) goalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "goals", Short: "Manage savings goals"}

	var listFamily int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the savings goals of a family",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			familyID, err := resolveFamily(ctx, a, listFamily)
			if err != nil {
				return err
			}
			goals, err := a.Savings.List(ctx, familyID)
			if err != nil {
				return err
			}
			now := savings.NowTimeFunc()
			w := c.table()
			fmt.Fprintln(w, "ID\tNAME\tSAVED\tTARGET\tPROGRESS\tDAYS LEFT")
			for _, g := range goals {
				left := "-"
				if days, ok := g.DaysRemaining(now); ok {
					left = fmt.Sprint(days)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s%%\t%s\n",
					g.ID, g.Name, g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2), g.Progress().StringFixed(1), left)
			}
			return w.Flush()
		}),
	}
	list.Flags().IntVar(&listFamily, "family", 0, "family id, defaults to the selected family")
	cmd.AddCommand(list)

	var (
		in                 savings.GoalInput
		target, targetDate string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a savings goal",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			var err error
			if in.FamilyID, err = resolveFamily(ctx, a, in.FamilyID); err != nil {
				return err
			}
			if in.TargetAmount, err = parseAmount("target_amount", target); err != nil {
				return err
			}
			if in.TargetDate, err = parseOptionalDate("target_date", targetDate); err != nil {
				return err
			}
			g, err := a.Savings.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("%s: %w", savings.Message(err), err)
			}
			fmt.Fprintf(c.out, "Created goal %d %q\n", g.ID, g.Name)
			return nil
		}),
	}
	create.Flags().IntVar(&in.FamilyID, "family", 0, "family id, defaults to the selected family")
	create.Flags().StringVar(&in.Name, "name", "", "goal name")
	create.Flags().StringVar(&target, "target", "", "target amount")
	create.Flags().StringVar(&targetDate, "date", "", "target date (YYYY-MM-DD)")
	_ = create.MarkFlagRequired("target")
	cmd.AddCommand(create)

	var amount, date string
	contribute := &cobra.Command{
		Use:   "contribute GOAL_ID",
		Short: "Add money to a savings goal",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "goal id")
			if err != nil {
				return err
			}
			value, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			on, err := parseOptionalDate("date", date)
			if err != nil {
				return err
			}
			g, err := a.Savings.Contribute(ctx, id, value, on)
			if err != nil {
				return fmt.Errorf("%s: %w", savings.Message(err), err)
			}
			fmt.Fprintf(c.out, "%s: %s of %s (%s%%)\n",
				g.Name, g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2), g.Progress().StringFixed(1))
			return nil
		}),
	}
	contribute.Flags().StringVar(&amount, "amount", "", "amount to add")
	contribute.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD), defaults to today")
	_ = contribute.MarkFlagRequired("amount")
	cmd.AddCommand(contribute)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete GOAL_ID",
		Short: "Delete a savings goal",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(ctx context.Context, a *app.App, args []string) error {
			id, err := intArg(args, 0, "goal id")
			if err != nil {
				return err
			}
			if err := a.Savings.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Goal deleted")
			return nil
		}),
	})
	return cmd
}

func (c *cli) analyticsCmd() *cobra.Command {
	var family int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Planned versus booked amounts and savings progress",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(ctx context.Context, a *app.App, _ []string) error {
			familyID, err := resolveFamily(ctx, a, family)
			if err != nil {
				return err
			}
			report, err := a.Budgets.Analytics(ctx, familyID)
			if err != nil {
				return err
			}

			types := make([]string, 0, len(report.BudgetUtilization))
			for t := range report.BudgetUtilization {
				types = append(types, string(t))
			}
			sort.Strings(types)

			w := c.table()
			fmt.Fprintln(w, "TYPE\tPLANNED\tBOOKED\tUSED")
			for _, t := range types {
				u := report.BudgetUtilization[budgets.BudgetType(t)]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s%%\n", t,
					u.BudgetAmount.StringFixed(2), u.TransactionAmount.StringFixed(2), u.UtilizationPercentage.StringFixed(1))
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "GOAL\tSAVED\tTARGET\tPROGRESS")
			for _, g := range report.SavingsProgress {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s%%\n", g.Name,
					g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2), g.ProgressPercentage.StringFixed(1))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVar(&family, "family", 0, "family id, defaults to the selected family")
	return cmd
}
