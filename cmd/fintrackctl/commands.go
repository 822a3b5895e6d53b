package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening a sqlite or postgres backend migrates it to the latest schema.
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if s.cfg.DataBackend == "memory" {
				fmt.Fprintln(cmd.OutOrStdout(), "memory backend has no schema")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", s.cfg.DataBackend)
			return nil
		},
	}
}

func newOwnersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			owners, err := services.NewLedgerService(s.backend.Store).ListOwners(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "USERNAME", "NAME", "INCOME GOAL", "EXPENSE BUDGET")
			for _, o := range owners {
				row(tw, o.ID, o.Username, o.FirstName+" "+o.LastName,
					money(o.Budget.IncomeGoal), money(o.Budget.ExpenseBudget))
			}
			return tw.Flush()
		},
	}
}

func newNetworthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "networth",
		Short: "Print the owner's net income up to today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := opts.ownerID()
			if err != nil {
				return err
			}
			today, err := opts.todayDate()
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			net, err := services.NewNetIncomeService(s.backend.Store, nil).NetIncome(cmd.Context(), owner, today)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Net income as of %s: %s\n", today, money(net))
			return nil
		},
	}
}

func newGraphCmd(opts *options) *cobra.Command {
	var scale string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the bucketed net income flow and running total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := opts.ownerID()
			if err != nil {
				return err
			}
			today, err := opts.todayDate()
			if err != nil {
				return err
			}
			sc, err := services.ParseScale(scale)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			g, err := services.NewNetIncomeService(s.backend.Store, nil).Graph(cmd.Context(), owner, sc, today)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "BUCKET", "FROM", "TO", "FLOW", "RUNNING")
			for i, p := range g.Flow {
				row(tw, p.Label, p.Start, p.End, money(p.Amount), money(g.Running[i].Amount))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&scale, "scale", string(services.DefaultScale), "Graph scale: 3y, 1y, 6m, 3m or 1m")
	return cmd
}

func newUpcomingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upcoming",
		Short: "Roll recurring expenses forward and list those due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := opts.ownerID()
			if err != nil {
				return err
			}
			today, err := opts.todayDate()
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			p := services.NewRecurringProcessor(s.backend.Store, s.backend.Notifier(), nil, s.cfg.UpcomingHorizonDays)
			upcoming, err := p.Rollforward(cmd.Context(), owner, today)
			if err != nil {
				return err
			}
			if len(upcoming) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No recurring expenses due in the next %d days\n", s.cfg.UpcomingHorizonDays)
				return nil
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "DATE", "AMOUNT", "CATEGORY", "INTERVAL", "DESCRIPTION")
			for _, tx := range upcoming {
				interval := ""
				if tx.Interval != nil {
					interval = tx.Interval.String()
				}
				row(tw, tx.ID, tx.Date, money(tx.Amount), tx.Category, interval, tx.Description)
			}
			return tw.Flush()
		},
	}
}

func newBudgetCmd(opts *options) *cobra.Command {
	var incomeGoal, expenseBudget string
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show the month-to-date budget, or set goals with --income-goal/--expense-budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := opts.ownerID()
			if err != nil {
				return err
			}
			today, err := opts.todayDate()
			if err != nil {
				return err
			}
			goal, err := decimalFlag(cmd, "income-goal", incomeGoal)
			if err != nil {
				return err
			}
			budget, err := decimalFlag(cmd, "expense-budget", expenseBudget)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			svc := services.NewBudgetService(s.backend.Store)
			var report services.BudgetReport
			if goal != nil || budget != nil {
				report, err = svc.Set(cmd.Context(), owner, today, goal, budget)
			} else {
				report, err = svc.Get(cmd.Context(), owner, today, true, true)
			}
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout(), "", "TARGET", "MONTH TO DATE")
			if report.IncomeGoal != nil {
				row(tw, "income", money(*report.IncomeGoal), money(*report.MonthlyTotalIncome))
			}
			if report.ExpenseBudget != nil {
				row(tw, "expense", money(*report.ExpenseBudget), money(*report.MonthlyTotalExpense))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&incomeGoal, "income-goal", "", "Set the monthly income goal")
	cmd.Flags().StringVar(&expenseBudget, "expense-budget", "", "Set the monthly expense budget")
	return cmd
}

// decimalFlag parses the flag only when it was given on the command line.
func decimalFlag(cmd *cobra.Command, name, value string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	d, err := core.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	row(tw, cells...)
	return tw
}

func row(tw *tabwriter.Writer, cells ...any) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
}
