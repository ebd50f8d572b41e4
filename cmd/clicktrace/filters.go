package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func filtersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Inspect or reset the saved trace list filters",
	}
	cmd.AddCommand(filtersShowCmd(a))
	cmd.AddCommand(filtersRemoveTagCmd(a))
	cmd.AddCommand(filtersResetCmd(a))
	cmd.AddCommand(filtersNewSessionCmd())
	return cmd
}

func filtersShowCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the filters saved for the current session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			_, loadErr := store.Load(ctx)
			saved := loadErr == nil
			c := filter.LoadOrDefault(ctx, store, a.now(), a.logger)

			w := cmd.OutOrStdout()
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(c); err != nil {
					return fmt.Errorf("encoding filters: %w", err)
				}
				return enc.Close()
			case "table":
			default:
				return fmt.Errorf("unsupported output %q, supported: table, yaml", output)
			}

			if !saved {
				_, _ = fmt.Fprintln(w, "No saved filters, showing defaults")
			}
			tw := newTable(w)
			tw.SetTitle("Session " + a.v.GetString(flagSession))
			tw.AppendRows([]table.Row{
				{"Service", orAny(c.Service)},
				{"Operation", orAny(c.Operation)},
				{"Time range", c.TimeRange.Describe(a.location())},
				{"Limit", c.Limit},
				{"Errors only", c.HasError},
				{"Active", c.Active()},
			})
			for i, cond := range c.Tags {
				tw.AppendRow(table.Row{fmt.Sprintf("Tag %d", i+1), cond.String()})
			}
			tw.Render()
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func filtersRemoveTagCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-tag <n>",
		Short: "Remove the nth saved tag condition (as numbered by filters show)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing tag number\n\nUsage: clicktrace filters remove-tag <n>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid tag number %q", args[0])
			}
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			c := filter.LoadOrDefault(ctx, store, a.now(), a.logger)
			if n < 1 || n > len(c.Tags) {
				return fmt.Errorf("no tag %d: %d tag conditions saved", n, len(c.Tags))
			}
			removed := c.Tags[n-1]
			if err := store.Save(ctx, c.WithoutTag(n-1)); err != nil {
				return fmt.Errorf("saving filter criteria: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed tag %s\n", removed)
			return err
		}),
	}
}

func filtersResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the filters saved for the current session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if err := store.Clear(ctx); err != nil && !errors.Is(err, filter.ErrNoState) {
				return fmt.Errorf("clearing filter criteria: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared filters for session %s\n", a.v.GetString(flagSession))
			return err
		}),
	}
}

func filtersNewSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-session",
		Short: "Print a fresh session ID for an independent set of filters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			id := filter.NewSessionID()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nUse it with:\n  clicktrace --session %s traces\n  export CLICKTRACE_SESSION=%s\n", id, id, id)
		},
	}
}

func orAny(s string) string {
	if s == "" {
		return "(any)"
	}
	return s
}
