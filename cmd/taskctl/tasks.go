package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
)

func tasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and update tasks",
	}
	cmd.AddCommand(tasksListCmd(a))
	cmd.AddCommand(tasksShowCmd(a))
	cmd.AddCommand(tasksStatusCmd(a))
	cmd.AddCommand(tasksStatsCmd(a))
	return cmd
}

func tasksListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch and print the task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var status models.Status
			if s, _ := cmd.Flags().GetString("status"); s != "" {
				st, err := models.ParseStatus(s, models.AllowLegacy)
				if err != nil {
					return err
				}
				status = st
			}
			core, err := a.session(ctx)
			if err != nil {
				return err
			}
			if err := core.Reconciler.RefreshOnce(ctx); err != nil {
				return explain(err)
			}
			tasks := core.Reconciler.Filter(status)
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tasks)
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	cmd.Flags().StringP("status", "s", "", "Only tasks with this status (pending, in_progress, completed, cancelled)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func printTasks(out io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tDUE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.EffectiveStatus(), t.Title, t.DueDate)
	}
	_ = w.Flush()
}

func tasksShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := a.session(ctx)
			if err != nil {
				return err
			}
			t, err := core.Reconciler.GetTask(ctx, models.ID(args[0]))
			if err != nil {
				return explain(err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func printTask(out io.Writer, t models.Task) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fields := [][2]string{
		{"ID", t.ID.String()},
		{"Title", t.Title},
		{"Status", string(t.EffectiveStatus())},
		{"Description", t.Description},
		{"Due", t.DueDate},
		{"Address", t.Address},
		{"Delivery", t.DeliveryAddress},
		{"Phone", t.Phone},
		{"Email", t.Email},
		{"Website", t.WebsiteURL},
		{"Created", t.CreatedAt},
		{"Updated", t.UpdatedAt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
	}
	_ = w.Flush()
}

func tasksStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := models.ParseStatus(args[1], models.AllowLegacy)
			if err != nil {
				return err
			}
			core, err := a.session(ctx)
			if err != nil {
				return err
			}
			if err := core.Reconciler.UpdateStatus(ctx, models.ID(args[0]), st); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", args[0], st)
			return nil
		},
	}
}

func tasksStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := a.session(ctx)
			if err != nil {
				return err
			}
			if err := core.Reconciler.RefreshOnce(ctx); err != nil {
				return explain(err)
			}
			s := core.Reconciler.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %-12s %d\n", "pending:", s.Pending)
			fmt.Fprintf(out, "  %-12s %d\n", "in_progress:", s.InProgress)
			fmt.Fprintf(out, "  %-12s %d\n", "completed:", s.Completed)
			fmt.Fprintf(out, "  %-12s %d\n", "cancelled:", s.Cancelled)
			fmt.Fprintf(out, "  %-12s %d\n", "TOTAL:", s.Total)
			return nil
		},
	}
}
