package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"todopro/internal/client"
)

func (a *app) listCmd() *cobra.Command {
	var status, priority, search, order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			view := client.NewTaskView(a.session.Client(), client.ListQuery{
				Status:   status,
				Priority: priority,
				Search:   search,
			})
			if err := view.Reload(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeTasks(out, view.Visible("", client.ParseSortOrder(order)))
			c := view.Counts()
			fmt.Fprintf(out, "\n%d total, %d active, %d completed\n", c.Total, c.Active, c.Completed)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "all, pending or completed")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&search, "search", "", "match title or description")
	cmd.Flags().StringVar(&order, "sort", "created", "created, priority or due_date")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var description, priority, due string
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			in := client.TaskInput{Title: args[0], Priority: priority}
			if description != "" {
				in.Description = &description
			}
			if due != "" {
				in.DueDate = &due
			}
			task, err := a.session.Client().CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d\n", task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high (default medium)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD or RFC 3339")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var (
		title, description, priority, due string
		clearDescription, clearDue        bool
		completed                         bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of a task; unset flags are left as they are",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			var patch client.TaskPatch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			patch.ClearDescription = clearDescription
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("due") {
				patch.DueDate = &due
			}
			patch.ClearDueDate = clearDue
			if flags.Changed("completed") {
				patch.IsCompleted = &completed
			}

			task, err := a.session.Client().UpdateTask(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task #%d\n", task.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&description, "description", "", "new description")
	f.BoolVar(&clearDescription, "clear-description", false, "remove the description")
	f.StringVar(&priority, "priority", "", "low, medium or high")
	f.StringVar(&due, "due", "", "new due date")
	f.BoolVar(&clearDue, "clear-due", false, "remove the due date")
	f.BoolVar(&completed, "completed", false, "mark completed (use --completed=false to reopen)")
	return cmd
}

func (a *app) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Toggle the completion status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			task, err := a.session.Client().ToggleTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			state := "pending"
			if task.IsCompleted {
				state = "completed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task #%d is now %s\n", task.ID, state)
			return nil
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.session.Client().DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task #%d\n", id)
			return nil
		},
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return uint(id), nil
}

func writeTasks(w io.Writer, tasks []client.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		done := " "
		if t.IsCompleted {
			done = "x"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Priority, due, t.Title)
	}
	_ = tw.Flush()
}
