package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"todopro/internal/client"
)

func (a *app) reportCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize tasks created in the last week, month or year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			p, err := client.ParsePeriod(period)
			if err != nil {
				return err
			}
			view := client.NewTaskView(a.session.Client(), client.ListQuery{})
			if err := view.Reload(cmd.Context()); err != nil {
				return err
			}
			r := client.BuildReport(view.Tasks(), p, a.now())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report for the last %s (%s to %s)\n", r.Period,
				r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
			fmt.Fprintf(out, "  Total:        %d\n", r.Total)
			fmt.Fprintf(out, "  Completed:    %d\n", r.Completed)
			fmt.Fprintf(out, "  Pending:      %d\n", r.Pending)
			fmt.Fprintf(out, "  Overdue:      %d\n", r.Overdue)
			fmt.Fprintf(out, "  Priority:     high %d, medium %d, low %d\n",
				r.ByPriority["high"], r.ByPriority["medium"], r.ByPriority["low"])
			fmt.Fprintf(out, "  Completion:   %d%%\n", r.CompletionRate)
			fmt.Fprintf(out, "  Productivity: %.0f/100\n", r.Productivity)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "month", "week, month or year")
	return cmd
}
