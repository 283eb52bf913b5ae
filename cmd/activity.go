package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/model"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent fills, undos, commits and consent changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		entries := kb.Activity(ctx, limit)
		if len(entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No activity recorded.")
			return nil
		}
		formatActivity(cmd.OutOrStdout(), entries)
		return nil
	},
}

func formatActivity(w io.Writer, entries []model.ActivityEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tSITE\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.Local().Format("2006-01-02 15:04"), e.Action, e.SiteKey, e.Detail)
	}
	_ = tw.Flush()
}

func init() {
	activityCmd.Flags().Int("limit", 50, "maximum entries to show")
	rootCmd.AddCommand(activityCmd)
}
