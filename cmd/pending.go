package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/model"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Review staged learning candidates",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged observations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pending := kb.Pending(ctx, model.PendingStatusPending)
		if len(pending) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Nothing pending.")
			return nil
		}
		formatPending(cmd.OutOrStdout(), pending)
		return nil
	},
}

// formatPending writes a review table. Values of sensitive types are masked.
func formatPending(w io.Writer, pending []model.PendingObservation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSITE\tTYPE\tVALUE\tCONFIDENCE\tQUESTION")
	for _, p := range pending {
		value := p.Value
		if p.Type.IsSensitive() {
			value = "********"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			p.ID, p.SiteKey, p.Type, value, p.Confidence, p.Field.LabelText)
	}
	_ = tw.Flush()
}

var pendingCommitCmd = &cobra.Command{
	Use:   "commit <pending-id>",
	Short: "Confirm a staged observation as an answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var override model.Taxonomy
		if s, _ := cmd.Flags().GetString("type"); s != "" {
			t, ok := model.ParseTaxonomy(s)
			if !ok {
				return eris.Errorf("unknown answer type %q", s)
			}
			override = t
		}

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Engine.Commit(ctx, args[0], override)
		if err != nil {
			return eris.Wrap(err, "pending commit")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "committed %s answer %s\n", a.Type, a.ID)
		return nil
	},
}

var pendingDiscardCmd = &cobra.Command{
	Use:   "discard <pending-id>",
	Short: "Drop a staged observation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Discard(ctx, args[0]); err != nil {
			return eris.Wrap(err, "pending discard")
		}
		return nil
	},
}

func init() {
	pendingCommitCmd.Flags().String("type", "", "store under this type instead of the classified one")
	pendingCmd.AddCommand(pendingListCmd, pendingCommitCmd, pendingDiscardCmd)
	rootCmd.AddCommand(pendingCmd)
}
