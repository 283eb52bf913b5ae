package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/model"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Show or change per-site recording and autofill",
}

var siteShowCmd = &cobra.Command{
	Use:   "show <url>",
	Short: "Show the policy for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		formatSite(cmd.OutOrStdout(), kb.SiteSettings(ctx, model.SiteKeyFromURL(args[0])))
		return nil
	},
}

var siteSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Change the policy for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var u knowledge.SiteUpdate
		if cmd.Flags().Changed("record") {
			v, _ := cmd.Flags().GetBool("record")
			u.RecordEnabled = &v
		}
		if cmd.Flags().Changed("autofill") {
			v, _ := cmd.Flags().GetBool("autofill")
			u.AutofillEnabled = &v
		}
		if u.RecordEnabled == nil && u.AutofillEnabled == nil {
			return eris.New("nothing to change: pass --record and/or --autofill")
		}

		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ss, err := kb.UpdateSiteSettings(ctx, model.SiteKeyFromURL(args[0]), u)
		if err != nil {
			return eris.Wrap(err, "site set")
		}
		formatSite(cmd.OutOrStdout(), ss)
		return nil
	},
}

func formatSite(w io.Writer, ss model.SiteSettings) {
	fmt.Fprintf(w, "site:     %s\n", ss.SiteKey)
	fmt.Fprintf(w, "record:   %s\n", onOff(ss.RecordEnabled))
	fmt.Fprintf(w, "autofill: %s\n", onOff(ss.AutofillEnabled))
}

func init() {
	siteSetCmd.Flags().Bool("record", true, "stage edits made on this site")
	siteSetCmd.Flags().Bool("autofill", false, "fill automatically on page load")
	siteCmd.AddCommand(siteShowCmd, siteSetCmd)
	rootCmd.AddCommand(siteCmd)
}
