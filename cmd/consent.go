package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/secure"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Show or change data sharing consent",
}

var consentShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current consent record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		formatConsent(cmd.OutOrStdout(), secure.NewConsentGate(st).Load(ctx))
		return nil
	},
}

var consentGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant model data sharing and/or edit collection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		llmFlag, _ := cmd.Flags().GetBool("llm")
		collect, _ := cmd.Flags().GetBool("collect")
		if !llmFlag && !collect {
			return eris.New("nothing to grant: pass --llm and/or --collect")
		}

		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gate := secure.NewConsentGate(st)
		cur := gate.Load(ctx)
		c, err := gate.Set(ctx, llmFlag || cur.LLMDataSharing, collect || cur.DataCollection)
		if err != nil {
			return eris.Wrap(err, "consent grant")
		}
		kb.Log(ctx, "", model.ActivityConsent, fmt.Sprintf("llm %s, collection %s", onOff(c.LLMDataSharing), onOff(c.DataCollection)))
		formatConsent(cmd.OutOrStdout(), c)
		return nil
	},
}

var consentRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Withdraw all consent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := secure.NewConsentGate(st).Revoke(ctx); err != nil {
			return eris.Wrap(err, "consent revoke")
		}
		kb.Log(ctx, "", model.ActivityConsent, "revoked")
		return nil
	},
}

func formatConsent(w io.Writer, c model.UserConsent) {
	fmt.Fprintf(w, "llm data sharing: %s\n", onOff(c.LLMDataSharing))
	fmt.Fprintf(w, "data collection:  %s\n", onOff(c.DataCollection))
	if !c.Current() {
		fmt.Fprintf(w, "record version %d is stale (current %d); grants are ignored until renewed\n", c.Version, model.ConsentVersion)
	}
}

func init() {
	consentGrantCmd.Flags().Bool("llm", false, "allow sending field descriptions to the configured model")
	consentGrantCmd.Flags().Bool("collect", false, "allow staging edits as learning candidates")
	consentCmd.AddCommand(consentShowCmd, consentGrantCmd, consentRevokeCmd)
	rootCmd.AddCommand(consentCmd)
}
