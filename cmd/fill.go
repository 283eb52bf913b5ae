package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/browser"
	"github.com/sells-group/formpilot/internal/engine"
	"github.com/sells-group/formpilot/internal/planner"
)

var (
	fillURL  string
	fillMode string
	fillHold time.Duration
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Open a page in Chrome, scan it and fill it from stored answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := parseMode(fillMode)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := browser.Open(ctx, cfg.Browser)
		if err != nil {
			return err
		}
		defer b.Close() //nolint:errcheck

		env, err := initEnv(ctx, b)
		if err != nil {
			return err
		}
		defer env.Close()

		tab, err := b.NewTab(ctx, fillURL)
		if err != nil {
			return err
		}
		out, err := env.Engine.Fill(ctx, tab, mode)
		if err != nil {
			return eris.Wrap(err, "fill")
		}
		formatOutcome(cmd.OutOrStdout(), out)

		if fillHold > 0 {
			zap.L().Info("fill: holding page open", zap.Duration("for", fillHold))
			select {
			case <-ctx.Done():
			case <-time.After(fillHold):
			}
		}
		return nil
	},
}

func parseMode(s string) (planner.Mode, error) {
	switch planner.Mode(s) {
	case planner.ModeManual, planner.ModeAuto:
		return planner.Mode(s), nil
	case "":
		return planner.ModeManual, nil
	default:
		return "", eris.Errorf("unknown fill mode %q (want manual or auto)", s)
	}
}

func formatOutcome(w io.Writer, out engine.FillOutcome) {
	fmt.Fprintf(w, "filled %d of %d planned fields on %s\n", out.Batch.Filled, len(out.Plan.Plans), out.Plan.SiteKey)
	if n := out.Plan.Count(planner.DecisionSuggest); n > 0 {
		fmt.Fprintf(w, "%d fields have suggestions\n", n)
	}
	if n := out.Plan.Count(planner.DecisionSensitive); n > 0 {
		fmt.Fprintf(w, "%d sensitive fields need confirmation\n", n)
	}
	if len(out.Batch.Results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tSTRATEGY\tSTATUS\tERROR")
	for _, r := range out.Batch.Results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.FieldID, r.Strategy, status, r.Error)
	}
	_ = tw.Flush()
}

func init() {
	fillCmd.Flags().StringVar(&fillURL, "url", "", "page to fill (required)")
	fillCmd.Flags().StringVar(&fillMode, "mode", "manual", "manual or auto (auto honours the site's autofill switch)")
	fillCmd.Flags().DurationVar(&fillHold, "hold", 0, "keep the browser open this long after filling")
	_ = fillCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(fillCmd)
}
