package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/profile"
)

var importCmd = &cobra.Command{
	Use:   "import <profile.(json|yaml|xlsx)>",
	Short: "Import answers from a profile document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rows, err := profile.ReadFile(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := profile.NewImporter(env.KB(), env.Engine.Normalizer()).Import(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "import profile")
		}
		formatReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

func formatReport(w io.Writer, rep profile.Report) {
	fmt.Fprintf(w, "added %d, merged %d, skipped %d\n", rep.Added, rep.Merged, len(rep.Skipped))
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Row.Type, s.Reason)
	}
}

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export stored answers to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sensitive, _ := cmd.Flags().GetBool("include-sensitive")
		n, err := profile.ExportXLSX(ctx, kb, args[0], profile.ExportOptions{IncludeSensitive: sensitive})
		if err != nil {
			return eris.Wrap(err, "export answers")
		}
		zap.L().Info("export complete",
			zap.Int("answers", n),
			zap.String("path", args[0]),
			zap.Bool("sensitive", sensitive),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().Bool("include-sensitive", false, "write values of sensitive answers instead of blanks")
	rootCmd.AddCommand(importCmd, exportCmd)
}
