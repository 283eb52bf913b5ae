package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/planner"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <fields.json>",
	Short: "Classify scanned form fields, or plan them against a site with --url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fields, err := readFields(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		url, _ := cmd.Flags().GetString("url")
		out := cmd.OutOrStdout()

		if url != "" {
			res := env.Engine.Plan(ctx, url, fields, planner.ModeManual)
			if asJSON {
				return writeJSON(out, res)
			}
			formatDecisions(out, res)
			return nil
		}

		cls := env.Engine.Classify(ctx, fields)
		if asJSON {
			return writeJSON(out, cls)
		}
		formatClassifications(out, fields, cls)
		return nil
	},
}

// readFields loads field contexts from a JSON file holding either an array
// or an object with a "fields" array. Comments are allowed.
func readFields(path string) ([]model.FieldContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	data = jsonc.ToJSON(data)

	var fields []model.FieldContext
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		err = json.Unmarshal(data, &fields)
	} else {
		var doc struct {
			Fields []model.FieldContext `json:"fields"`
		}
		err = json.Unmarshal(data, &doc)
		fields = doc.Fields
	}
	if err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	for i := range fields {
		if fields[i].ID == "" {
			fields[i].ID = fields[i].Locator.Key()
		}
		if fields[i].DocumentIndex == 0 {
			fields[i].DocumentIndex = i
		}
	}
	return fields, nil
}

func formatClassifications(w io.Writer, fields []model.FieldContext, cls []model.Classification) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tLABEL\tTYPE\tSCORE\tREASON")
	for i, c := range cls {
		label := ""
		if i < len(fields) {
			label = fields[i].LabelText
		}
		reason := ""
		if len(c.Reasons) > 0 {
			reason = c.Reasons[0]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", c.FieldID, label, c.Type, c.Score, reason)
	}
	_ = tw.Flush()
}

func formatDecisions(w io.Writer, res planner.Result) {
	fmt.Fprintf(w, "site %s (autofill %s)\n", res.SiteKey, onOff(res.Site.AutofillEnabled))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tDECISION\tVALUE\tREASON")
	for _, d := range res.Decisions {
		value := ""
		if d.Plan != nil {
			value = d.Plan.TargetValue()
			if d.Plan.Answer.IsSensitive() {
				value = "********"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Field.Key(), d.Classification.Type, d.Decision, value, d.Reason)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	classifyCmd.Flags().Bool("json", false, "print JSON instead of a table")
	classifyCmd.Flags().String("url", "", "plan the fields against this page's site settings and answers")
	rootCmd.AddCommand(classifyCmd)
}
