package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/store"
)

// openKB opens the store for commands that only manage stored data.
func openKB(ctx context.Context) (*knowledge.Store, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return knowledge.New(st), st, nil
}

var answersCmd = &cobra.Command{
	Use:   "answers",
	Short: "Manage stored answers",
}

// -- answers list --

var answersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		typeFlag, _ := cmd.Flags().GetString("type")
		showSensitive, _ := cmd.Flags().GetBool("show-sensitive")

		var answers []model.AnswerValue
		if typeFlag != "" {
			t, ok := model.ParseTaxonomy(typeFlag)
			if !ok {
				return eris.Errorf("unknown answer type %q", typeFlag)
			}
			answers = kb.AnswersByType(ctx, t)
		} else {
			answers = kb.Answers(ctx)
		}
		if len(answers) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No answers stored.")
			return nil
		}
		formatAnswers(cmd.OutOrStdout(), answers, showSensitive)
		return nil
	},
}

// formatAnswers writes a table of answers. Sensitive values are masked
// unless showSensitive is set.
func formatAnswers(w io.Writer, answers []model.AnswerValue, showSensitive bool) {
	sorted := append([]model.AnswerValue(nil), answers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].Priority < sorted[j].Priority
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tVALUE\tALIASES\tPRIORITY\tAUTOFILL")
	for _, a := range sorted {
		value := a.Value
		aliases := strings.Join(a.Aliases, ", ")
		if a.IsSensitive() && !showSensitive {
			value, aliases = "********", ""
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(a.ID), a.Type, value, aliases, a.Priority, yesNo(a.AutofillAllowed))
	}
	_ = tw.Flush()
}

// -- answers add --

var answersAddCmd = &cobra.Command{
	Use:   "add <type> <value>",
	Short: "Add an answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t, ok := model.ParseTaxonomy(args[0])
		if !ok || t == model.TaxonomyUnknown {
			return eris.Errorf("unknown answer type %q", args[0])
		}
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		display, _ := cmd.Flags().GetString("display")
		aliases, _ := cmd.Flags().GetStringSlice("alias")
		priority, _ := cmd.Flags().GetInt("priority")

		a, err := kb.AddAnswer(ctx, knowledge.AnswerInput{
			Type:     t,
			Value:    args[1],
			Display:  display,
			Aliases:  aliases,
			Priority: priority,
		})
		if err != nil {
			return eris.Wrap(err, "answers add")
		}
		kb.Log(ctx, "", model.ActivityAnswer, fmt.Sprintf("added %s answer %s", a.Type, a.ID))
		fmt.Fprintln(cmd.OutOrStdout(), a.ID)
		if a.IsSensitive() {
			fmt.Fprintln(cmd.ErrOrStderr(), "Sensitive answer stored with autofill off; enable with `answers allow`.")
		}
		return nil
	},
}

// -- answers edit --

var answersEditCmd = &cobra.Command{
	Use:   "edit <answer-id>",
	Short: "Edit an answer's value, display text, aliases or priority",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var patch knowledge.AnswerPatch
		if cmd.Flags().Changed("value") {
			v, _ := cmd.Flags().GetString("value")
			patch.Value = &v
		}
		if cmd.Flags().Changed("display") {
			v, _ := cmd.Flags().GetString("display")
			patch.Display = &v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			patch.Priority = &v
		}
		patch.Aliases, _ = cmd.Flags().GetStringSlice("alias")

		a, err := kb.UpdateAnswer(ctx, args[0], patch)
		if err != nil {
			return eris.Wrap(err, "answers edit")
		}
		kb.Log(ctx, "", model.ActivityAnswer, fmt.Sprintf("edited %s answer %s", a.Type, a.ID))
		return nil
	},
}

// -- answers delete --

var answersDeleteCmd = &cobra.Command{
	Use:   "delete <answer-id>",
	Short: "Delete an answer and its observations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := kb.DeleteAnswer(ctx, args[0]); err != nil {
			return eris.Wrap(err, "answers delete")
		}
		kb.Log(ctx, "", model.ActivityAnswer, "deleted answer "+args[0])
		return nil
	},
}

// -- answers allow --

var answersAllowCmd = &cobra.Command{
	Use:   "allow <answer-id>",
	Short: "Allow (or with --deny, forbid) autofill of an answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, st, err := openKB(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deny, _ := cmd.Flags().GetBool("deny")
		a, err := kb.SetAutofillAllowed(ctx, args[0], !deny)
		if err != nil {
			return eris.Wrap(err, "answers allow")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s autofill %s\n", a.ID, onOff(a.AutofillAllowed))
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	answersListCmd.Flags().String("type", "", "only list answers of this type")
	answersListCmd.Flags().Bool("show-sensitive", false, "print sensitive values instead of masking them")

	answersAddCmd.Flags().String("display", "", "display text")
	answersAddCmd.Flags().StringSlice("alias", nil, "alternative wording (repeatable)")
	answersAddCmd.Flags().Int("priority", 0, "order within education/experience entries (0 = most recent)")

	answersEditCmd.Flags().String("value", "", "new value (the old one is kept as an alias)")
	answersEditCmd.Flags().String("display", "", "display text")
	answersEditCmd.Flags().StringSlice("alias", nil, "alias to add (repeatable)")
	answersEditCmd.Flags().Int("priority", 0, "order within education/experience entries")

	answersAllowCmd.Flags().Bool("deny", false, "disallow autofill instead")

	answersCmd.AddCommand(answersListCmd, answersAddCmd, answersEditCmd, answersDeleteCmd, answersAllowCmd)
	rootCmd.AddCommand(answersCmd)
}
