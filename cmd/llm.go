package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/formpilot/internal/llm"
	"github.com/sells-group/formpilot/internal/secure"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Manage the encrypted model provider settings",
}

var llmShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show provider settings with the key redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, found, err := llm.LoadSettings(ctx, secure.NewVault(st, keyProvider()))
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.ErrOrStderr(), "No provider configured; remote classification is off.")
			return nil
		}
		formatSettings(cmd.OutOrStdout(), s.Redacted())
		return nil
	},
}

var llmSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store provider settings (the API key is read from --key-env or stdin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")
		baseURL, _ := cmd.Flags().GetString("base-url")
		keyEnv, _ := cmd.Flags().GetString("key-env")

		key, err := readAPIKey(cmd.InOrStdin(), keyEnv)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s := llm.Settings{Provider: provider, APIKey: key, BaseURL: baseURL, Model: model}
		if err := llm.SaveSettings(ctx, secure.NewVault(st, keyProvider()), s); err != nil {
			return err
		}
		formatSettings(cmd.OutOrStdout(), s.Redacted())
		return nil
	},
}

// readAPIKey takes the key from the named environment variable, or the
// first line of r when env is empty.
func readAPIKey(r io.Reader, env string) (string, error) {
	if env != "" {
		key := strings.TrimSpace(os.Getenv(env))
		if key == "" {
			return "", eris.Errorf("environment variable %s is empty", env)
		}
		return key, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", eris.Wrap(err, "read api key")
	}
	key, _, _ := strings.Cut(string(data), "\n")
	if key = strings.TrimSpace(key); key == "" {
		return "", eris.New("api key is required on stdin or via --key-env")
	}
	return key, nil
}

func formatSettings(w io.Writer, s llm.Settings) {
	fmt.Fprintf(w, "provider: %s\n", s.Provider)
	fmt.Fprintf(w, "api key:  %s\n", s.APIKey)
	if s.Model != "" {
		fmt.Fprintf(w, "model:    %s\n", s.Model)
	}
	if s.BaseURL != "" {
		fmt.Fprintf(w, "base url: %s\n", s.BaseURL)
	}
}

func init() {
	llmSetCmd.Flags().String("provider", "anthropic", "anthropic or openai")
	llmSetCmd.Flags().String("model", "", "model name (defaults to llm.model)")
	llmSetCmd.Flags().String("base-url", "", "API base url for openai-compatible providers")
	llmSetCmd.Flags().String("key-env", "", "read the API key from this environment variable instead of stdin")
	llmCmd.AddCommand(llmShowCmd, llmSetCmd)
	rootCmd.AddCommand(llmCmd)
}
