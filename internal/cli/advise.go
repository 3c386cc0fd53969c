package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func adviseCmd(opts *options) *cobra.Command {
	var (
		s      steps
		apiKey string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Ask the language model for advice on the simulated state",
		Long: `Sends the current metrics and applied treatments to the configured
generateContent endpoint. The key comes from --api-key, then MEDTWIN_LLM_API_KEY
or GEMINI_API_KEY, then an interactive prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(true)
			if err != nil {
				return err
			}
			defer a.Logger.Sync()

			if err := s.run(a.Session); err != nil {
				return err
			}

			if apiKey == "" && a.Config.LLM.APIKey == "" {
				apiKey, err = promptKey(cmd)
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.LLM.TimeoutDuration()+5*time.Second)
			defer cancel()

			advice := a.Advisor.Ask(ctx, a.Session.Snapshot(), apiKey)
			if advice.Error != "" {
				return errors.New(advice.Error)
			}

			out := advice.Text
			if !raw {
				if rendered, err := renderMarkdown(advice.Text); err == nil {
					out = rendered
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
			return nil
		},
	}

	s.register(cmd)
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for this request")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the answer without markdown rendering")
	return cmd
}

// promptKey reads a key without echo. Without a terminal it returns an empty
// key and the advisor reports the missing credential.
func promptKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Gemini API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(string(key)), nil
}

func renderMarkdown(text string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}
