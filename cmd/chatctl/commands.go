package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

type cliOptions struct {
	plain     bool
	sessionID string
}

func newRootCmd(factory backendFactory) *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "chatctl",
		Short:        "Talk to the portfolio assistant from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.plain, "plain", false, "print answers without markdown rendering")

	ask := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, factory, func(ctx context.Context, b backend) error {
				return runAsk(ctx, cmd, b, opts, strings.Join(args, " "))
			})
		},
	}
	ask.Flags().StringVar(&opts.sessionID, "session", "", "continue an existing session")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation (/reset clears, /exit quits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, factory, func(ctx context.Context, b backend) error {
				return runChat(ctx, cmd, b, opts)
			})
		},
	}
	chat.Flags().StringVar(&opts.sessionID, "session", "", "continue an existing session")

	models := &cobra.Command{
		Use:   "models",
		Short: "List provider models that support generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, factory, func(ctx context.Context, b backend) error {
				return runModels(ctx, cmd, b)
			})
		},
	}

	prompt := &cobra.Command{
		Use:   "prompt",
		Short: "Print the assembled system instruction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, factory, func(_ context.Context, b backend) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), b.SystemInstruction())
				return err
			})
		},
	}

	root.AddCommand(ask, chat, models, prompt)
	return root
}

func withBackend(cmd *cobra.Command, factory backendFactory, fn func(context.Context, backend) error) error {
	ctx := usecase.WithChannel(cmd.Context(), usecase.ChannelCLI)
	b, err := factory(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func runAsk(ctx context.Context, cmd *cobra.Command, b backend, opts *cliOptions, question string) error {
	turn, err := b.Ask(ctx, domain.AskRequest{SessionID: opts.sessionID, Question: question})
	if err != nil {
		return err
	}
	printTurn(cmd, newRenderer(opts.plain), turn)
	if opts.sessionID == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", turn.SessionID)
	}
	return nil
}

func runChat(ctx context.Context, cmd *cobra.Command, b backend, opts *cliOptions) error {
	out := cmd.OutOrStdout()
	render := newRenderer(opts.plain)
	sessionID := opts.sessionID

	fmt.Fprintf(out, "Ask me anything! I'm powered by %s (%s). Type /exit to quit.\n", b.ModelName(), b.ProviderName())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if sessionID != "" {
				if err := b.Reset(ctx, sessionID); err != nil && !domain.IsKind(err, domain.ErrSessionNotFound) {
					return err
				}
			}
			sessionID = ""
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		turn, err := b.Ask(ctx, domain.AskRequest{SessionID: sessionID, Question: line})
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidInput) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}
			return err
		}
		sessionID = turn.SessionID
		printTurn(cmd, render, turn)
	}
}

func runModels(ctx context.Context, cmd *cobra.Command, b backend) error {
	models, err := b.ListModels(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "provider: %s, active model: %s\n", b.ProviderName(), b.ModelName())
	for _, m := range models {
		name := m.Name
		if m.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", m.Name, m.DisplayName)
		}
		fmt.Fprintf(out, "  %s\t%s\n", name, strings.Join(m.SupportedActions, ","))
	}
	return nil
}

func printTurn(cmd *cobra.Command, render func(string) string, turn *domain.ChatTurn) {
	_, _ = io.WriteString(cmd.OutOrStdout(), render(turn.Answer))
	if turn.Fallback {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: fallback reply (%s)\n", turn.FallbackReason)
	}
}

// newRenderer returns a markdown renderer for terminal output. Rendering
// problems degrade to the raw text.
func newRenderer(plain bool) func(string) string {
	raw := func(text string) string {
		if strings.HasSuffix(text, "\n") {
			return text
		}
		return text + "\n"
	}
	if plain {
		return raw
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return raw
	}
	return func(text string) string {
		out, err := renderer.Render(text)
		if err != nil {
			return raw(text)
		}
		return out
	}
}
