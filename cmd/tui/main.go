package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/semidark/aichat/internal/tui"
)

func main() {
	var (
		serverURL string
		plain     bool
	)

	rootCmd := &cobra.Command{
		Use:          "aichat-tui",
		Short:        "Terminal client for the aichat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := tui.NewChatClient(serverURL)
			if err != nil {
				return err
			}

			// fall back to line mode when output is piped
			if plain || !term.IsTerminal(os.Stdout.Fd()) {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()

				return tui.RunPlain(ctx, client, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			p := tea.NewProgram(tui.NewModel(client), tea.WithAltScreen(), tea.WithMouseCellMotion())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running aichat-tui: %w", err)
			}

			return nil
		},
	}

	defaultURL := os.Getenv("AICHAT_SERVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.Flags().StringVarP(&serverURL, "server", "s", defaultURL, "base url of the aichat server")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "line mode without the full-screen interface")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
