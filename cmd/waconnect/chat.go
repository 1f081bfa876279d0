package main

import (
	"context"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jxucoder/waconnect/internal/tui"
	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/view"
)

var (
	chatVariant string
	chatCompact bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the terminal view",
	Long:  "Show pairing status and the QR code, receive messages and send text messages.",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatVariant, "variant", "full", "Layout: full or compact")
	chatCmd.Flags().BoolVar(&chatCompact, "compact", false, "Shorthand for --variant compact")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := view.NewClient(serverURL)
	defer client.Close()

	suffix := model.UserSuffix
	if st, err := client.Status(ctx); err == nil && st.AddressSuffix != "" {
		suffix = st.AddressSuffix
	}

	events, err := client.Connect(ctx)
	if err != nil {
		return err
	}

	if chatCompact {
		chatVariant = "compact"
	}
	variant := view.ParseVariant(chatVariant)

	// Log lines would corrupt the alternate screen.
	log.SetOutput(io.Discard)

	m := tui.NewModel(events, client, tui.Options{Variant: variant, AddressSuffix: suffix})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running view: %w", err)
	}
	return nil
}
