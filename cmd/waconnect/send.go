package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/view"
)

var sendCmd = &cobra.Command{
	Use:   "send <phone-number> <message>",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	to, err := model.NormalizeRecipient(args[0], "")
	if err != nil {
		return err
	}
	body := strings.Join(args[1:], " ")

	id, err := view.NewClient(serverURL).Send(context.Background(), to, body)
	if err != nil {
		return err
	}
	fmt.Printf("Sent to %s (id %s)\n", to, id)
	return nil
}
