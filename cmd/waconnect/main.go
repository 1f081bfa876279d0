// waconnect relays a WhatsApp Web session to local views.
//
// The server owns the session; views connect to it to watch pairing,
// read incoming messages and send text messages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jxucoder/waconnect/internal/config"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "waconnect",
	Short: "waconnect - WhatsApp session relay",
	Long: `waconnect links a WhatsApp account as a companion device and relays
its session to local views.

  waconnect serve                               Start the server
  waconnect chat                                Open the terminal view
  waconnect send 79123456789 "hello"            Send a text message
  waconnect status                              Show the session phase
  waconnect logs --follow                       Stream session events`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("server") {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		serverURL = cfg.ServerURL
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "waconnect server URL (default $WACONNECT_SERVER, the config file's server key, or http://localhost:3000)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
