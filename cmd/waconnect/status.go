package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/view"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session phase",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	logsFollow bool
	logsAfter  int64
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View session events",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow event output")
	logsCmd.Flags().Int64Var(&logsAfter, "after", 0, "Only show stored events after this id")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := view.NewClient(serverURL).Status(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Phase:    %s\n", phaseIcon(st.Phase))
	if st.QR != "" {
		fmt.Printf("QR:       %s\n", model.Truncate(st.QR, 60))
	}
	if st.LastDisconnectReason != "" {
		fmt.Printf("Last disconnect: %s\n", st.LastDisconnectReason)
	}
	if st.LastAuthError != "" {
		fmt.Printf("Last auth error: %s\n", st.LastAuthError)
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	url := serverURL + "/events?after=" + strconv.FormatInt(logsAfter, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	// Without --follow, print the replay and stop shortly after.
	if !logsFollow {
		go func() {
			<-time.After(time.Second)
			cancel()
		}()
	}

	var id string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			var ev model.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			printEvent(id, &ev)
			id = ""
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func printEvent(id string, ev *model.Event) {
	prefix := "      "
	if id != "" {
		prefix = fmt.Sprintf("[%4s]", id)
	}
	switch ev.Type {
	case model.EventMessage:
		if ev.Message == nil {
			return
		}
		from := ev.Message.Origin
		if name, ok := ev.Message.DisplayName(); ok {
			from = name + " in " + from
		}
		fmt.Printf("%s message from %s %s: %s\n", prefix, from,
			humanize.Time(ev.Message.Timestamp), model.Truncate(ev.Message.Body, 120))
	case model.EventQR:
		fmt.Printf("%s qr (run `waconnect chat` to scan)\n", prefix)
	default:
		if ev.Text != "" {
			fmt.Printf("%s %s: %s\n", prefix, ev.Type, ev.Text)
		} else {
			fmt.Printf("%s %s\n", prefix, ev.Type)
		}
	}
}

func phaseIcon(p model.Phase) string {
	switch p {
	case model.PhaseReady:
		return "● ready"
	case model.PhaseAwaitingScan:
		return "◌ awaiting scan"
	case model.PhaseAuthenticated:
		return "◐ authenticated"
	case model.PhaseDisconnected:
		return "○ disconnected"
	case model.PhaseAuthFailed:
		return "✕ auth failed"
	default:
		return "… " + string(p)
	}
}
