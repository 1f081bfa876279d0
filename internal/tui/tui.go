// Package tui is the terminal Session View. It renders view.State with
// bubbletea and drives the view reducer from the server's event channel.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	humanize "github.com/dustin/go-humanize"
	"github.com/mdp/qrterminal/v3"

	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/view"
)

// Sender issues the send-message command. *view.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Options configures a Model.
type Options struct {
	Variant view.Variant
	// AddressSuffix is appended to normalized recipients.
	AddressSuffix string
	// SendTimeout bounds each send command (default 60s).
	SendTimeout time.Duration
}

const (
	focusRecipient = iota
	focusBody
)

type eventMsg struct{ event *model.Event }

type channelClosedMsg struct{}

type sendResultMsg struct {
	pending   view.Pending
	messageID string
	err       error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	readyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle    = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("252"))
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	senderStyle   = lipgloss.NewStyle().Bold(true)
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timelineFrame = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238"))
)

// Model is the bubbletea model of the terminal view.
type Model struct {
	state  view.State
	opts   Options
	events <-chan *model.Event
	sender Sender

	recipient textinput.Model
	body      textinput.Model
	focus     int

	timeline viewport.Model
	spinner  spinner.Model
	width    int

	now func() time.Time
}

// NewModel creates the view model. events is the channel returned by
// view.Client.Connect.
func NewModel(events <-chan *model.Event, sender Sender, opts Options) Model {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 60 * time.Second
	}

	recipient := textinput.New()
	recipient.Placeholder = "79123456789"
	recipient.CharLimit = 64
	recipient.Focus()

	body := textinput.New()
	body.Placeholder = "Message"
	body.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		state:     view.NewState(),
		opts:      opts,
		events:    events,
		sender:    sender,
		recipient: recipient,
		body:      body,
		timeline:  viewport.New(80, 12),
		spinner:   sp,
		width:     80,
		now:       time.Now,
	}
}

// State returns the current view state.
func (m Model) State() view.State { return m.state }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, listenForEvent(m.events))
}

// listenForEvent blocks until the next event arrives on the channel.
func listenForEvent(ch <-chan *model.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (m Model) sendCmd(p view.Pending) tea.Cmd {
	sender, timeout := m.sender, m.opts.SendTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		id, err := sender.Send(ctx, p.To, p.Body)
		return sendResultMsg{pending: p, messageID: id, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = max(msg.Width-2, 20)
		m.timeline.Height = max(msg.Height-16, 3)
		m.refreshTimeline()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.state = view.Reduce(m.state, msg.event)
		m.refreshTimeline()
		return m, listenForEvent(m.events)

	case channelClosedMsg:
		return m, nil

	case sendResultMsg:
		m.state = view.CompleteSubmit(m.state, msg.pending, msg.err, m.now())
		if msg.err == nil {
			m.recipient.SetValue("")
			m.body.SetValue("")
			m.setFocus(focusRecipient)
		}
		m.refreshTimeline()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab:
		if m.focus == focusRecipient {
			m.setFocus(focusBody)
		} else {
			m.setFocus(focusRecipient)
		}
		return m, nil
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd
	}
	return m.updateInputs(msg)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.state.Sending {
		return m, nil
	}
	state, pending, err := view.BeginSubmit(m.state, m.recipient.Value(), m.body.Value(), m.opts.AddressSuffix)
	m.state = state
	if err != nil {
		return m, nil
	}
	return m, tea.Batch(m.sendCmd(pending), m.spinner.Tick)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state.Sending {
		return m, nil
	}
	var cmd tea.Cmd
	if m.focus == focusRecipient {
		m.recipient, cmd = m.recipient.Update(msg)
	} else {
		m.body, cmd = m.body.Update(msg)
	}
	m.state.Recipient = m.recipient.Value()
	m.state.Body = m.body.Value()
	return m, cmd
}

func (m *Model) setFocus(f int) {
	m.focus = f
	if f == focusRecipient {
		m.recipient.Focus()
		m.body.Blur()
	} else {
		m.body.Focus()
		m.recipient.Blur()
	}
}

func (m *Model) refreshTimeline() {
	if m.opts.Variant != view.Full {
		return
	}
	m.timeline.SetContent(renderTimeline(m.state.Timeline, m.now(), m.opts.AddressSuffix))
	m.timeline.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WhatsApp"))
	b.WriteString("  ")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if m.state.QR != "" {
		b.WriteString("Scan this code with WhatsApp on your phone:\n")
		b.WriteString(renderQR(m.state.QR))
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("To") + m.recipient.View() + "\n")
	b.WriteString(labelStyle.Render("Message") + m.body.View() + "\n")
	if m.state.Sending {
		b.WriteString(m.spinner.View() + " Sending...\n")
	}
	if m.state.LastError != "" {
		b.WriteString(errorStyle.Render("Error: "+m.state.LastError) + "\n")
	}

	if m.opts.Variant == view.Full {
		b.WriteString("\n")
		b.WriteString(timelineFrame.Render(m.timeline.View()))
		b.WriteString("\n")
	}

	send := "enter send"
	if !m.state.CanSubmit() {
		send = "enter send (disabled)"
	}
	b.WriteString(helpStyle.Render(send + " · tab switch field · pgup/pgdn scroll · esc quit"))
	return b.String()
}

func (m Model) renderStatus() string {
	switch m.state.Phase {
	case model.PhaseReady:
		return readyStyle.Render("● " + m.state.Status)
	case model.PhaseAuthFailed:
		return errorStyle.Render("✕ " + m.state.Status)
	case model.PhaseInitializing:
		return m.spinner.View() + " " + statusStyle.Render(m.state.Status)
	}
	return statusStyle.Render(m.state.Status)
}

func renderQR(payload string) string {
	var b strings.Builder
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, &b)
	return b.String()
}

func renderTimeline(t view.Timeline, now time.Time, suffix string) string {
	if t.Len() == 0 {
		return statusStyle.Render("No messages yet")
	}
	lines := make([]string, 0, t.Len())
	for _, msg := range t.Messages() {
		lines = append(lines, renderMessage(msg, now, suffix))
	}
	return strings.Join(lines, "\n")
}

func renderMessage(msg model.Message, now time.Time, suffix string) string {
	when := timeStyle.Render(humanize.RelTime(msg.Timestamp, now, "ago", "from now"))
	return when + " " + senderLabel(msg, suffix) + ": " + msg.Body
}

func senderLabel(msg model.Message, suffix string) string {
	if msg.Outbound {
		return selfStyle.Render("You")
	}
	if name, ok := msg.DisplayName(); ok {
		return senderStyle.Render(name) + timeStyle.Render(" in "+shortAddress(msg.Origin, suffix))
	}
	return senderStyle.Render(shortAddress(msg.Origin, suffix))
}

func shortAddress(addr, suffix string) string {
	if suffix == "" {
		suffix = model.UserSuffix
	}
	return strings.TrimSuffix(addr, suffix)
}
