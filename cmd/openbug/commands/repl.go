// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/openbug-ai/cli/chat"
	"github.com/openbug-ai/cli/relay"
)

// chatSession is the part of *chat.Session the REPL drives.
type chatSession interface {
	Connect(ctx context.Context) error
	Ask(ctx context.Context, text string) error
	Interrupt()
	Turns() []chat.Turn
	Status() chat.SessionStatus
}

type replStyles struct {
	assistant lipgloss.Style
	tool      lipgloss.Style
	notice    lipgloss.Style
	failure   lipgloss.Style
	banner    lipgloss.Style
}

func newREPLStyles() replStyles {
	return replStyles{
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		notice:    lipgloss.NewStyle().Faint(true),
		failure:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		banner: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1),
	}
}

// repl renders a chat session as a scrolling transcript. Output from
// the input loop, the relay watcher and session callbacks is
// serialized by mutex.
type repl struct {
	session     chatSession
	out         io.Writer
	interactive bool
	styles      replStyles

	// changes has capacity one; notify coalesces bursts.
	changes chan struct{}

	mutex sync.Mutex
	// printed counts transcript turns already rendered.
	printed     int
	state       chat.State
	loading     bool
	streamError string
	bannerText  string
	// connectRequested is set once a service appears and the backend
	// connection has been opened.
	connectRequested bool
	relayDown        bool
}

func newREPL(out io.Writer, interactive bool) *repl {
	return &repl{
		out:         out,
		interactive: interactive,
		styles:      newREPLStyles(),
		changes:     make(chan struct{}, 1),
	}
}

// notify is the session's OnChange callback.
func (r *repl) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// handleLine runs one input line. It reports whether the REPL should
// exit.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/retry":
		if err := r.session.Connect(ctx); err != nil {
			r.failuref("%v", err)
		}
		return false
	case "/interrupt":
		r.session.Interrupt()
		r.noticef("interrupted; /retry to reconnect")
		return false
	case "/help":
		r.noticef("/retry  /interrupt  /quit")
		return false
	}
	if strings.HasPrefix(line, "/") {
		r.failuref("unknown command %s (try /help)", strings.Fields(line)[0])
		return false
	}

	if err := r.session.Ask(ctx, line); err != nil {
		if errors.Is(err, chat.ErrNotConnected) {
			r.failuref("not connected (%s); /retry to reconnect", r.session.Status().State)
			return false
		}
		r.failuref("%v", err)
	}
	return false
}

// refresh prints whatever changed since the last call: new response
// turns, the loading indicator, stream errors, the connection banner
// and connection state transitions.
func (r *repl) refresh() {
	status := r.session.Status()
	turns := r.session.Turns()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// A rejected question is taken back out of the transcript.
	r.printed = min(r.printed, len(turns))
	for _, group := range chat.GroupChunks(turns[r.printed:]) {
		r.printGroupLocked(group)
	}
	r.printed = len(turns)

	if status.Loading && !r.loading {
		r.printLocked(r.styles.notice.Render("thinking..."))
	}
	r.loading = status.Loading

	if status.StreamError != "" && status.StreamError != r.streamError {
		r.printLocked(r.styles.failure.Render("response failed: " + status.StreamError))
	}
	r.streamError = status.StreamError

	bannerText := ""
	if status.Err != nil {
		bannerText = status.Err.Error()
	}
	if bannerText != "" && bannerText != r.bannerText {
		r.printLocked(r.styles.banner.Render(bannerText))
	}
	r.bannerText = bannerText

	if status.State != r.state {
		r.state = status.State
		switch status.State {
		case chat.Ready:
			target := status.Service.Name
			if target == "" {
				target = status.Service.Path
			}
			r.printLocked(r.styles.notice.Render("connected; tools run against " + target))
		case chat.Reconnecting:
			r.printLocked(r.styles.notice.Render(fmt.Sprintf("connection lost, reconnecting (%d failed attempts)", status.Failures)))
		case chat.Terminated:
			r.printLocked(r.styles.notice.Render("disconnected; /retry to reconnect"))
		}
	}
}

func (r *repl) printGroupLocked(group []chat.Turn) {
	role := group[0].Role
	if role == chat.RoleUser {
		// Already on screen as typed.
		return
	}
	text := strings.TrimSpace(chat.DisplayContent(group))
	if text == "" {
		return
	}
	label := r.styles.assistant.Render("openbug ›")
	if role == chat.RoleTool {
		label = r.styles.tool.Render("tool ›")
	}
	r.printLocked(label + " " + text)
}

// servicesChanged opens the backend connection the first time a
// service is attached.
func (r *repl) servicesChanged(ctx context.Context, services []relay.Service) {
	r.mutex.Lock()
	recovered := r.relayDown
	r.relayDown = false
	first := !r.connectRequested && len(services) > 0
	if first {
		r.connectRequested = true
	}
	if recovered {
		r.printLocked(r.styles.notice.Render("relay reachable again"))
	}
	if first {
		r.printLocked(r.styles.notice.Render(fmt.Sprintf("%d service(s) attached, connecting", len(services))))
	}
	r.mutex.Unlock()

	if first {
		if err := r.session.Connect(ctx); err != nil {
			r.failuref("%v", err)
		}
	}
}

// relayLost is the relay watcher's OnDisconnect callback. Only the
// first failure of an outage is reported.
func (r *repl) relayLost(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.relayDown {
		return
	}
	r.relayDown = true
	r.printLocked(r.styles.failure.Render(fmt.Sprintf("relay unreachable (%v); retrying every %s", err, relay.WatchRetryInterval)))
}

func (r *repl) prompt() {
	if !r.interactive {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	fmt.Fprint(r.out, "> ")
}

func (r *repl) noticef(format string, args ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.printLocked(r.styles.notice.Render(fmt.Sprintf(format, args...)))
}

func (r *repl) failuref(format string, args ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.printLocked(r.styles.failure.Render(fmt.Sprintf(format, args...)))
}

func (r *repl) printLocked(text string) {
	fmt.Fprintln(r.out, text)
}
