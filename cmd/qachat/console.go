package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/health"
	"github.com/bhandras/qachat/internal/presence"
)

const snippetRunes = 160

// console serializes writes from the input loop, the transcript, the
// presence listener and the health poller.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) message(m chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeMessage(c.out, m)
}

var moodLines = map[presence.Mood]string{
	presence.MoodInitialGreeting:  "(the assistant waves hello)",
	presence.MoodEngagementPrompt: "(the assistant wonders if you have another question)",
	presence.MoodFarewell:         "(the assistant waves goodbye)",
	presence.MoodComposing:        "(the assistant is typing...)",
}

func (c *console) mood(m presence.Mood) {
	if line, ok := moodLines[m]; ok {
		c.printf("%s\n", line)
	}
}

func (c *console) status(s health.Status) {
	c.printf("[service %s]\n", s)
}

func writeMessage(out io.Writer, m chat.Message) {
	switch {
	case m.Error:
		fmt.Fprintf(out, "! %s\n", m.Content)
		return
	case m.Role == chat.RoleUser:
		fmt.Fprintf(out, "you> %s\n", m.Content)
		return
	}

	fmt.Fprintf(out, "assistant> %s\n", m.Content)
	if m.Confidence > 0 {
		fmt.Fprintf(out, "  confidence %.2f\n", m.Confidence)
	}
	for i, src := range m.Sources {
		fmt.Fprintf(out, "  [%d] %.2f", i+1, src.Score)
		if len(src.Sections) > 0 {
			fmt.Fprintf(out, " %s", strings.Join(src.Sections, ", "))
		}
		fmt.Fprintln(out)
		if text := snippet(src.Text); text != "" {
			fmt.Fprintf(out, "      %s\n", text)
		}
	}
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "..."
}

// transcript prints log entries as snapshots arrive. The user's own typed
// line is not echoed back.
type transcript struct {
	con *console

	mu      sync.Mutex
	printed map[string]bool
	last    chat.Snapshot
	changed chan struct{}
}

func newTranscript(con *console) *transcript {
	return &transcript{
		con:     con,
		printed: make(map[string]bool),
		changed: make(chan struct{}),
	}
}

func (t *transcript) update(s chat.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(s.Messages) == 0 {
		t.printed = make(map[string]bool)
	}
	for i, m := range s.Messages {
		if t.printed[m.ID] {
			continue
		}
		t.printed[m.ID] = true
		typed := m.Role == chat.RoleUser && s.Loading && i == len(s.Messages)-1
		if !typed {
			t.con.message(m)
		}
	}

	t.last = s
	close(t.changed)
	t.changed = make(chan struct{})
}

// reset forgets what was printed so the next snapshot prints in full.
func (t *transcript) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printed = make(map[string]bool)
}

// waitSettled blocks until a snapshot at least as new as version has been
// printed and no request is outstanding.
func (t *transcript) waitSettled(ctx context.Context, version uint64) error {
	for {
		t.mu.Lock()
		last, changed := t.last, t.changed
		t.mu.Unlock()
		if last.Version >= version && !last.Loading {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
