package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/health"
	"github.com/bhandras/qachat/internal/presence"
	"github.com/bhandras/qachat/internal/session"
	"github.com/bhandras/qachat/internal/version"
	"github.com/bhandras/qachat/pkg/logger"
)

// repl is one interactive chat: the orchestrator, the presence and the
// health poller share a console.
type repl struct {
	con        *console
	transcript *transcript
	orch       *session.Orchestrator
	machine    *presence.Machine
	hub        *presence.ActivityHub
	poller     *health.Poller
	quick      []string
}

func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	if a.cfg.LogFile != "" {
		logFile := logger.RotatingFile(a.cfg.LogFile)
		logger.SetOutput(logFile)
		defer func() {
			logger.SetOutput(os.Stderr)
			_ = logFile.Close()
		}()
	}

	kv, persisted := a.chatStore()
	client := a.client()

	shared := chat.NewShared()
	defer shared.Close()

	orch, err := session.New(client, kv, shared)
	if err != nil {
		return err
	}
	defer orch.Close()

	con := newConsole(out)
	r := &repl{
		con:        con,
		transcript: newTranscript(con),
		orch:       orch,
		hub:        presence.DefaultHub(),
		quick:      a.cfg.QuickQuestions,
	}

	r.machine = presence.New(shared, r.hub, a.presenceConfig())
	defer r.machine.Close()
	defer r.machine.OnChange(con.mood)()

	r.poller = health.NewPoller(client, a.cfg.HealthInterval, con.status)
	r.poller.Start(ctx)
	defer r.poller.Stop()

	defer shared.Subscribe(r.transcript.update)()

	con.printf("qachat %s, server %s\nsession %s\nType /help for commands.\n",
		version.Version(), a.cfg.ServerURL, orch.SessionID())
	if !persisted {
		con.printf("The session is kept in memory and ends with this chat.\n")
	}

	r.machine.Mount()
	defer r.machine.Unmount()

	if err := orch.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		con.printf("The service is not ready: %v\nType /init to retry.\n", err)
	}
	if err := r.transcript.waitSettled(ctx, orch.Snapshot().Version); err != nil {
		return nil
	}
	return r.loop(ctx, in)
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warnf("chat: reading input: %v", err)
		}
	}()

	for {
		r.con.printf("> ")
		var line string
		select {
		case <-ctx.Done():
			r.con.printf("\n")
			return nil
		case l, ok := <-lines:
			if !ok {
				r.con.printf("\n")
				return nil
			}
			line = l
		}

		r.hub.Publish(presence.ActivityKey)
		quit, err := r.handle(ctx, strings.TrimSpace(line))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.con.printf("%v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the chat should end.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.help()
	case "/new":
		id, err := r.orch.ClearSession()
		if id != "" {
			r.con.printf("new session %s\n", id)
		}
		return false, err
	case "/init":
		if err := r.orch.Initialize(ctx); err != nil {
			return false, fmt.Errorf("initialization failed: %w", err)
		}
		r.con.printf("the service is ready\n")
	case "/history":
		r.transcript.reset()
		if err := r.orch.LoadHistory(ctx, ""); err != nil {
			return false, fmt.Errorf("history unavailable: %w", err)
		}
		if len(r.orch.Snapshot().Messages) == 0 {
			r.con.printf("no messages yet\n")
		}
		return false, r.transcript.waitSettled(ctx, r.orch.Snapshot().Version)
	case "/quick":
		return false, r.quickQuestion(ctx, arg)
	case "/mood":
		r.con.printf("mood: %s\n", r.machine.Mood())
	case "/status":
		r.con.printf("service: %s\n", r.poller.Status())
	default:
		r.con.printf("unknown command %s\n", name)
		r.help()
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, text string) error {
	err := r.orch.Send(text)
	switch {
	case errors.Is(err, session.ErrBlankMessage):
		return nil
	case errors.Is(err, session.ErrNotReady):
		return errors.New("the service is not ready; type /init to retry")
	case err != nil:
		return err
	}
	return r.transcript.waitSettled(ctx, r.orch.Snapshot().Version)
}

func (r *repl) quickQuestion(ctx context.Context, arg string) error {
	if len(r.quick) == 0 {
		r.con.printf("no quick questions configured\n")
		return nil
	}
	if arg == "" {
		for i, q := range r.quick {
			r.con.printf("  %d. %s\n", i+1, q)
		}
		return nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.quick) {
		return fmt.Errorf("pick a quick question between 1 and %d", len(r.quick))
	}
	q := r.quick[n-1]
	r.con.printf("you> %s\n", q)
	return r.send(ctx, q)
}

func (r *repl) help() {
	r.con.printf(`commands:
  /new        start a new session
  /init       retry the readiness handshake
  /history    reload and print the stored history
  /quick [N]  list the quick questions, or send number N
  /mood       show the assistant presence
  /status     show the last health probe
  /quit       leave
`)
}
