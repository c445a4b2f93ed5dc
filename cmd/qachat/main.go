// Command qachat is a terminal client for the question-answering service.
//
// Run without arguments to start the interactive chat. Subcommands perform
// one-shot requests against the same service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bhandras/qachat/internal/config"
	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/internal/presence"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/bhandras/qachat/internal/version"
	"github.com/bhandras/qachat/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the resolved configuration from the root command's pre-run
// hook to the subcommands.
type app struct {
	cfg *config.Config

	serverFlag    string
	levelFlag     string
	debugFlag     bool
	ephemeralFlag bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "qachat",
		Short: "Chat with the question-answering service",
		Long: `qachat keeps a conversation with the question-answering service.

Run without arguments to start the interactive chat. Inside the chat:
  /new        start a new session
  /init       retry the readiness handshake
  /history    reload and print the stored history
  /quick [N]  list the quick questions, or send number N
  /mood       show the assistant presence
  /status     show the last health probe
  /quit       leave

Configuration comes from ~/.qachat/config.yaml, a .env file and the
environment (QACHAT_SERVER_URL, QACHAT_HOME, QACHAT_LOG_LEVEL, DEBUG).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.serverFlag, "server", "", "service base URL (overrides QACHAT_SERVER_URL)")
	flags.StringVar(&a.levelFlag, "log-level", "", "trace, debug, info, warn or error")
	flags.BoolVar(&a.debugFlag, "debug", false, "enable debug logging")
	root.Flags().BoolVar(&a.ephemeralFlag, "ephemeral", false, "keep the session in memory only")

	root.AddCommand(
		a.healthCmd(),
		a.historyCmd(),
		a.newSessionCmd(),
		a.analyticsCmd(),
		a.statsCmd(),
		a.evaluateCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.serverFlag != "" {
		cfg.ServerURL = strings.TrimRight(strings.TrimSpace(a.serverFlag), "/")
	}
	if a.debugFlag {
		cfg.Debug = true
		if cfg.LogLevel == "info" {
			cfg.LogLevel = "debug"
		}
	}
	if a.levelFlag != "" {
		cfg.LogLevel = a.levelFlag
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.Debugf("config: server=%s home=%s", cfg.ServerURL, cfg.Home)

	a.cfg = cfg
	return nil
}

func (a *app) client() *gateway.Client {
	return gateway.New(a.cfg.ServerURL,
		gateway.WithTimeout(a.cfg.HTTPTimeout),
		gateway.WithDebug(logger.Enabled(logger.LevelTrace)),
	)
}

func (a *app) store() (*storage.FileKV, error) {
	return storage.NewFileKV(a.cfg.StatePath)
}

// chatStore picks the store for an interactive chat. An unwritable state
// file degrades to memory so the chat still runs; persisted reports which
// one was chosen.
func (a *app) chatStore() (kv storage.KV, persisted bool) {
	if a.ephemeralFlag {
		return storage.NewMemoryKV(), false
	}
	file, err := a.store()
	if err == nil {
		err = storage.VerifyWritable(file)
	}
	if err != nil {
		logger.Warnf("storage: %v; keeping the session in memory", err)
		return storage.NewMemoryKV(), false
	}
	return file, true
}

func (a *app) presenceConfig() presence.Config {
	p := a.cfg.Presence
	return presence.Config{
		GreetingDelay:       p.GreetingDelay,
		GreetingDuration:    p.GreetingDuration,
		EngagementMinDelay:  p.EngagementMinDelay,
		EngagementMaxDelay:  p.EngagementMaxDelay,
		EngagementDuration:  p.EngagementDuration,
		FarewellDuration:    p.FarewellDuration,
		EngagementThreshold: p.EngagementThreshold,
		GreetingKeywords:    p.GreetingKeywords,
		FarewellKeywords:    p.FarewellKeywords,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qachat %s\n", version.Full())
		},
	}
}
