// statefultalk is the command-line client: manage the API key and shared
// profile, browse characters, and chat in the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/characters"
	"github.com/ashureev/statefultalk/internal/config"
	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/ashureev/statefultalk/internal/session"
	"github.com/ashureev/statefultalk/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs. It is populated in PersistentPreRunE.
type app struct {
	cfg      *config.Config
	repo     store.Repository
	sessions *session.Registry
	dir      *characters.Directory
	resolver *agents.Resolver
	logger   *slog.Logger

	// Overridable in tests.
	factory letta.Factory
	newRepo func(path string) (store.Repository, error)

	ephemeral bool
	verbose   bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "statefultalk",
		Short: "Chat with characters backed by stateful agents",
		Long: `statefultalk talks to characters whose memory lives on the Letta platform.

Each character is bound to a remote agent named character_<handle>. All
agents share one user profile block, so what one character learns about you
the others know too.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.printNotices(cmd.ErrOrStderr())
			a.close()
		},
	}
	root.PersistentFlags().BoolVar(&a.ephemeral, "ephemeral", false, "keep the API key in memory only")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the shared user profile",
	}
	profileCmd.AddCommand(newProfileShowCmd(a), newProfileSetCmd(a))

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newCharactersCmd(a),
		newAgentsCmd(a),
		profileCmd,
		newResetCmd(a),
		newChatCmd(a),
	)
	return root
}

func (a *app) init(stderr io.Writer) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil {
		a.logger.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg

	switch {
	case a.ephemeral:
		a.repo = store.NewMemory()
	case a.newRepo != nil:
		a.repo, err = a.newRepo(cfg.DBPath)
	default:
		a.repo, err = store.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}

	if cfg.CharactersFile != "" {
		a.dir, err = characters.LoadFile(cfg.CharactersFile)
	} else {
		a.dir, err = characters.Bundled()
	}
	if err != nil {
		return fmt.Errorf("load characters: %w", err)
	}

	if a.factory == nil {
		a.factory = letta.NewFactory(cfg.LettaClientConfig())
	}
	a.sessions = session.NewRegistry(a.repo, a.factory, notify.NewCenter(cfg.Notify.QueueSize, a.logger), a.logger)
	a.resolver = agents.NewResolver(a.dir, agents.Options{
		Model:     cfg.Agent.Model,
		Embedding: cfg.Agent.Embedding,
		Tools:     cfg.Agent.Tools,
	}, a.logger)
	return nil
}

func (a *app) close() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("Failed to close preferences", "error", err)
	}
}

// session returns the CLI device session.
func (a *app) session(ctx context.Context) (*session.Store, error) {
	return a.sessions.Get(ctx, identity.CLIDeviceID)
}

// client returns the session and its remote client, making sure the shared
// profile block is known.
func (a *app) client(ctx context.Context) (*session.Store, letta.Platform, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.Client()
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run `statefultalk login <key>` first)", err)
	}
	if s.SharedProfileBlockID() == "" {
		s.FindOrCreateSharedProfileBlock(ctx, client)
	}
	return s, client, nil
}

func (a *app) drainNotices() []notify.Notice {
	if a.sessions == nil {
		return nil
	}
	return a.sessions.Notices().Drain(identity.CLIDeviceID)
}

func (a *app) printNotices(w io.Writer) {
	for _, n := range a.drainNotices() {
		prefix := ""
		if n.Variant == notify.VariantDestructive {
			prefix = "error: "
		}
		line := prefix + n.Title
		if n.Description != "" {
			line += ": " + n.Description
		}
		fmt.Fprintln(w, line)
	}
}
