package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lanlink/internal/cipher"
	"lanlink/internal/config"
	"lanlink/internal/console"
	"lanlink/internal/metrics"
	"lanlink/internal/session"
	"lanlink/internal/transport"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lanlink",
		Short: "Encrypted broadcast chat for the local network.",
		Long: `lanlink broadcasts short encrypted messages to every host on the subnet
and shows what it hears from everyone else.

Commands inside the chat:
  /nick <name>        set your display name (required before sending)
  /key <passphrase>   switch the shared key
  /help               list commands

Every peer must share the same passphrase. The built-in default key is
public, and messages are not authenticated: treat this as a convenience,
not a secure channel.`,
		SilenceUsage: true,
		RunE:         run,
	}

	f := cmd.Flags()
	f.String("broadcast", config.DefaultBroadcast, "subnet broadcast address (LANLINK_BROADCAST)")
	f.Int("port", transport.DefaultPort, "UDP port to listen on and broadcast to (LANLINK_PORT)")
	f.String("name", config.DefaultName, "initial display name (LANLINK_NAME)")
	f.String("key", config.DefaultKey, "initial shared passphrase (LANLINK_KEY)")
	f.String("kdf", cipher.KDFMD5, "key derivation: md5 (compatible) or hkdf (LANLINK_KDF)")
	f.String("log-file", config.DefaultLogFile, "log file, empty to disable (LANLINK_LOG_FILE)")
	f.Bool("debug", false, "verbose, human-readable logging (LANLINK_DEBUG)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (LANLINK_METRICS_ADDR)")
	f.Int("scrollback", console.DefaultScrollback, "history lines kept on screen (LANLINK_SCROLLBACK)")
	return cmd
}

// loadConfig layers explicitly set flags over the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("broadcast") {
		cfg.Broadcast, _ = f.GetString("broadcast")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("name") {
		cfg.Name, _ = f.GetString("name")
	}
	if f.Changed("key") {
		cfg.Key, _ = f.GetString("key")
	}
	if f.Changed("kdf") {
		cfg.KDF, _ = f.GetString("kdf")
	}
	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetBool("debug")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("scrollback") {
		cfg.Scrollback, _ = f.GetInt("scrollback")
	}
	return cfg, cfg.Validate()
}

// newLogger writes to a file because the terminal belongs to the UI.
func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	var logger zerolog.Logger
	if cfg.Debug {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel)
	} else {
		logger = zerolog.New(f).Level(zerolog.InfoLevel)
	}
	logger = logger.With().
		Timestamp().
		Str("instance", uuid.NewString()).
		Logger()
	return logger, f, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WeakKey() {
		logger.Warn().Msg("using the built-in shared key")
	}
	if cfg.KDF != cipher.KDFMD5 {
		logger.Warn().Str("kdf", cfg.KDF).Msg("non-default key derivation; md5 peers cannot read this traffic")
	}

	if cfg.MetricsAddr != "" {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
	}

	id, err := session.NewIdentity(cfg.Name, cfg.Key, cfg.KDF)
	if err != nil {
		return err
	}

	r := newRedrawer()
	con := console.New(cfg.Scrollback, r.render)
	tr := transport.NewUDP(cfg.Broadcast, cfg.Port, logger)
	sess := session.New(session.Config{
		Transport:   tr,
		Console:     con,
		Identity:    id,
		DefaultName: config.DefaultName,
		WeakKey:     config.DefaultKey,
		Logger:      logger,
	})

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, transport.ErrBind) {
			logger.Error().Err(err).Msg("startup failed")
			return fmt.Errorf("%w (is another lanlink already running on this port?)", err)
		}
		return err
	}
	// The listener is not joined; closing the socket is the only teardown.
	defer sess.Close()

	p := tea.NewProgram(initialModel(ctx, sess, r, con.Redraw), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal: %w", err)
	}
	logger.Info().Msg("exiting")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
