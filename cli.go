package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lumenisola/obsidian-full-calendar/engine"
	"github.com/lumenisola/obsidian-full-calendar/httpd"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/settings"
	"github.com/lumenisola/obsidian-full-calendar/types"
	"github.com/lumenisola/obsidian-full-calendar/vault"
)

const defaultConfigPath = "calendar.yml"

// session is the assembled calendar stack shared by every command.
type session struct {
	cfg    *settings.Config
	vault  *vault.Vault
	engine *engine.Engine
}

// loadConfig reads the settings file and applies a -vault override.
func loadConfig(configPath, vaultDir string) (*settings.Config, error) {
	cfg, err := settings.Load(configPath)
	if err != nil {
		return nil, err
	}
	if vaultDir != "" {
		cfg.Vault = vaultDir
	}
	return cfg, nil
}

// newSession assembles the vault and the engine over a loaded
// configuration. Listeners are attached before the engine opens so no
// update is missed.
func newSession(cfg *settings.Config, log zerolog.Logger, listeners ...engine.Listener) (*session, error) {
	v, err := vault.Open(cfg.Vault,
		vault.WithLogger(log),
		vault.WithOpenCommand(cfg.OpenCommand),
	)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	opts := []engine.Option{engine.WithLogger(log)}
	for _, l := range listeners {
		opts = append(opts, engine.WithListener(l))
	}
	return &session{cfg: cfg, vault: v, engine: engine.New(v, cfg, opts...)}, nil
}

// runServe serves the widget contract: HTTP API, websocket, and the
// optional scheduled resync.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the settings file")
	vaultDir := fs.String("vault", "", "Vault root directory (overrides the settings file)")
	listen := fs.String("listen", "", "HTTP listen address (overrides the settings file)")
	verbose := fs.Bool("verbose", false, "Debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: obsidian-full-calendar serve [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Serves the calendar HTTP API and the live-update websocket.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	log := rootLogger(*verbose)

	cfg, err := loadConfig(*configPath, *vaultDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	hub := httpd.NewHub(cfg.AllowedOrigins, log)
	sess, err := newSession(cfg, log, hub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}

	checkVaultVersionControl(sess.cfg.Vault)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.vault.Watch(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	if err := sess.engine.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}

	var cr *cron.Cron
	if sess.cfg.Resync != "" {
		cr = cron.New()
		if _, err := cr.AddFunc(sess.cfg.Resync, func() {
			if err := sess.engine.Rebuild(context.Background()); err != nil {
				log.Warn().Err(err).Msg("scheduled resync failed")
			}
		}); err != nil {
			fmt.Fprintf(os.Stderr, "obsidian-full-calendar: invalid resync schedule %q: %v\n", sess.cfg.Resync, err)
			os.Exit(1)
		}
		cr.Start()
		log.Info().Str("schedule", sess.cfg.Resync).Msg("resync scheduled")
	}

	srv := httpd.New(sess.engine, sess.cfg, hub, log)
	httpSrv := &http.Server{Addr: sess.cfg.Listen, Handler: srv.Handler()}
	go func() {
		log.Info().
			Str("listen", sess.cfg.Listen).
			Str("vault", sess.cfg.Vault).
			Int("events", sess.engine.Model().Len()).
			Msg("calendar server up")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if cr != nil {
		<-cr.Stop().Done()
	}
	sess.engine.Close()
	hub.Close()
	sess.vault.Close()
}

// runMCP runs the MCP server on stdio over a watched vault session.
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the settings file")
	vaultDir := fs.String("vault", "", "Vault root directory (overrides the settings file)")
	readOnly := fs.Bool("read-only", false, "Disable all write operations")
	verbose := fs.Bool("verbose", false, "Debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: obsidian-full-calendar mcp [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the MCP server on stdio. Logs go to stderr.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	log := rootLogger(*verbose)

	cfg, err := loadConfig(*configPath, *vaultDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	sess, err := newSession(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}

	checkVaultVersionControl(sess.cfg.Vault)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.vault.Watch(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	if err := sess.engine.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		sess.engine.Close()
		sess.vault.Close()
	}()

	srv := newServer(sess.engine, *readOnly)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
}

// runScan prints every event in the vault as JSON, one-shot.
func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the settings file")
	vaultDir := fs.String("vault", "", "Vault root directory (overrides the settings file)")
	from := fs.String("from", "", "Only include events on or after this day (YYYY-MM-DD)")
	to := fs.String("to", "", "Only include events on or before this day (YYYY-MM-DD)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: obsidian-full-calendar scan [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Reads every local source once and prints the events as JSON.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	var after, before time.Time
	if *from != "" {
		d, ok := parser.Date(*from)
		if !ok {
			fmt.Fprintf(os.Stderr, "obsidian-full-calendar scan: invalid -from %q (use YYYY-MM-DD)\n", *from)
			os.Exit(1)
		}
		after = d
	}
	if *to != "" {
		d, ok := parser.Date(*to)
		if !ok {
			fmt.Fprintf(os.Stderr, "obsidian-full-calendar scan: invalid -to %q (use YYYY-MM-DD)\n", *to)
			os.Exit(1)
		}
		before = d.AddDate(0, 0, 1)
	}

	cfg, err := loadConfig(*configPath, *vaultDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	sess, err := newSession(cfg, rootLogger(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.engine.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		sess.engine.Close()
		sess.vault.Close()
	}()

	events := make([]types.Event, 0)
	for _, ev := range sess.engine.Model().Events() {
		if !after.IsZero() && ev.Start.Before(after) {
			continue
		}
		if !before.IsZero() && !ev.Start.Before(before) {
			continue
		}
		events = append(events, ev)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar scan: %v\n", err)
		os.Exit(1)
	}
}
