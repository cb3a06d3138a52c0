package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatguard/config"
	"chatguard/hook"
	"chatguard/metrics"
	"chatguard/policy"
	"chatguard/store"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const (
	inputMessage = "message"
	inputMuteAll = "mute_all"
	inputMute    = "mute"
	inputUnmute  = "unmute"
	inputVanish  = "vanish"

	maxLineSize    = 1 << 20
	controlTimeout = 5 * time.Second
)

// Input is one line read from stdin. Type defaults to "message"; the other
// types are control lines and produce no output.
type Input struct {
	Type     string           `json:"type,omitempty"`
	ID       string           `json:"id,omitempty"`
	Sender   policy.Sender    `json:"sender"`
	Message  string           `json:"message"`
	Bypass   policy.ReasonSet `json:"bypass"`
	Enabled  bool             `json:"enabled"`
	Duration string           `json:"duration,omitempty"`
}

// vanishSet holds the IDs of senders that are currently vanished.
type vanishSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func (v *vanishSet) set(id string, vanished bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if vanished {
		v.ids[id] = struct{}{}
	} else {
		delete(v.ids, id)
	}
}

func (v *vanishSet) has(sender policy.Sender, _ string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.ids[sender.ID]
	return ok
}

// app is the wired set of components serving one process.
type app struct {
	pipeline  *policy.Pipeline
	engine    *policy.Engine
	names     *policy.NameRegistry
	mute      *policy.MuteFilter
	muteAll   *policy.MuteAllFilter
	vanished  *vanishSet
	strikes   *policy.StrikeHandler
	db        store.Store
	registry  *prometheus.Registry
	updatable []config.UpdatableFilter
}

func buildApp(cfg *config.Config) (*app, error) {
	db, err := store.NewBadgerStore(cfg.DB.Path, cfg.DB.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	codes, err := policy.NewFormatCodes(&cfg.Format)
	if err != nil {
		db.Close()
		return nil, err
	}

	caps := policy.DeclaredOverrides{}
	a := &app{
		db:       db,
		names:    policy.NewNameRegistry(&cfg.Names),
		mute:     policy.NewMuteFilter(db, caps),
		muteAll:  policy.NewMuteAllFilter(caps),
		vanished: &vanishSet{ids: make(map[string]struct{})},
		registry: prometheus.NewRegistry(),
	}
	a.engine = policy.NewEngine(policy.WithCapabilities(caps), policy.WithNames(a.names))
	a.engine.Load(cfg)

	collector := metrics.New(a.registry)
	a.strikes, err = policy.NewStrikeHandler(db, hook.NewCommand(cfg.Hook), &cfg.Strikes, func(senderID string) {
		a.mute.Invalidate(senderID)
		collector.IncAutoMutes()
	})
	if err != nil {
		a.engine.Unload()
		db.Close()
		return nil, fmt.Errorf("failed to create StrikeHandler: %w", err)
	}

	chain := policy.NewChain(
		policy.NewBlankMessageFilter(codes, caps),
		a.engine,
		policy.NewFormatFilter(codes, caps),
		a.mute,
		a.muteAll,
		policy.NewPredicateFilter(policy.Vanish, caps, a.vanished.has),
	)
	a.pipeline = policy.NewPipeline(cfg, chain, []policy.RejectionHandler{a.strikes}, collector)

	a.updatable = []config.UpdatableFilter{a.engine, codes, a.names, a.strikes, a.pipeline}
	return a, nil
}

// Close waits for pending mutes and releases the store.
func (a *app) Close() error {
	a.strikes.Wait()
	a.engine.Unload()
	return a.db.Close()
}

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "./config.toml", "Path to the configuration file.")
	useDefaults := flag.Bool("use-defaults", false, "Run with internal defaults if the config file is missing.")
	validateConfig := flag.Bool("validate", false, "Validate the configuration file and exit.")
	dryRun := flag.Bool("dry-run", false, "Log what would be denied without actually denying it.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *validateConfig {
		if err := validateConfiguration(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is VALID.")
		return
	}
	if err := runApp(*configPath, *useDefaults, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		os.Exit(1)
	}
}

func runApp(configPath string, useDefaults bool, dryRun bool) error {
	cfg, defaultsUsed, err := config.Load(configPath, useDefaults)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level.ToSlogLevel()}))
	slog.SetDefault(logger)
	if dryRun {
		slog.Warn("Running in DRY-RUN mode, no message will be denied.")
	}
	slog.Info("Chat guard starting up", "version", version, "config_path", configPath, "using_defaults", defaultsUsed)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		config.StartWatcher(gctx, configPath, a.updatable, 0)
		return nil
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			if err := metrics.NewServer(cfg.Metrics.Listen, a.registry).Run(gctx); err != nil {
				slog.Error("Metrics server stopped", "addr", cfg.Metrics.Listen, "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		// End of input stops the watcher and the metrics server.
		defer cancel()
		return processEvents(gctx, os.Stdin, os.Stdout, a, dryRun)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Chat guard stopped")
	return nil
}

func processEvents(ctx context.Context, r io.Reader, w io.Writer, a *app, dryRun bool) error {
	linesChan := make(chan []byte)
	errChan := make(chan error, 1)
	encoder := json.NewEncoder(w)

	go func() {
		defer close(linesChan)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			lineCopy := make([]byte, len(scanner.Bytes()))
			copy(lineCopy, scanner.Bytes())
			select {
			case linesChan <- lineCopy:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
	}()

	slog.Info("Ready to process messages from stdin...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-linesChan:
			if !ok {
				select {
				case err := <-errChan:
					return err
				default:
				}
				slog.Info("Input stream closed, shutting down.")
				return nil
			}

			if len(line) == 0 {
				continue
			}
			var input Input
			if err := json.Unmarshal(line, &input); err != nil {
				slog.Warn("Failed to decode input JSON", "error", err, "raw_line_prefix", prefix(line, 128))
				continue
			}

			if input.Type != "" && input.Type != inputMessage {
				a.control(ctx, input)
				continue
			}

			a.names.Observe(input.Sender)
			resp := a.pipeline.Process(ctx, policy.Request{
				ID:      input.ID,
				Sender:  input.Sender,
				Message: input.Message,
				Bypass:  input.Bypass,
			}, dryRun)

			if err := encoder.Encode(resp); err != nil {
				if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
					return nil
				}
				slog.Error("Failed to write response to stdout", "error", err)
			}
		}
	}
}

// control applies a control line.
func (a *app) control(ctx context.Context, input Input) {
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	id := input.Sender.ID
	switch input.Type {
	case inputMuteAll:
		a.muteAll.SetEnabled(input.Enabled)
	case inputVanish:
		if id == "" {
			slog.Warn("Ignoring vanish without sender id")
			return
		}
		a.vanished.set(id, input.Enabled)
		slog.Info("Sender vanish changed", "sender_id", id, "vanished", input.Enabled)
	case inputMute:
		d, err := time.ParseDuration(input.Duration)
		if id == "" || err != nil {
			slog.Warn("Ignoring invalid mute", "sender_id", id, "duration", input.Duration, "error", err)
			return
		}
		if err := a.db.MuteSender(ctx, id, d); err != nil {
			slog.Error("Failed to mute sender", "sender_id", id, "error", err)
			return
		}
		a.mute.Invalidate(id)
		slog.Info("Sender muted", "sender_id", id, "duration", d)
	case inputUnmute:
		if id == "" {
			slog.Warn("Ignoring unmute without sender id")
			return
		}
		if err := a.db.UnmuteSender(ctx, id); err != nil {
			slog.Error("Failed to unmute sender", "sender_id", id, "error", err)
			return
		}
		a.mute.Invalidate(id)
		slog.Info("Sender unmuted", "sender_id", id)
	default:
		slog.Warn("Ignoring input of unknown type", "type", input.Type)
	}
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func validateConfiguration(configPath string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	fmt.Printf("Validating configuration file: %s\n", configPath)
	cfg, _, err := config.Load(configPath, false)
	if err != nil {
		return err
	}
	e := policy.NewEngine()
	for _, w := range e.Load(cfg) {
		fmt.Printf("warning: %v\n", w)
	}
	e.Unload()
	cfg.DB.InMemory = true
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	return a.Close()
}
