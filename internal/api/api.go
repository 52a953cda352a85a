// Package api provides the HTTP surface of graycells: the LINE webhook
// endpoint and a health check. It wires the store, generator, transport,
// and conversation engine together at startup.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ysdkz/graycells/internal/flow"
	"github.com/ysdkz/graycells/internal/genai"
	"github.com/ysdkz/graycells/internal/line"
	"github.com/ysdkz/graycells/internal/models"
	"github.com/ysdkz/graycells/internal/scheduler"
	"github.com/ysdkz/graycells/internal/store"
)

// DefaultAddr is the default API server listen address.
const DefaultAddr = ":8080"

const shutdownTimeout = 10 * time.Second

// Opts holds configuration for the API server.
type Opts struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string
	// ReminderCron is the cron expression for the diary reminder. Empty
	// disables reminders.
	ReminderCron string
	// Location is the timezone for reminder scheduling and dating.
	Location *time.Location
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithReminderCron sets the cron expression for the diary reminder.
func WithReminderCron(expr string) Option {
	return func(o *Opts) {
		o.ReminderCron = expr
	}
}

// WithLocation sets the timezone for reminder scheduling.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// eventHandler runs one inbound event through the conversation engine.
type eventHandler interface {
	HandleEvent(ctx context.Context, event models.Event) ([]models.Reply, error)
}

// transport parses webhook requests and delivers replies.
type transport interface {
	ParseRequest(r *http.Request) ([]models.Event, error)
	Reply(ctx context.Context, replyToken string, replies []models.Reply) error
}

// Server handles the HTTP endpoints.
type Server struct {
	handler   eventHandler
	transport transport
}

// NewServer creates an API server over the given engine and transport.
func NewServer(handler eventHandler, tr transport) *Server {
	return &Server{handler: handler, transport: tr}
}

// Handler returns the route mux for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run builds all modules from the given options and serves until SIGINT or
// SIGTERM.
func Run(lineOpts []line.Option, storeOpts []store.Option, genaiOpts []genai.Option, engineOpts []flow.EngineOption, apiOpts []Option) error {
	opts := Opts{Addr: DefaultAddr}
	for _, opt := range apiOpts {
		opt(&opts)
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Server store close failed", "error", err)
		}
	}()

	gen, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}

	lineClient, err := line.NewClient(lineOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize LINE client: %w", err)
	}

	engineOpts = append(engineOpts, flow.WithNotifier(lineClient))
	engine := flow.NewEngine(st, gen, engineOpts...)
	server := NewServer(engine, lineClient)

	if opts.ReminderCron != "" {
		sched := scheduler.NewScheduler(opts.Location)
		defer sched.Stop()
		var reminderOpts []flow.ReminderOption
		if opts.Location != nil {
			reminderOpts = append(reminderOpts, flow.WithReminderLocation(opts.Location))
		}
		reminder := flow.NewReminder(st, lineClient, reminderOpts...)
		if err := sched.AddJob(opts.ReminderCron, func() {
			if err := reminder.Run(context.Background()); err != nil {
				slog.Error("Server reminder run failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid reminder schedule %q: %w", opts.ReminderCron, err)
		}
		slog.Info("Server reminder scheduled", "cron", opts.ReminderCron)
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", opts.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// buildStore selects the store backend from the configured DSN: Postgres
// for URL-style DSNs, SQLite for file paths, in-memory when unset.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var o store.Opts
	for _, opt := range storeOpts {
		opt(&o)
	}
	if o.DSN == "" {
		slog.Warn("Server using in-memory store; state is lost on restart")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(o.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}
