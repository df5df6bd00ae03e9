// Package app wires configuration into the running components shared by
// the daemon and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/access"
	"github.com/egcoder/telegram-ai-bot/internal/analysis"
	"github.com/egcoder/telegram-ai-bot/internal/api"
	"github.com/egcoder/telegram-ai-bot/internal/calendar"
	"github.com/egcoder/telegram-ai-bot/internal/config"
	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/deadline"
	"github.com/egcoder/telegram-ai-bot/internal/ledger"
	"github.com/egcoder/telegram-ai-bot/internal/llm"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
	"github.com/egcoder/telegram-ai-bot/internal/metrics"
	"github.com/egcoder/telegram-ai-bot/internal/pipeline"
	"github.com/egcoder/telegram-ai-bot/internal/scheduler"
	"github.com/egcoder/telegram-ai-bot/internal/storage"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// Core holds the components that need only storage: the gate and the
// audit ledger.
type Core struct {
	Config  *config.Config
	DB      *storage.DB
	Ledger  *ledger.Store
	Gate    *access.Gate
	Metrics *metrics.Metrics
}

// OpenCore opens the database, applies migrations and builds the gate with
// the ledger as its auditor.
func OpenCore(cfg *config.Config) (*Core, error) {
	db, err := storage.Open(storage.Config{Path: cfg.Storage.Path, InMemory: cfg.Storage.InMemory})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	m := metrics.New()
	ledgerStore := ledger.NewStore(db.Conn())
	gate := access.NewGate(storage.NewAccessStore(db), Identities(cfg.Access.Admins()),
		access.WithAuditor(countingAuditor{rec: ledger.NewRecorder(ledgerStore), metrics: m}),
	)

	return &Core{Config: cfg, DB: db, Ledger: ledgerStore, Gate: gate, Metrics: m}, nil
}

// Close releases the database.
func (c *Core) Close() error {
	return c.DB.Close()
}

// Recorder returns a recorder over the audit ledger.
func (c *Core) Recorder() *ledger.Recorder {
	return ledger.NewRecorder(c.Ledger)
}

// Identities converts configured ids to identities.
func Identities(ids []string) []core.Identity {
	out := make([]core.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.Identity(id))
	}
	return out
}

// countingAuditor records to the ledger and counts successful appends.
type countingAuditor struct {
	rec     *ledger.Recorder
	metrics *metrics.Metrics
}

func (a countingAuditor) RecordAccess(ctx context.Context, action string, actor, subject core.Identity, details map[string]interface{}) error {
	if err := a.rec.RecordAccess(ctx, action, actor, subject, details); err != nil {
		return err
	}
	a.metrics.LedgerEntry()
	return nil
}

// NewParser builds the analysis parser from the pipeline settings.
func NewParser(cfg *config.Config) *analysis.Parser {
	resolver := deadline.NewResolver(deadline.WithCacheSize(cfg.Pipeline.ResolverCache))
	return analysis.NewParser(resolver, analysis.WithMaxItems(cfg.Pipeline.MaxItems))
}

// NewLinkBuilder builds the calendar link builder from the calendar settings.
func NewLinkBuilder(cfg *config.Config) (*calendar.Builder, error) {
	return calendar.NewBuilder(calendar.Options{
		Offset:    cfg.Calendar.DefaultOffset.Std(),
		Duration:  cfg.Calendar.DefaultDuration.Std(),
		StartHour: cfg.Calendar.DefaultStartHour,
		Timezone:  cfg.Calendar.Timezone,
	})
}

// Service is the fully wired daemon.
type Service struct {
	*Core
	Pipeline  *pipeline.Orchestrator
	Progress  *api.ProgressHub
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

// NewService builds every component of the daemon. It does not start
// anything.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := OpenCore(cfg)
	if err != nil {
		return nil, err
	}
	svc := &Service{Core: c}
	if err := svc.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.Config
	timeout := cfg.Pipeline.RequestTimeout.Std()

	transcriber := llm.NewWhisperClient(llm.WhisperConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.WhisperModel,
		Timeout: timeout,
	})
	analyzer, err := llm.NewAnalyzer(cfg.Analyzer,
		llm.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.GPTModel,
			JSONMode: true,
			Timeout:  timeout,
		},
		llm.ClaudeConfig{
			APIKey:  cfg.Claude.APIKey,
			BaseURL: cfg.Claude.BaseURL,
			Model:   cfg.Claude.Model,
			Timeout: timeout,
		},
	)
	if err != nil {
		return err
	}

	links, err := NewLinkBuilder(cfg)
	if err != nil {
		return err
	}

	var sinks []pipeline.EventSink
	if g := cfg.Calendar.Google; g.Enabled {
		inserter, err := calendar.NewGoogleInserter(ctx, calendar.GoogleConfig{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RefreshToken: g.RefreshToken,
			CalendarID:   g.CalendarID,
		})
		if err != nil {
			return fmt.Errorf("google calendar: %w", err)
		}
		sinks = append(sinks, inserter)
		logging.Info("google calendar insertion enabled for %s", g.CalendarID)
	}

	s.Progress = api.NewProgressHub()
	s.Pipeline = pipeline.New(s.Gate, transcriber, analyzer,
		pipeline.WithParser(NewParser(cfg)),
		pipeline.WithLinkBuilder(links),
		pipeline.WithSinks(sinks...),
		pipeline.WithProgress(s.Progress),
		pipeline.WithMetrics(s.Metrics),
		pipeline.WithMaxAudioBytes(cfg.Pipeline.MaxAudioBytes),
		pipeline.WithRequestTimeout(timeout),
		pipeline.WithInvitations(cfg.Bot.Username, cfg.Access.InvitationTTL.Std()),
	)

	tz := cfg.Calendar.Timezone
	if tz == "" {
		tz = "Local"
	}
	s.Scheduler = scheduler.NewScheduler(scheduler.Config{Timezone: tz})
	if every := cfg.Access.SweepInterval.Std(); every > 0 {
		if err := s.Scheduler.Register(scheduler.IntervalTask(
			scheduler.TaskInvitationSweep, "Purge expired invitations", every,
			scheduler.InvitationSweep(s.Gate, s.Recorder()),
		)); err != nil {
			return err
		}
	}
	if err := s.Scheduler.Register(scheduler.DailyTask(
		scheduler.TaskLedgerVerify, "Verify audit ledger", "03:00",
		scheduler.LedgerVerify(s.Ledger),
	)); err != nil {
		return err
	}

	// the upstream timeout plus headroom for parsing and sinks
	apiTimeout := timeout
	if apiTimeout > 0 {
		apiTimeout += timeout / 4
	}
	s.Server = api.New(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxAudioBytes:  cfg.Pipeline.MaxAudioBytes,
		RequestTimeout: apiTimeout,
		Pipeline:       s.Pipeline,
		Ledger:         s.Ledger,
		DB:             s.DB,
		Metrics:        s.Metrics,
		Progress:       s.Progress,
	})
	return nil
}

// Run starts the scheduler and the API server and blocks until ctx is done
// or the server fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Scheduler.Start(); err != nil {
		return err
	}
	defer s.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
