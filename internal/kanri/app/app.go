// Package app wires Kanri together: configuration, the task ledger, the
// catalog, the conversational engine and its transports.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/Kanri/common/trace"
	"github.com/bdobrica/Kanri/internal/kanri/catalog"
	"github.com/bdobrica/Kanri/internal/kanri/commands"
	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/humanizer"
	"github.com/bdobrica/Kanri/internal/kanri/matrix"
	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/observability"
	"github.com/bdobrica/Kanri/internal/kanri/store"
)

// App is the main Kanri application.
type App struct {
	config  *Config
	store   *store.Store
	redis   *redis.Client
	states  *dialogue.RedisStore
	engine  *commands.Engine
	matrix  *matrix.Client
	health  *HealthServer
	limiter *FloodLimiter
	now     func() time.Time
}

// Option customizes New. Tests use them to pin time and reply selection.
type Option func(*options)

type options struct {
	now  func() time.Time
	intn func(n int) int
	fsys fs.FS
}

// WithClock sets the clock used for console messages.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand sets the reply selector's random source.
func WithRand(intn func(n int) int) Option {
	return func(o *options) { o.intn = intn }
}

// WithCatalogFS loads the catalog from fsys instead of Config.CatalogDir.
func WithCatalogFS(fsys fs.FS) Option {
	return func(o *options) { o.fsys = fsys }
}

// New opens the store and builds the engine. The Matrix client is created
// only when a homeserver is configured.
func New(ctx context.Context, config *Config, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{
		config:  config,
		store:   st,
		limiter: NewFloodLimiter(config.RateLimit, time.Minute),
		now:     o.now,
	}

	if err := a.build(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	fsys := o.fsys
	if fsys == nil && a.config.CatalogDir != "" {
		fsys = os.DirFS(a.config.CatalogDir)
	}
	cat, err := catalog.Load(fsys)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	var sim nlp.Similarity = nlp.LevenshteinRatio{}
	if a.config.Similarity == SimilarityTokens {
		sim = nlp.TokenOverlap{}
	}
	parser, err := nlp.FromCatalog(cat, sim)
	if err != nil {
		return fmt.Errorf("failed to build parser: %w", err)
	}

	var states dialogue.Store
	switch a.config.StateBackend {
	case StateRedis:
		slog.Info("connecting to Redis for dialogue state")
		client, err := dialogue.DialRedis(ctx, a.config.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to initialize dialogue state: %w", err)
		}
		a.redis = client
		a.states = dialogue.NewRedisStore(client, dialogue.DefaultRedisPrefix, dialogue.DefaultRedisTTL)
		states = a.states
	default:
		states = dialogue.NewMemoryStore()
	}
	machine := dialogue.NewMachine(parser, states, dialogue.Config{
		SlotTTL:     a.config.SlotTTL,
		DedupWindow: a.config.DedupWindow,
	})

	var selOpts []humanizer.Option
	if o.intn != nil {
		selOpts = append(selOpts, humanizer.WithRand(o.intn))
	}

	engineCfg := commands.Config{
		Machine:           machine,
		Describer:         parser,
		Replies:           humanizer.New(cat.Replies, selOpts...),
		Tasks:             a.store,
		Auditor:           a.store,
		Location:          a.config.Location,
		CapabilityTimeout: a.config.CapabilityTimeout,
	}

	if a.config.Matrix.Homeserver != "" {
		mcfg := a.config.Matrix
		mcfg.DB = a.store.DB()
		slog.Info("connecting to Matrix", "homeserver", mcfg.Homeserver)
		client, err := matrix.New(mcfg)
		if err != nil {
			return fmt.Errorf("failed to initialize Matrix client: %w", err)
		}
		a.matrix = client
		engineCfg.Sender = client
	}
	a.engine = commands.NewEngine(engineCfg)

	if a.config.HTTPAddr != "" {
		a.health = NewHealthServer(a.config.HTTPAddr, a.store)
		a.health.AddCheck("database", a.store.DB().PingContext)
		if a.states != nil {
			a.health.AddCheck("redis", a.states.Ping)
		}
	}
	return nil
}

// Engine returns the conversational engine.
func (a *App) Engine() *commands.Engine { return a.engine }

// Run serves Matrix until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.matrix == nil {
		return errors.New("app: Matrix is not configured")
	}

	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	slog.Info("Kanri is running; press Ctrl+C to stop")
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// handleMessage answers one Matrix message.
func (a *App) handleMessage(ctx context.Context, msg matrix.Inbound) {
	ctx, _ = trace.Ensure(ctx)
	log := observability.WithTrace(ctx)

	if !a.limiter.Allow(msg.UserID, msg.At) {
		log.Warn("kanri: flood limit reached; message dropped", "user", msg.UserID, "event", msg.EventID)
		return
	}

	_, err := a.engine.Handle(ctx, commands.Message{
		UserID: msg.UserID,
		Name:   msg.Name,
		Text:   msg.Text,
		Now:    msg.At,
	})
	if err != nil {
		log.Error("kanri: reply not delivered", "user", msg.UserID, "err", err)
	}
}

// Console runs a line-oriented conversation as userID over in and out until
// in is exhausted or ctx is cancelled.
func (a *App) Console(ctx context.Context, in io.Reader, out io.Writer, userID, name string) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		r := a.engine.Process(ctx, commands.Message{
			UserID: userID,
			Name:   name,
			Text:   text,
			Now:    a.now(),
		})
		if r.Text == "" {
			continue
		}
		if _, err := fmt.Fprintln(out, r.Text); err != nil {
			return fmt.Errorf("app: write reply: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("app: read input: %w", err)
	}
	return nil
}

// Close releases every resource New acquired.
func (a *App) Close() {
	if a.matrix != nil {
		slog.Info("stopping Matrix client")
		a.matrix.Stop()
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "err", err)
		}
	}
	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("closing database", "err", err)
	}
}
