package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/mini-server/config"
	"github.com/searchktools/mini-server/core"
	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/render"
	"github.com/searchktools/mini-server/core/static"
)

// ShutdownTimeout bounds graceful shutdown after a signal
const ShutdownTimeout = 10 * time.Second

// App wires configuration, logging and the engine together
type App struct {
	cfg       *config.Config
	log       zerolog.Logger
	engine    *core.Engine
	files     *static.Provider
	templates *render.Renderer

	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates an application instance
func New(cfg *config.Config) *App {
	log := NewLogger(cfg, os.Stderr)
	return newApp(cfg, log, NewEngine(cfg, log))
}

// NewEngine builds an engine configured from cfg
func NewEngine(cfg *config.Config, log zerolog.Logger) *core.Engine {
	return core.NewEngine(
		core.WithLogger(log),
		core.WithWorkers(cfg.Workers),
		core.WithBufferSize(cfg.BufferSize),
		core.WithReadTimeout(cfg.ReadTimeout),
		core.WithWriteTimeout(cfg.WriteTimeout),
		core.WithMaxConns(cfg.MaxConns),
		core.WithReasonPhrases(cfg.ReasonPhrases),
	)
}

// NewWithEngine creates an application instance with a pre-configured engine
func NewWithEngine(cfg *config.Config, engine *core.Engine) *App {
	return newApp(cfg, NewLogger(cfg, os.Stderr), engine)
}

func newApp(cfg *config.Config, log zerolog.Logger, engine *core.Engine) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		files:     static.NewProvider(cfg.StaticDir),
		templates: render.NewRenderer(cfg.TemplateDir),
		stopped:   make(chan struct{}),
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Files returns the static file provider for Response.SendFile
func (a *App) Files() *static.Provider {
	return a.files
}

// Templates returns the template renderer for Response.Render
func (a *App) Templates() *render.Renderer {
	return a.templates
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully. A listen
// failure is fatal.
func (a *App) Run() {
	go a.awaitSignal()

	a.log.Info().
		Int("port", a.cfg.Port).
		Str("env", a.cfg.Env).
		Str("version", http.Version).
		Msg("mini-server starting")

	err := a.engine.Run(a.cfg.Addr())
	if !errors.Is(err, core.ErrServerClosed) {
		a.log.Fatal().Err(err).Msg("server startup failed")
	}

	<-a.stopped
}

// Shutdown stops the engine; Run returns once it completes
func (a *App) Shutdown(ctx context.Context) error {
	defer a.stopOnce.Do(func() { close(a.stopped) })
	return a.engine.Shutdown(ctx)
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}
}
