// Package app wires the inspector daemon together: the engine loop, the
// page with its script host, the inspector controller, the command
// dispatcher and the websocket transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/webinspector/internal/config"
	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/engine/page"
	"github.com/dshills/webinspector/internal/engine/script"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/logging"
	"github.com/dshills/webinspector/internal/storage"
	"github.com/dshills/webinspector/internal/transport/ws"
)

// Application owns every daemon component.
type Application struct {
	cfg    config.Config
	opts   Options
	logger *zap.Logger

	loop       *loop.Loop
	store      storage.SettingsStore
	controller *inspector.Controller
	page       *page.Page
	host       *script.Host
	dispatcher *dispatcher.Dispatcher
	server     *ws.Server

	hostCtx    context.Context
	hostCancel context.CancelFunc

	running atomic.Bool
	closed  atomic.Bool
}

// Options configures the application.
type Options struct {
	// Config is the validated daemon configuration.
	Config config.Config

	// Logger receives diagnostics. Nil disables logging.
	Logger *zap.Logger

	// Level, when set, is adjusted as the watched config file changes.
	Level *zap.AtomicLevel

	// Watch, when set, reloads the configuration from these sources on
	// change.
	Watch *config.LoadOptions

	// Target is the URL or file path opened once the daemon is running.
	Target string

	// Fetcher overrides the page's network access.
	Fetcher page.Fetcher
}

// New creates the application. Components that fail to start are torn down
// before New returns.
func New(opts Options) (*Application, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	app := &Application{
		cfg:    opts.Config,
		opts:   opts,
		logger: opts.Logger,
	}
	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Controller returns the inspector controller.
func (app *Application) Controller() *inspector.Controller { return app.controller }

// Dispatcher returns the command dispatcher.
func (app *Application) Dispatcher() *dispatcher.Dispatcher { return app.dispatcher }

// Page returns the inspected page.
func (app *Application) Page() *page.Page { return app.page }

// Loop returns the engine loop.
func (app *Application) Loop() *loop.Loop { return app.loop }

// Run serves frontends on ln and drives the engine loop until ctx is done.
func (app *Application) Run(ctx context.Context, ln net.Listener) error {
	if app.closed.Load() {
		return ErrClosed
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	// The loop outlives the server so disconnecting frontends can detach.
	loopErr := make(chan error, 1)
	go func() { loopErr <- app.loop.Run(context.Background()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ws.Serve(gctx, ln, app.server.Handler(), app.logger.Named("http"))
	})
	if app.opts.Watch != nil {
		g.Go(func() error {
			return config.Watch(gctx, *app.opts.Watch, app.reload)
		})
	}
	if app.opts.Target != "" {
		g.Go(func() error {
			if err := app.Open(gctx, app.opts.Target); err != nil {
				app.logger.Error("open failed", zap.String("target", app.opts.Target), zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	app.loop.Stop()
	if lerr := <-loopErr; err == nil {
		err = lerr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Open navigates the page to target, which is a URL or a local file path.
func (app *Application) Open(ctx context.Context, target string) error {
	u, err := targetURL(target)
	if err != nil {
		return err
	}
	app.logger.Info("navigating", zap.String("url", u))
	return app.loop.CallScheduled(ctx, func() error {
		return app.page.Navigate(ctx, u)
	})
}

// reload applies a changed configuration. Only the log level takes effect
// without a restart.
func (app *Application) reload(cfg config.Config, err error) {
	if err != nil {
		app.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	if app.opts.Level != nil && cfg.LogLevel != app.cfg.LogLevel {
		if err := logging.SetLevel(*app.opts.Level, cfg.LogLevel); err != nil {
			app.logger.Warn("log level rejected", zap.String("level", cfg.LogLevel), zap.Error(err))
			return
		}
		app.logger.Info("log level changed", zap.String("level", cfg.LogLevel))
	}
	app.cfg = cfg
}

// Close releases every component. It is safe to call more than once.
func (app *Application) Close() error {
	if !app.closed.CompareAndSwap(false, true) {
		return nil
	}
	app.loop.Stop()
	app.hostCancel()
	app.page.Close()
	app.host.Close()
	if err := app.store.Close(); err != nil {
		return fmt.Errorf("close settings store: %w", err)
	}
	return nil
}

func targetURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return target, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
