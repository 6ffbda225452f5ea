package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/engine/page"
	"github.com/dshills/webinspector/internal/engine/script"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/storage"
	"github.com/dshills/webinspector/internal/transport/ws"
)

// slowCommand is the handler time above which a command is logged at warn.
const slowCommand = 250 * time.Millisecond

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap() error {
	store, err := openStore(app.cfg.SettingsDB)
	if err != nil {
		return &InitError{Component: "settings store", Err: err}
	}
	app.store = store

	// 1. Engine loop
	app.loop = loop.New(
		loop.WithLogger(app.logger.Named("loop")),
		loop.WithPanicHandler(func(r any, stack []byte) {
			app.logger.Error("task panic", zap.Any("panic", r), zap.ByteString("stack", stack))
		}),
	)

	// 2. Controller
	app.controller = inspector.New(inspector.Options{
		PageGroup:       app.cfg.PageGroup,
		ConsoleCapacity: app.cfg.ConsoleCapacity,
		Enabled:         app.cfg.DeveloperExtras,
		Store:           store,
		Logger:          app.logger,
	})

	// 3. Page and script host
	app.page = page.New(app.loop, app.controller.Instrumentation(), page.Options{
		Fetcher: app.opts.Fetcher,
		Logger:  app.logger.Named("page"),
	})
	app.hostCtx, app.hostCancel = context.WithCancel(context.Background())
	app.host = script.NewHost(app.loop, app.page, app.controller, script.Options{
		Context: app.hostCtx,
		Logger:  app.logger.Named("script"),
	})
	app.controller.SetDebugger(app.host.Debugger())
	app.controller.SetEditor(app.page)

	// 4. Dispatcher
	registry := dispatcher.NewRegistry()
	app.controller.RegisterCommands(registry)
	dcfg := dispatcher.DefaultConfig().WithMetrics()
	dcfg.SlowCommand = slowCommand
	app.dispatcher = dispatcher.New(registry, dcfg, app.logger)

	// 5. Transport
	app.server = ws.NewServer(app.loop, app.dispatcher, app.controller, ws.Options{
		Logger:         app.logger,
		OriginPatterns: app.cfg.AllowedOrigins,
	})

	app.logger.Debug("bootstrapped",
		zap.String("pageGroup", app.cfg.PageGroup),
		zap.Int("commands", registry.Count()),
	)
	return nil
}

func openStore(path string) (storage.SettingsStore, error) {
	if path == "" {
		return storage.NewMemory(), nil
	}
	return storage.OpenSQLite(path)
}
