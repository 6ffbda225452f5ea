// Package ws serves an inspector session to a remote frontend over a
// websocket. Inbound commands are posted to the engine loop and dispatched
// there; responses and events flow back through an ordered outbox.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/inspector/frontend"
)

// Session is the inspector side of a connection.
type Session interface {
	Attach(ctx context.Context, fe frontend.Frontend) error
	Detach(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Logger *zap.Logger

	// OriginPatterns lists the allowed websocket origins. Empty allows only
	// same-host requests.
	OriginPatterns []string

	// ReadLimit caps the size of one inbound command.
	ReadLimit int64
}

// Server accepts frontend connections for one inspected page.
type Server struct {
	loop       *loop.Loop
	dispatcher *dispatcher.Dispatcher
	session    Session
	logger     *zap.Logger
	origins    []string
	readLimit  int64

	connections atomic.Int64
}

// NewServer creates a server. The dispatcher's handlers run on l.
func NewServer(l *loop.Loop, d *dispatcher.Dispatcher, s Session, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Server{
		loop:       l,
		dispatcher: d,
		session:    s,
		logger:     opts.Logger.Named("ws"),
		origins:    opts.OriginPatterns,
		readLimit:  opts.ReadLimit,
	}
}

// Handler returns the HTTP routes: the websocket endpoint, a method list,
// dispatch metrics and a health check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/inspector", s.ServeWS)
	r.Get("/methods", s.serveMethods)
	r.Get("/metrics", s.serveMetrics)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) serveMethods(w http.ResponseWriter, r *http.Request) {
	var methods []string
	err := s.loop.Call(r.Context(), func() error {
		methods = s.dispatcher.Registry().List()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	body, _ := sjson.Set(`{}`, "methods", methods)
	writeJSON(w, body)
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	body := `{}`
	body, _ = sjson.Set(body, "connections", s.connections.Load())
	body, _ = sjson.Set(body, "loop.posted", s.loop.Stats().Posted)
	body, _ = sjson.Set(body, "loop.processed", s.loop.Stats().Processed)
	if m := s.dispatcher.Metrics(); m != nil {
		body, _ = sjson.Set(body, "dispatch.total", m.TotalDispatches())
		body, _ = sjson.Set(body, "dispatch.errors", m.TotalErrors())
		body, _ = sjson.Set(body, "dispatch.panics", m.TotalPanics())
		body, _ = sjson.Set(body, "dispatch.domains", m.DomainCounts())
		for i, mm := range m.TopMethods(5) {
			prefix := "dispatch.top." + strconv.Itoa(i)
			body, _ = sjson.Set(body, prefix+".method", mm.Name)
			body, _ = sjson.Set(body, prefix+".count", mm.DispatchCount)
			body, _ = sjson.Set(body, prefix+".meanMicros", mm.Mean().Microseconds())
		}
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(pretty.Pretty([]byte(body)))
}

// ServeWS upgrades the request and runs one frontend session. Only one
// frontend can be attached at a time; later connections are closed with a
// policy violation.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.readLimit)

	c := newConn(uuid.NewString(), ws, s.logger)
	logger := s.logger.With(zap.String("conn", c.id))
	ctx := r.Context()

	if err := s.loop.Call(ctx, func() error { return s.session.Attach(ctx, c) }); err != nil {
		logger.Info("attach refused", zap.Error(err))
		_ = ws.Close(websocket.StatusPolicyViolation, truncateReason(err.Error()))
		return
	}
	s.connections.Add(1)
	logger.Info("frontend connected", zap.String("remote", r.RemoteAddr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx, c, logger) })
	err = g.Wait()

	c.close()
	s.connections.Add(-1)
	detachErr := s.loop.Call(context.Background(), func() error { return s.session.Detach(context.Background()) })
	if detachErr != nil && !errors.Is(detachErr, loop.ErrStopped) {
		logger.Warn("detach failed", zap.Error(detachErr))
	}

	switch {
	case err == nil, websocket.CloseStatus(err) != -1, errors.Is(err, context.Canceled):
		logger.Info("frontend disconnected")
		_ = ws.Close(websocket.StatusNormalClosure, "")
	default:
		logger.Warn("frontend connection failed", zap.Error(err))
		_ = ws.Close(websocket.StatusInternalError, "")
	}
}

// readLoop posts every inbound command to the loop. The response is queued
// on the loop goroutine, so it is ordered with the events the command emits.
func (s *Server) readLoop(ctx context.Context, c *conn, logger *zap.Logger) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			logger.Debug("ignoring binary message")
			continue
		}
		if ce := logger.Check(zap.DebugLevel, "command"); ce != nil {
			ce.Write(zap.ByteString("message", pretty.Pretty(data)))
		}
		msg := string(data)
		err = s.loop.Post(func() {
			if resp := s.dispatcher.Dispatch(ctx, msg); resp != "" {
				_ = c.Send(resp)
			}
		})
		if err != nil {
			return err
		}
	}
}

const maxReason = 120

// truncateReason keeps a close reason within the 123 bytes a close frame
// allows, cutting on a rune boundary.
func truncateReason(s string) string {
	if len(s) <= maxReason {
		return s
	}
	n := maxReason
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Serve runs an HTTP server for h on ln until ctx is done, then shuts it
// down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
