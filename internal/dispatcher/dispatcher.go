package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// Dispatcher decodes commands, runs their handlers and encodes responses.
type Dispatcher struct {
	registry *Registry
	config   Config
	metrics  *Metrics
	logger   *zap.Logger
}

// New creates a dispatcher over registry. A nil logger disables logging.
func New(registry *Registry, config Config, logger *zap.Logger) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: registry,
		config:   config,
		logger:   logger.Named("dispatcher"),
	}
	if config.EnableMetrics {
		d.metrics = NewMetrics()
	}
	return d
}

// command is a decoded inbound message.
type command struct {
	id     value.Value
	method string
	params *value.Object
}

func decode(message string) (command, error) {
	obj, err := value.ParseObject(message)
	if err != nil {
		return command{id: value.Null()}, err
	}
	cmd := command{id: value.Null()}
	if id, ok := obj.Get("id"); ok {
		cmd.id = id
	}
	if _, ok := cmd.id.AsNumber(); !ok {
		return cmd, fmt.Errorf("%w: missing numeric id", ErrInvalidMessage)
	}
	method, ok := obj.GetString("method")
	if !ok || method == "" {
		return cmd, fmt.Errorf("%w: missing method", ErrInvalidMessage)
	}
	cmd.method = method
	if raw, present := obj.Get("params"); present && !value.IsNull(raw) {
		params, ok := raw.AsObject()
		if !ok {
			return cmd, fmt.Errorf("%w: params must be an object", ErrInvalidParams)
		}
		cmd.params = params
	}
	if cmd.params == nil {
		cmd.params = value.NewObject()
	}
	return cmd, nil
}

// Dispatch handles one serialized command and returns the serialized
// response. It never fails: decoding and handler errors become error
// responses.
func (d *Dispatcher) Dispatch(ctx context.Context, message string) string {
	cmd, err := decode(message)
	if err != nil {
		code := errorCode(err)
		if code == CodeServerError {
			code = CodeParseError
		}
		d.logger.Debug("rejected command", zap.Error(err))
		return errorResponse(cmd.id, code, err)
	}

	h, ok := d.registry.Get(cmd.method)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownMethod, cmd.method)
		d.logger.Debug("unknown method", zap.String("method", cmd.method))
		return errorResponse(cmd.id, CodeMethodNotFound, err)
	}

	start := time.Now()
	var result *value.Object
	if d.config.RecoverFromPanic {
		result, err = d.executeWithRecovery(ctx, cmd.method, h, cmd.params)
	} else {
		result, err = h(ctx, cmd.params)
	}
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.RecordDispatch(cmd.method, elapsed, err != nil)
	}
	if d.config.SlowCommand > 0 && elapsed > d.config.SlowCommand {
		d.logger.Warn("slow command",
			zap.String("method", cmd.method),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", d.config.SlowCommand))
	}
	if err != nil {
		d.logger.Debug("command failed",
			zap.String("method", cmd.method),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return errorResponse(cmd.id, errorCode(err), err)
	}
	d.logger.Debug("command handled",
		zap.String("method", cmd.method),
		zap.Duration("elapsed", elapsed))
	return resultResponse(cmd.id, result)
}

// executeWithRecovery executes a handler with panic recovery.
func (d *Dispatcher) executeWithRecovery(ctx context.Context, method string, h Handler, params *value.Object) (result *value.Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			d.logger.Error("handler panic",
				zap.String("method", method),
				zap.Any("panic", r),
				zap.ByteString("stack", stack[:n]))
			result = nil
			err = fmt.Errorf("%w: %s: %v", ErrPanic, method, r)
			if d.metrics != nil {
				d.metrics.RecordPanic(method)
			}
		}
	}()
	return h(ctx, params)
}

func resultResponse(id value.Value, result *value.Object) string {
	if result == nil {
		result = value.NewObject()
	}
	resp, _ := sjson.SetRaw("{}", "id", value.Serialize(id))
	resp, _ = sjson.SetRaw(resp, "result", value.Serialize(result))
	return resp
}

func errorResponse(id value.Value, code int, err error) string {
	if id == nil {
		id = value.Null()
	}
	resp, _ := sjson.SetRaw("{}", "id", value.Serialize(id))
	resp, _ = sjson.Set(resp, "error.code", code)
	resp, _ = sjson.Set(resp, "error.message", err.Error())
	return resp
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Metrics returns the metrics collector (may be nil if disabled).
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}
