package inspector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/inspector/nodes"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// RegisterCommands binds the controller's frontend commands in r. Handlers
// must be invoked on the engine goroutine.
func (c *Controller) RegisterCommands(r *dispatcher.Registry) {
	// Console
	r.Register("Console.clearMessages", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		c.ClearMessages()
		return nil, nil
	})
	r.Register("Console.setMonitoringXHREnabled", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		enabled, err := dispatcher.BoolParam(p, "enabled")
		if err != nil {
			return nil, err
		}
		return nil, c.SetSetting(ctx, SettingMonitoringXHR, strconv.FormatBool(enabled))
	})

	// Settings
	r.Register("Settings.get", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		key, err := dispatcher.StringParam(p, "key")
		if err != nil {
			return nil, err
		}
		result := value.NewObject()
		if v, ok := c.Setting(key); ok {
			result.SetString("value", v)
		} else {
			result.Set("value", value.Null())
		}
		return result, nil
	})
	r.Register("Settings.set", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		key, err := dispatcher.StringParam(p, "key")
		if err != nil {
			return nil, err
		}
		v, err := dispatcher.StringParam(p, "value")
		if err != nil {
			return nil, err
		}
		return nil, c.SetSetting(ctx, key, v)
	})

	// DOM
	r.Register("DOM.getDocument", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		id, err := c.GetDocument()
		if err != nil {
			return nil, err
		}
		return nodeResult(id), nil
	})
	r.Register("DOM.getChildNodes", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := nodeParam(p)
		if err != nil {
			return nil, err
		}
		return nil, c.GetChildNodes(id)
	})
	r.Register("DOM.setAttribute", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := nodeParam(p)
		if err != nil {
			return nil, err
		}
		name, err := dispatcher.StringParam(p, "name")
		if err != nil {
			return nil, err
		}
		v, err := dispatcher.StringParam(p, "value")
		if err != nil {
			return nil, err
		}
		return nil, c.SetAttribute(id, name, v)
	})
	r.Register("DOM.removeAttribute", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := nodeParam(p)
		if err != nil {
			return nil, err
		}
		name, err := dispatcher.StringParam(p, "name")
		if err != nil {
			return nil, err
		}
		return nil, c.RemoveAttribute(id, name)
	})
	r.Register("DOM.removeNode", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := nodeParam(p)
		if err != nil {
			return nil, err
		}
		return nil, c.RemoveNode(id)
	})
	r.Register("DOM.setTextNodeValue", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := nodeParam(p)
		if err != nil {
			return nil, err
		}
		v, err := dispatcher.StringParam(p, "value")
		if err != nil {
			return nil, err
		}
		return nil, c.SetTextNodeValue(id, v)
	})
	r.Register("DOM.releaseDanglingNodes", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		c.ReleaseDanglingNodes()
		return nil, nil
	})
	r.Register("DOM.setDOMBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, t, err := domBreakpointParams(p)
		if err != nil {
			return nil, err
		}
		return nil, c.SetDOMBreakpoint(id, t)
	})
	r.Register("DOM.removeDOMBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, t, err := domBreakpointParams(p)
		if err != nil {
			return nil, err
		}
		return nil, c.RemoveDOMBreakpoint(id, t)
	})

	// Debugger
	r.Register("Debugger.enable", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		always, err := dispatcher.OptionalBool(p, "always", false)
		if err != nil {
			return nil, err
		}
		c.EnableDebugger(always)
		if always {
			return nil, c.saveSettings(ctx)
		}
		return nil, nil
	})
	r.Register("Debugger.disable", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		c.DisableDebugger()
		return nil, c.saveSettings(ctx)
	})
	r.Register("Debugger.pause", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		return nil, c.Pause()
	})
	r.Register("Debugger.resume", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		return nil, c.Resume()
	})
	r.Register("Debugger.setEventListenerBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		name, err := dispatcher.StringParam(p, "eventName")
		if err != nil {
			return nil, err
		}
		return nil, c.SetEventListenerBreakpoint(name)
	})
	r.Register("Debugger.removeEventListenerBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		name, err := dispatcher.StringParam(p, "eventName")
		if err != nil {
			return nil, err
		}
		c.RemoveEventListenerBreakpoint(name)
		return nil, nil
	})
	r.Register("Debugger.setXHRBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		url, err := dispatcher.OptionalString(p, "url", "")
		if err != nil {
			return nil, err
		}
		c.SetXHRBreakpoint(url)
		return nil, nil
	})
	r.Register("Debugger.removeXHRBreakpoint", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		url, err := dispatcher.OptionalString(p, "url", "")
		if err != nil {
			return nil, err
		}
		c.RemoveXHRBreakpoint(url)
		return nil, nil
	})
	r.Register("Debugger.setStickyBreakpoints", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		list, ok := p.GetArray("breakpoints")
		if !ok {
			return nil, fmt.Errorf("%w: %q must be an array", dispatcher.ErrInvalidParams, "breakpoints")
		}
		return nil, c.SetStickyBreakpoints(ctx, list)
	})

	// Timeline
	r.Register("Timeline.start", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		return nil, c.StartTimeline()
	})
	r.Register("Timeline.stop", func(ctx context.Context, _ *value.Object) (*value.Object, error) {
		c.StopTimeline()
		return nil, nil
	})

	// Network
	r.Register("Network.getResourceContent", func(ctx context.Context, p *value.Object) (*value.Object, error) {
		id, err := dispatcher.IntParam(p, "identifier")
		if err != nil {
			return nil, err
		}
		content, err := c.ResourceContent(uint64(id))
		if err != nil {
			return nil, err
		}
		result := value.NewObject()
		result.SetString("content", content)
		return result, nil
	})
}

func nodeParam(p *value.Object) (nodes.NodeID, error) {
	id, err := dispatcher.IntParam(p, "nodeId")
	if err != nil {
		return nodes.Unbound, err
	}
	return nodes.NodeID(id), nil
}

func nodeResult(id nodes.NodeID) *value.Object {
	result := value.NewObject()
	result.SetInt("nodeId", int(id))
	return result
}

func domBreakpointParams(p *value.Object) (nodes.NodeID, breakpoints.DOMType, error) {
	id, err := nodeParam(p)
	if err != nil {
		return nodes.Unbound, 0, err
	}
	t, err := dispatcher.IntParam(p, "type")
	if err != nil {
		return nodes.Unbound, 0, err
	}
	return id, breakpoints.DOMType(t), nil
}
