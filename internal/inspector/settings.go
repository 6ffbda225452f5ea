package inspector

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// SettingsStore is host storage for the persisted settings cookie. The blob
// is opaque to the store and must be returned verbatim. Load returns an empty
// blob when nothing was saved for group.
type SettingsStore interface {
	Load(ctx context.Context, group string) (string, error)
	Save(ctx context.Context, group, blob string) error
}

// Well-known setting keys.
const (
	SettingStickyBreakpoints = "stickyBreakpoints"
	SettingDebuggerEnabled   = "debuggerEnabled"
	SettingMonitoringXHR     = "monitoringXHR"
)

// encodeSettings renders settings as an object of strings with sorted keys so
// equal maps always produce equal blobs.
func encodeSettings(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := value.NewObject()
	for _, k := range keys {
		obj.SetString(k, settings[k])
	}
	return value.Serialize(obj)
}

// decodeSettings parses a blob. Entries that are not strings are skipped.
func decodeSettings(blob string, logger *zap.Logger) map[string]string {
	settings := make(map[string]string)
	if blob == "" {
		return settings
	}
	obj, err := value.ParseObject(blob)
	if err != nil {
		logger.Warn("discarding unreadable settings", zap.Error(err))
		return settings
	}
	for _, k := range obj.Keys() {
		s, ok := obj.GetString(k)
		if !ok {
			logger.Warn("skipping non-string setting", zap.String("key", k))
			continue
		}
		settings[k] = s
	}
	return settings
}

// loadSettings replaces the in-memory settings with the stored blob.
func (c *Controller) loadSettings(ctx context.Context) {
	c.settings = make(map[string]string)
	if c.store == nil {
		return
	}
	blob, err := c.store.Load(ctx, c.pageGroup)
	if err != nil {
		c.logger.Warn("loading settings failed", zap.String("group", c.pageGroup), zap.Error(err))
		return
	}
	c.settings = decodeSettings(blob, c.logger)
}

// saveSettings writes the in-memory settings to the store.
func (c *Controller) saveSettings(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, c.pageGroup, encodeSettings(c.settings)); err != nil {
		return NewOperationError("saveSettings", c.pageGroup, err)
	}
	return nil
}

// Setting returns a persisted setting.
func (c *Controller) Setting(key string) (string, bool) {
	v, ok := c.settings[key]
	return v, ok
}

// SetSetting changes a persisted setting and writes it through to the store.
func (c *Controller) SetSetting(ctx context.Context, key, val string) error {
	c.settings[key] = val
	return c.saveSettings(ctx)
}
