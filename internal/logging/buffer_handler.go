package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Attribute keys lifted out of the attribute map into LogEntry fields.
const (
	moduleKey   = "module"
	cameraIDKey = "camera_id"
)

// LogCallback receives each buffered entry.
type LogCallback func(entry LogEntry)

// BufferHandler keeps recent records in a ring buffer for the API.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	scope    handlerScope
	callback LogCallback
}

// NewBufferHandler creates a handler that writes to the given ring buffer.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{
		buffer:   buffer,
		level:    level,
		callback: callback,
	}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}

	h.scope.each(r, func(groups []string, a slog.Attr) {
		if len(groups) == 0 {
			switch a.Key {
			case moduleKey:
				entry.Module = a.Value.String()
				return
			case cameraIDKey:
				entry.CameraID = a.Value.String()
				return
			}
		}
		flattenAttr(entry.Attributes, groups, a)
	})
	if len(entry.Attributes) == 0 {
		entry.Attributes = nil
	}

	h.buffer.Write(entry)
	if h.callback != nil {
		h.callback(entry)
	}
	return nil
}

// flattenAttr stores a into attrs, joining group names with dots.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := append(slices.Clone(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, sub, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.scope = h.scope.withAttrs(attrs)
	return &next
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.scope = h.scope.withGroup(name)
	return &next
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
