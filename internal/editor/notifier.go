package editor

import (
	"context"
	"log/slog"
	"sync"
)

// Events emitted to the UI layer.
const (
	EventStateChanged = "state.changed"
	EventNotice       = "notice"
	EventPageLoaded   = "page.loaded"
)

// Notice levels.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice is a dismissable user-facing message.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PageLoaded is emitted when a page's content is on screen.
type PageLoaded struct {
	Page    int  `json:"page"`
	Strokes int  `json:"strokes"`
	Corrupt bool `json:"corrupt"`
}

// Notifier decouples the controller from the UI runtime.
type Notifier interface {
	Emit(ctx context.Context, event string, data any)
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Emit does nothing.
func (NopNotifier) Emit(context.Context, string, any) {}

// LogNotifier writes events to a structured logger. Notices at error level
// are logged as warnings.
type LogNotifier struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (n LogNotifier) Emit(ctx context.Context, event string, data any) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if nt, ok := data.(Notice); ok {
		level = slog.LevelInfo
		if nt.Level == NoticeError {
			level = slog.LevelWarn
		}
	}
	logger.Log(ctx, level, "editor: "+event, slog.Any("data", data))
}

// EmittedEvent is one event recorded by a RecordingNotifier.
type EmittedEvent struct {
	Name string
	Data any
}

// RecordingNotifier keeps every emitted event. It is used by tests.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// Emit records the event.
func (n *RecordingNotifier) Emit(_ context.Context, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, EmittedEvent{Name: event, Data: data})
}

// Notices returns the recorded notices in order.
func (n *RecordingNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notice
	for _, e := range n.Events {
		if nt, ok := e.Data.(Notice); ok && e.Name == EventNotice {
			out = append(out, nt)
		}
	}
	return out
}

// Reset forgets recorded events.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = nil
}
