// Package convlog writes an NDJSON audit trail of every chat turn shown to the learner.
package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Event types.
const (
	EventUserMessage = "chat_user_message"
	EventBotReply    = "chat_bot_reply"
	EventGreeting    = "chat_greeting"
	EventNotice      = "chat_notice"
)

// Event is one logged chat turn.
type Event struct {
	Timestamp  string         `json:"timestamp"`
	SurfaceID  string         `json:"surface_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records chat events.
type Logger interface {
	Log(event Event)
	Close() error
}

// Config controls where events are written.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Noop discards every event.
type Noop struct{}

// Log implements Logger.
func (Noop) Log(Event) {}

// Close implements Logger.
func (Noop) Close() error { return nil }

// FileLogger appends events to one file per surface and session, plus an
// optional global file. Writes happen on a background goroutine.
type FileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	dropped   int
}

// New returns a Noop when logging is disabled, otherwise a started FileLogger.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	l, err := NewFileLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewFileLogger creates the log directory and starts the writer.
func NewFileLogger(cfg Config, logger *slog.Logger) (*FileLogger, error) {
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if cfg.GlobalEnabled && cfg.GlobalPath == "" {
		return nil, errors.New("conversation log global path is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &FileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues event. Events are dropped when the queue is full or the logger is closed.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.dropped++
		if l.dropped == 1 || l.dropped%100 == 0 {
			l.logger.Warn("Conversation log queue full, dropping events",
				"dropped", l.dropped,
				"surface_id", event.SurfaceID,
			)
		}
	}
}

// Close drains the queue and stops the writer.
func (l *FileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
	})
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("Failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		path := filepath.Join(l.cfg.Dir, pathComponent(event.SurfaceID), pathComponent(event.SessionID)+".ndjson")
		if err := appendLine(path, line); err != nil {
			l.logger.Warn("Failed to write conversation log", "path", path, "error", err)
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("Failed to write global conversation log", "path", l.cfg.GlobalPath, "error", err)
			}
		}
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path built from sanitized components
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var (
	ansiSequence  = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafePathRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// pathComponent turns an arbitrary ID into a single safe file name component.
func pathComponent(id string) string {
	clean := strings.Trim(unsafePathRun.ReplaceAllString(id, "_"), "._")
	if clean == "" {
		return "unknown"
	}
	return clean
}

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(raw string) string {
	s := ansiSequence.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
