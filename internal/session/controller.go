// Package session drives the chat surface state machine: opening a problem's
// conversation, answering queries, clearing and exporting history, and closing
// when the learner navigates to a different problem.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/doubt-solver/internal/completion"
	"github.com/ashureev/doubt-solver/internal/convlog"
	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/export"
	"github.com/ashureev/doubt-solver/internal/filter"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/metrics"
)

// Fixed texts shown by the controller.
const (
	GreetingText = "👋 Hello! I'm your AI Doubt Solver. I'll help you understand this problem and provide hints. What would you like to know?"
	ClearedText  = "👋 Chat history cleared! What would you like to know about this problem?"
	ExportedText = "Chat history has been exported successfully!"
)

const logChannel = "chat_http"

var (
	// ErrNotOpen is returned by operations that need an open surface.
	ErrNotOpen = errors.New("chat surface is not open")
	// ErrEmptyQuery is returned when a submitted query is blank.
	ErrEmptyQuery = errors.New("query is empty")
)

// QueryGate decides whether a query is sent to the completion service.
type QueryGate interface {
	Allow(query string) bool
}

// Deps are the collaborators shared by every controller.
type Deps struct {
	History   *history.Store
	Filter    *filter.Filter
	Gate      QueryGate
	Completer completion.Service
	Keys      completion.KeySource
	ConvLog   convlog.Logger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
	Location  *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.Filter == nil {
		d.Filter = filter.NewDefault()
	}
	if d.Gate == nil {
		d.Gate = filter.Gate{}
	}
	if d.ConvLog == nil {
		d.ConvLog = convlog.Noop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return d
}

// Reply is the outcome of one submitted query.
type Reply struct {
	SessionID  domain.SessionID `json:"session_id"`
	Text       string           `json:"reply"`
	Persisted  bool             `json:"persisted"`
	FilteredBy string           `json:"filtered_by,omitempty"`
}

// Controller owns the chat state of one surface.
type Controller struct {
	surfaceID string
	source    identity.ProblemSource
	renderer  Renderer
	deps      Deps

	mu           sync.Mutex
	state        domain.State
	sessionID    domain.SessionID
	lastActivity time.Time
}

// NewController creates a closed controller for surfaceID.
func NewController(surfaceID string, source identity.ProblemSource, renderer Renderer, deps Deps) *Controller {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	deps = deps.withDefaults()
	return &Controller{
		surfaceID:    surfaceID,
		source:       source,
		renderer:     renderer,
		deps:         deps,
		state:        domain.StateClosed,
		lastActivity: deps.Clock(),
	}
}

// SurfaceID returns the surface this controller drives.
func (c *Controller) SurfaceID() string {
	return c.surfaceID
}

// Open shows the transcript of the current problem, greeting the learner when the
// conversation is new. Opening an open surface reopens it for the current problem.
// Without an API key the surface stays closed and completion.ErrMissingCredential
// is returned.
func (c *Controller) Open(ctx context.Context) (domain.Transcript, error) {
	if c.deps.Keys != nil && !completion.HasCredential(ctx, c.deps.Keys) {
		return nil, completion.ErrMissingCredential
	}

	id, transcript, err := c.loadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	c.touchLocked()

	if c.state != domain.StateOpen {
		c.deps.Metrics.SurfaceOpened()
	}
	c.state = domain.StateOpen
	c.sessionID = id

	c.renderer.Reset(c.surfaceID, id)
	for _, msg := range transcript {
		c.renderer.Show(c.surfaceID, msg)
	}
	var greeting *domain.Message
	if len(transcript) == 0 {
		msg := c.showGreetingLocked(id, GreetingText)
		greeting = &msg
		transcript = domain.Transcript{msg}
	}
	c.mu.Unlock()

	if greeting != nil {
		c.persistGreeting(ctx, id, *greeting)
	}
	c.deps.Logger.Info("Chat surface opened",
		"surface_id", c.surfaceID,
		"session_id", id,
		"messages", len(transcript),
	)
	return transcript, nil
}

// loadCurrent loads the transcript of the current problem without holding c.mu
// and returns with c.mu held, once the problem is known not to have changed
// during the load.
func (c *Controller) loadCurrent(ctx context.Context) (domain.SessionID, domain.Transcript, error) {
	for {
		id := identity.Resolve(c.source)
		transcript := c.deps.History.Load(ctx, id)

		c.mu.Lock()
		if identity.Resolve(c.source) == id {
			return id, transcript, nil
		}
		c.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
	}
}

// showGreetingLocked displays a bot greeting for id.
func (c *Controller) showGreetingLocked(id domain.SessionID, text string) domain.Message {
	msg := domain.NewBotMessage(text, c.deps.Clock())
	c.renderer.Show(c.surfaceID, msg)
	c.logEvent(id, convlog.DirectionOutbound, convlog.EventGreeting, text, nil)
	return msg
}

// persistGreeting stores msg as the first message of id. A session that gained
// messages since it was loaded is left alone.
func (c *Controller) persistGreeting(ctx context.Context, id domain.SessionID, msg domain.Message) {
	stored := false
	err := c.deps.History.Mutate(ctx, id, func(current domain.Transcript) (domain.Transcript, bool) {
		if len(current) > 0 {
			return current, true
		}
		stored = true
		return domain.Transcript{msg}, true
	})
	if err != nil {
		c.persistenceFailed("append_greeting", id, err)
		return
	}
	if stored {
		c.deps.Metrics.MessagesPersisted(1)
	}
}

// ProblemChanged force-closes the surface when newID differs from the session
// the surface was opened for.
func (c *Controller) ProblemChanged(newID domain.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateOpen || newID == c.sessionID {
		return
	}
	c.deps.Logger.Info("Problem changed, closing chat surface",
		"surface_id", c.surfaceID,
		"session_id", c.sessionID,
		"new_session_id", newID,
	)
	c.closeLocked(ReasonProblemChanged)
}

// Close closes the surface. Closing a closed surface does nothing.
func (c *Controller) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
	c.closeLocked(reason)
}

func (c *Controller) closeLocked(reason string) {
	if c.state != domain.StateOpen {
		return
	}
	c.state = domain.StateClosed
	c.sessionID = ""
	c.deps.Metrics.SurfaceClosed()
	c.renderer.Closed(c.surfaceID, reason)
}

// Submit answers query. The reply is always shown while the surface is still open
// for the same session; the user and bot messages are persisted together under
// the session captured at submission time unless the filter rejects the reply.
func (c *Controller) Submit(ctx context.Context, query string) (Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}

	c.mu.Lock()
	if c.state != domain.StateOpen {
		c.mu.Unlock()
		return Reply{}, ErrNotOpen
	}
	c.touchLocked()
	id := c.sessionID
	problem := c.currentProblem()
	c.mu.Unlock()

	if c.deps.Keys != nil && !completion.HasCredential(ctx, c.deps.Keys) {
		c.deps.Metrics.CompletionRequest(metrics.OutcomeMissingCredential, 0)
		return Reply{SessionID: id}, completion.ErrMissingCredential
	}

	userMsg := domain.NewUserMessage(query, c.deps.Clock())
	c.showIfCurrent(id, userMsg)
	c.logEvent(id, convlog.DirectionInbound, convlog.EventUserMessage, query, nil)

	text, err := c.answer(ctx, query, problem, id)
	if err != nil {
		return Reply{SessionID: id}, err
	}

	botMsg := domain.NewBotMessage(text, c.deps.Clock())
	c.showIfCurrent(id, botMsg)

	reply := Reply{SessionID: id, Text: text}
	meta := map[string]any{"filtered": false}
	if rule, filtered := c.deps.Filter.Match(text); filtered {
		reply.FilteredBy = rule.Name
		meta["filtered"] = true
		meta["filter_rule"] = rule.Name
		c.deps.Metrics.ReplyFiltered(rule.Name)
		c.deps.Logger.Info("Reply filtered from history",
			"surface_id", c.surfaceID,
			"session_id", id,
			"rule", rule.Name,
		)
	} else if err := c.deps.History.AppendBatch(ctx, []domain.Message{userMsg, botMsg}, id); err != nil {
		c.persistenceFailed("append_turn", id, err)
	} else {
		reply.Persisted = true
		c.deps.Metrics.MessagesPersisted(2)
	}
	c.logEvent(id, convlog.DirectionOutbound, convlog.EventBotReply, text, meta)
	return reply, nil
}

// answer gates the query and calls the completion service. Only a missing
// credential is returned as an error.
func (c *Controller) answer(ctx context.Context, query string, problem domain.Problem, id domain.SessionID) (string, error) {
	if !c.deps.Gate.Allow(query) {
		c.deps.Metrics.CompletionRequest(metrics.OutcomeRefused, 0)
		return filter.RefusalReply, nil
	}

	prior := c.deps.History.Load(ctx, id)
	start := time.Now()
	text, err := c.deps.Completer.Complete(ctx, completion.Request{
		Query:            query,
		ProblemStatement: problem.StatementOrPlaceholder(),
		UserCode:         problem.UserCode,
		PriorContext:     prior.Context(),
	})
	if errors.Is(err, completion.ErrMissingCredential) {
		c.deps.Metrics.CompletionRequest(metrics.OutcomeMissingCredential, 0)
		c.showIfCurrent(id, domain.NewBotMessage(completion.MissingKeyReply, c.deps.Clock()))
		return "", err
	}
	if err != nil {
		c.deps.Logger.Warn("Completion failed", "surface_id", c.surfaceID, "session_id", id, "error", err)
		text = completion.TransportErrorReply
	}
	if text == completion.TransportErrorReply {
		c.deps.Metrics.CompletionRequest(metrics.OutcomeTransportError, time.Since(start))
		return text, nil
	}
	c.deps.Metrics.CompletionRequest(metrics.OutcomeOK, time.Since(start))
	return text, nil
}

// showIfCurrent displays msg only while the surface is open for id.
func (c *Controller) showIfCurrent(id domain.SessionID, msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateOpen && c.sessionID == id {
		c.renderer.Show(c.surfaceID, msg)
	}
}

// Clear deletes the open session's history and greets the learner afresh.
func (c *Controller) Clear(ctx context.Context) (domain.Transcript, error) {
	c.mu.Lock()
	if c.state != domain.StateOpen {
		c.mu.Unlock()
		return nil, ErrNotOpen
	}
	c.touchLocked()
	id := c.sessionID
	c.mu.Unlock()

	if err := c.deps.History.Clear(ctx, id); err != nil {
		c.persistenceFailed("clear", id, err)
	}

	c.mu.Lock()
	var greeting domain.Message
	if c.state == domain.StateOpen && c.sessionID == id {
		c.renderer.Reset(c.surfaceID, id)
		greeting = c.showGreetingLocked(id, ClearedText)
	} else {
		greeting = domain.NewBotMessage(ClearedText, c.deps.Clock())
	}
	c.mu.Unlock()

	c.persistGreeting(ctx, id, greeting)
	c.deps.Logger.Info("Chat history cleared", "surface_id", c.surfaceID, "session_id", id)
	return domain.Transcript{greeting}, nil
}

// Export formats the open session's transcript with the current problem statement.
func (c *Controller) Export(ctx context.Context) (export.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateOpen {
		return export.Document{}, ErrNotOpen
	}
	c.touchLocked()

	id := c.sessionID
	transcript := c.deps.History.Load(ctx, id)
	statement := c.currentProblem().StatementOrPlaceholder()
	doc := export.New(id, statement, transcript, c.deps.Clock(), c.deps.Location)

	c.renderer.Show(c.surfaceID, domain.NewBotMessage(ExportedText, c.deps.Clock()))
	c.logEvent(id, convlog.DirectionOutbound, convlog.EventNotice, ExportedText, map[string]any{"filename": doc.Filename})
	return doc, nil
}

// Snapshot reports the surface state.
func (c *Controller) Snapshot() domain.SurfaceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.SurfaceSnapshot{
		SurfaceID: c.surfaceID,
		SessionID: c.sessionID,
		State:     c.state,
	}
}

// LastActivity returns when the surface was last used.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Controller) touchLocked() {
	c.lastActivity = c.deps.Clock()
}

func (c *Controller) currentProblem() domain.Problem {
	if c.source == nil {
		return domain.Problem{}
	}
	return c.source.CurrentProblem()
}

func (c *Controller) persistenceFailed(op string, id domain.SessionID, err error) {
	c.deps.Metrics.PersistenceError(op)
	c.deps.Logger.Warn("Chat history write failed",
		"op", op,
		"surface_id", c.surfaceID,
		"session_id", id,
		"error", err,
	)
}

func (c *Controller) logEvent(id domain.SessionID, direction, eventType, content string, meta map[string]any) {
	c.deps.ConvLog.Log(convlog.Event{
		Timestamp:  c.deps.Clock().UTC().Format(time.RFC3339Nano),
		SurfaceID:  c.surfaceID,
		SessionID:  string(id),
		Channel:    logChannel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}
