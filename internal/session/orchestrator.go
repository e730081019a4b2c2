package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/chat"
	"github.com/careassist/hospital-assistant/internal/fallback"
	"github.com/careassist/hospital-assistant/internal/privacy"
	"github.com/careassist/hospital-assistant/internal/sentiment"
	"github.com/careassist/hospital-assistant/internal/store"
)

// ErrSendInFlight is returned by Send while another send is awaiting its reply.
var ErrSendInFlight = errors.New("session: a message is already being answered")

// Replier produces the assistant reply for an utterance. *chat.Engine
// satisfies it.
type Replier interface {
	Reply(text, lang string) (chat.Reply, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDelay sets the latency strategy used before each reply.
func WithDelay(d Delay) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithLogger sets the logger used for persistence and pipeline failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces uuid.NewString for session and message ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// WithListener subscribes l to the orchestrator's signals.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.signals.Subscribe(l) }
}

// Orchestrator drives one user's conversation. All methods are safe for
// concurrent use; Send admits one in-flight message at a time.
type Orchestrator struct {
	namespace string
	store     store.Store
	engine    Replier
	delay     Delay
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	signals   *Broadcaster

	mu        sync.Mutex
	sessionID string
	messages  []ChatMessage
	hasActive bool
	isOpen    bool
	isTyping  bool
	sending   bool
	prefs     Preferences
}

// New creates an orchestrator whose persisted keys live under namespace.
// Call Restore before use to pick up a previous session.
func New(namespace string, st store.Store, engine Replier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		namespace: namespace,
		store:     st,
		engine:    engine,
		delay:     DefaultDelay(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
		signals:   NewBroadcaster(),
		prefs:     DefaultPreferences(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("namespace", namespace))
	return o
}

func (o *Orchestrator) sessionIDKey() string        { return o.namespace + ":session_id" }
func (o *Orchestrator) preferencesKey() string      { return o.namespace + ":preferences" }
func (o *Orchestrator) historyKey(id string) string { return o.namespace + ":history:" + id }

// Subscribe registers l for outbound signals and returns its remover.
func (o *Orchestrator) Subscribe(l Listener) (unsubscribe func()) {
	return o.signals.Subscribe(l)
}

// Restore loads persisted preferences and, when a session id was saved,
// that session's messages exactly as stored. No welcome is added. Store
// failures are logged and leave the defaults in place.
func (o *Orchestrator) Restore(ctx context.Context) {
	prefs := DefaultPreferences()
	if !o.load(ctx, o.preferencesKey(), &prefs) {
		prefs = DefaultPreferences()
	}
	prefs = prefs.normalized()

	var (
		id       string
		messages []ChatMessage
	)
	if o.load(ctx, o.sessionIDKey(), &id) && id != "" {
		if !o.load(ctx, o.historyKey(id), &messages) {
			messages = nil
		}
	}

	o.mu.Lock()
	o.prefs = prefs
	o.sessionID = id
	o.messages = messages
	o.hasActive = id != ""
	snapshot := cloneMessages(o.messages)
	o.mu.Unlock()

	o.logger.Debug("session restored",
		zap.String("session_id", id),
		zap.Int("messages", len(snapshot)),
	)
	o.signals.PreferencesChanged(prefs)
	o.signals.MessagesChanged(snapshot)
}

// Open shows the conversation, creating and persisting a new session with
// a welcome message if none exists yet.
func (o *Orchestrator) Open(ctx context.Context) {
	o.mu.Lock()
	o.isOpen = true
	if o.hasActive {
		o.mu.Unlock()
		return
	}
	id, snapshot := o.startSessionLocked()
	o.mu.Unlock()

	o.persistSession(ctx, id, snapshot)
	o.signals.MessagesChanged(snapshot)
}

// Close hides the conversation. History and the session are kept.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.isOpen = false
	o.mu.Unlock()
}

// Clear discards the current history, deletes it from the store and starts
// a new session seeded with a fresh welcome message. A reply still in
// flight for the old session is dropped.
func (o *Orchestrator) Clear(ctx context.Context) {
	o.mu.Lock()
	oldID := o.sessionID
	id, snapshot := o.startSessionLocked()
	o.mu.Unlock()

	if oldID != "" {
		if err := o.store.Delete(ctx, o.historyKey(oldID)); err != nil {
			o.logger.Warn("failed to delete session history",
				zap.String("session_id", oldID),
				zap.Error(err),
			)
		}
	}
	o.persistSession(ctx, id, snapshot)
	o.signals.MessagesChanged(snapshot)
}

// startSessionLocked mints a session id and seeds the welcome message.
// Callers must hold mu.
func (o *Orchestrator) startSessionLocked() (string, []ChatMessage) {
	o.sessionID = o.newID()
	o.hasActive = true
	o.messages = nil

	welcome := fallback.Welcome(o.prefs.Language)
	o.appendLocked(ChatMessage{
		Role:    RoleAssistant,
		Content: welcome.Content,
		Sentiment: &sentiment.Result{
			Label: sentiment.LabelPositive,
			Emoji: sentiment.Emoji(sentiment.LabelPositive),
		},
	})
	return o.sessionID, cloneMessages(o.messages)
}

// appendLocked stamps msg and adds it to the history. Timestamps never go
// backwards. Callers must hold mu.
func (o *Orchestrator) appendLocked(msg ChatMessage) {
	msg.ID = o.newID()
	msg.SessionID = o.sessionID
	msg.CreatedAt = o.now()
	if n := len(o.messages); n > 0 && msg.CreatedAt.Before(o.messages[n-1].CreatedAt) {
		msg.CreatedAt = o.messages[n-1].CreatedAt
	}
	o.messages = append(o.messages, msg)
}

// Send appends the user's message, computes the assistant reply, waits for
// the configured delay and appends the reply. Blank text or a missing
// session is ignored. ErrSendInFlight is returned while a previous send is
// still running; no other error is ever returned. Pipeline failures become
// a system message. Cancelling ctx cuts the delay short but the reply is
// still appended.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	if !o.hasActive {
		o.mu.Unlock()
		return nil
	}
	if o.sending {
		o.mu.Unlock()
		return ErrSendInFlight
	}
	o.sending = true
	o.isTyping = true
	id := o.sessionID
	lang := o.prefs.Language
	o.appendLocked(ChatMessage{Role: RoleUser, Content: text})
	snapshot := cloneMessages(o.messages)
	o.mu.Unlock()

	o.signals.MessagesChanged(snapshot)
	o.signals.TypingChanged(true)

	reply := o.reply(text, lang)
	o.delay.Wait(ctx)

	o.mu.Lock()
	current := o.sessionID == id
	if current {
		o.appendLocked(reply)
	}
	snapshot = cloneMessages(o.messages)
	o.sending = false
	o.isTyping = false
	o.mu.Unlock()

	if current {
		o.save(context.WithoutCancel(ctx), o.historyKey(id), snapshot)
		o.signals.MessagesChanged(snapshot)
	} else {
		o.logger.Info("dropped reply for cleared session", zap.String("session_id", id))
	}
	o.signals.TypingChanged(false)
	return nil
}

// reply runs the pipeline and converts any failure into a system message.
func (o *Orchestrator) reply(text, lang string) (msg ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("reply pipeline panicked", zap.Any("panic", r))
			msg = failureMessage(lang)
		}
	}()

	r, err := o.engine.Reply(text, lang)
	if err != nil {
		o.logger.Error("failed to compose reply",
			zap.String("text", privacy.SanitizeForLogging(text)),
			zap.Error(err),
		)
		return failureMessage(lang)
	}

	mood := r.Sentiment
	return ChatMessage{
		Role:        RoleAssistant,
		Content:     r.Text,
		Intent:      r.Intent.Tag,
		IsEmergency: r.Intent.IsEmergency,
		Sentiment:   &mood,
	}
}

func failureMessage(lang string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: fallback.ProcessingFailure(lang).Content,
	}
}

// SetZoom stores the clamped zoom level and returns it.
func (o *Orchestrator) SetZoom(ctx context.Context, level int) int {
	return o.UpdatePreferences(ctx, PreferencesPatch{ZoomLevel: &level}).ZoomLevel
}

// ZoomIn raises the zoom level by one step.
func (o *Orchestrator) ZoomIn(ctx context.Context) int {
	return o.SetZoom(ctx, o.Preferences().ZoomLevel+ZoomStep)
}

// ZoomOut lowers the zoom level by one step.
func (o *Orchestrator) ZoomOut(ctx context.Context) int {
	return o.SetZoom(ctx, o.Preferences().ZoomLevel-ZoomStep)
}

// UpdatePreferences applies patch, persists the result immediately and
// returns it.
func (o *Orchestrator) UpdatePreferences(ctx context.Context, patch PreferencesPatch) Preferences {
	o.mu.Lock()
	o.prefs = patch.apply(o.prefs)
	prefs := o.prefs
	o.mu.Unlock()

	o.save(ctx, o.preferencesKey(), prefs)
	o.signals.PreferencesChanged(prefs)
	return prefs
}

// Snapshot returns a copy of the whole session state.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Session{
		ID:          o.sessionID,
		Messages:    cloneMessages(o.messages),
		IsOpen:      o.isOpen,
		IsTyping:    o.isTyping,
		Preferences: o.prefs,
	}
}

// Messages returns a copy of the history in chronological order.
func (o *Orchestrator) Messages() []ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMessages(o.messages)
}

// IsTyping reports whether a reply is being prepared.
func (o *Orchestrator) IsTyping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isTyping
}

// IsOpen reports whether the conversation is shown.
func (o *Orchestrator) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isOpen
}

// Preferences returns the current settings.
func (o *Orchestrator) Preferences() Preferences {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefs
}

func (o *Orchestrator) persistSession(ctx context.Context, id string, messages []ChatMessage) {
	o.save(ctx, o.sessionIDKey(), id)
	o.save(ctx, o.historyKey(id), messages)
}

// save writes v as JSON. Failures are logged; in-memory state stays
// authoritative.
func (o *Orchestrator) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = o.store.Set(ctx, key, data)
	}
	if err != nil {
		o.logger.Warn("failed to persist session state", zap.String("key", key), zap.Error(err))
	}
}

// load decodes the JSON stored under key into v and reports success.
func (o *Orchestrator) load(ctx context.Context, key string, v any) bool {
	data, err := o.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, v)
		if err != nil {
			err = fmt.Errorf("decode: %w", err)
		}
	}
	if err != nil {
		o.logger.Warn("failed to load session state", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
