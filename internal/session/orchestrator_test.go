package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/careassist/hospital-assistant/internal/chat"
	"github.com/careassist/hospital-assistant/internal/classifier"
	"github.com/careassist/hospital-assistant/internal/fallback"
	"github.com/careassist/hospital-assistant/internal/knowledge"
	"github.com/careassist/hospital-assistant/internal/sentiment"
	"github.com/careassist/hospital-assistant/internal/store"
)

type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

func newEngine() *chat.Engine {
	kb := knowledge.MustDefault()
	return chat.NewEngine(
		classifier.NewClassifier(kb, classifier.WithRand(firstRand{})),
		sentiment.NewClassifier(kb, sentiment.DefaultConfig()),
		nil,
	)
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func steppingClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestOrchestrator(st store.Store, engine Replier, opts ...Option) *Orchestrator {
	base := []Option{
		WithDelay(NoDelay{}),
		WithIDGenerator(sequentialIDs()),
		WithClock(steppingClock()),
	}
	return New("u1", st, engine, append(base, opts...)...)
}

type stubReplier struct {
	reply chat.Reply
	err   error
	panic bool
}

func (s stubReplier) Reply(string, string) (chat.Reply, error) {
	if s.panic {
		panic("knowledge base corrupted")
	}
	return s.reply, s.err
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenStore) Set(context.Context, string, []byte) error   { return errors.New("down") }
func (brokenStore) Delete(context.Context, string) error        { return errors.New("down") }

// gateDelay blocks Wait until released so a send can be held in flight.
type gateDelay struct {
	entered chan struct{}
	release chan struct{}
}

func newGateDelay() *gateDelay {
	return &gateDelay{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gateDelay) Wait(context.Context) {
	g.entered <- struct{}{}
	<-g.release
}

func TestOpen_SeedsWelcome(t *testing.T) {
	st := store.NewMemory()
	o := newTestOrchestrator(st, newEngine())
	ctx := context.Background()

	o.Open(ctx)

	snap := o.Snapshot()
	if !snap.IsOpen {
		t.Error("expected session to be open")
	}
	if snap.ID == "" {
		t.Fatal("expected a session id")
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 welcome", len(snap.Messages))
	}
	welcome := snap.Messages[0]
	if welcome.Role != RoleAssistant || welcome.Content != fallback.Welcome("en").Content {
		t.Errorf("unexpected welcome %+v", welcome)
	}
	if welcome.Sentiment == nil || welcome.Sentiment.Label != sentiment.LabelPositive || welcome.Sentiment.Emoji != "😊" {
		t.Errorf("welcome sentiment = %+v, want positive 😊", welcome.Sentiment)
	}

	raw, err := st.Get(ctx, "u1:session_id")
	if err != nil {
		t.Fatalf("session id not persisted: %v", err)
	}
	var persisted string
	_ = json.Unmarshal(raw, &persisted)
	if persisted != snap.ID {
		t.Errorf("persisted id %q, want %q", persisted, snap.ID)
	}

	// Opening again keeps the same session
	o.Close()
	if o.IsOpen() {
		t.Error("Close should hide the session")
	}
	o.Open(ctx)
	if again := o.Snapshot(); again.ID != snap.ID || len(again.Messages) != 1 {
		t.Errorf("reopen changed the session: %+v", again)
	}
}

func TestSend_MessageCountInvariant(t *testing.T) {
	o := newTestOrchestrator(store.NewMemory(), newEngine())
	ctx := context.Background()
	o.Open(ctx)

	inputs := []string{"hello", "where is the pharmacy", "book an appointment", "thank you"}
	for _, in := range inputs {
		if err := o.Send(ctx, in); err != nil {
			t.Fatalf("Send(%q): %v", in, err)
		}
	}

	messages := o.Messages()
	if want := 2*len(inputs) + 1; len(messages) != want {
		t.Fatalf("got %d messages, want %d", len(messages), want)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Errorf("message %d is older than message %d", i, i-1)
		}
		wantRole := RoleUser
		if i%2 == 0 {
			wantRole = RoleAssistant
		}
		if messages[i].Role != wantRole {
			t.Errorf("message %d role = %s, want %s", i, messages[i].Role, wantRole)
		}
	}
	if o.IsTyping() {
		t.Error("typing flag left on")
	}
}

func TestSend_Ignored(t *testing.T) {
	ctx := context.Background()

	noSession := newTestOrchestrator(store.NewMemory(), newEngine())
	if err := noSession.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send without session: %v", err)
	}
	if n := len(noSession.Messages()); n != 0 {
		t.Errorf("send without session appended %d messages", n)
	}

	o := newTestOrchestrator(store.NewMemory(), newEngine())
	o.Open(ctx)
	for _, blank := range []string{"", "   ", "\n\t"} {
		if err := o.Send(ctx, blank); err != nil {
			t.Fatalf("Send(%q): %v", blank, err)
		}
	}
	if n := len(o.Messages()); n != 1 {
		t.Errorf("blank sends changed history: %d messages", n)
	}
}

func TestSend_FailureBecomesSystemMessage(t *testing.T) {
	tests := []struct {
		name    string
		replier Replier
	}{
		{name: "error", replier: stubReplier{err: chat.ErrEmptyResponse}},
		{name: "panic", replier: stubReplier{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(store.NewMemory(), tt.replier)
			ctx := context.Background()
			o.Open(ctx)

			if err := o.Send(ctx, "hello"); err != nil {
				t.Fatalf("Send: %v", err)
			}

			messages := o.Messages()
			if len(messages) != 3 {
				t.Fatalf("got %d messages, want 3", len(messages))
			}
			last := messages[2]
			if last.Role != RoleSystem {
				t.Errorf("role = %s, want system", last.Role)
			}
			if last.Content != fallback.ProcessingFailure("en").Content {
				t.Errorf("content = %q", last.Content)
			}
			if o.IsTyping() {
				t.Error("typing flag left on after failure")
			}
		})
	}
}

func TestSend_SingleFlight(t *testing.T) {
	gate := newGateDelay()
	o := newTestOrchestrator(store.NewMemory(), newEngine(), WithDelay(gate))
	ctx := context.Background()
	o.Open(ctx)

	done := make(chan error, 1)
	go func() { done <- o.Send(ctx, "hello") }()
	<-gate.entered

	if !o.IsTyping() {
		t.Error("expected typing while reply is pending")
	}
	if err := o.Send(ctx, "where is the pharmacy"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("second Send error = %v, want ErrSendInFlight", err)
	}
	if n := len(o.Messages()); n != 2 {
		t.Errorf("got %d messages while in flight, want welcome + user", n)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if n := len(o.Messages()); n != 3 {
		t.Errorf("got %d messages, want 3", n)
	}
	if o.IsTyping() {
		t.Error("typing flag left on")
	}
}

func TestSend_CancelledContextStillReplies(t *testing.T) {
	o := newTestOrchestrator(store.NewMemory(), newEngine(),
		WithDelay(RandomDelay{Min: time.Hour, Max: time.Hour}))
	o.Open(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := o.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len(o.Messages()); n != 3 {
		t.Errorf("got %d messages, want 3", n)
	}
}

func TestClear(t *testing.T) {
	st := store.NewMemory()
	o := newTestOrchestrator(st, newEngine())
	ctx := context.Background()
	o.Open(ctx)
	_ = o.Send(ctx, "hello")
	_ = o.Send(ctx, "thank you")

	oldID := o.Snapshot().ID
	o.Clear(ctx)

	snap := o.Snapshot()
	if snap.ID == oldID {
		t.Error("Clear should mint a new session id")
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Content != fallback.Welcome("en").Content {
		t.Fatalf("after Clear got %+v, want a single welcome", snap.Messages)
	}
	if _, err := st.Get(ctx, "u1:history:"+oldID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old history not deleted: %v", err)
	}
}

func TestClear_DropsInFlightReply(t *testing.T) {
	gate := newGateDelay()
	o := newTestOrchestrator(store.NewMemory(), newEngine(), WithDelay(gate))
	ctx := context.Background()
	o.Open(ctx)

	done := make(chan error, 1)
	go func() { done <- o.Send(ctx, "hello") }()
	<-gate.entered

	o.Clear(ctx)
	close(gate.release)
	<-done

	messages := o.Messages()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want only the new welcome", len(messages))
	}
	if messages[0].SessionID != o.Snapshot().ID {
		t.Error("welcome belongs to another session")
	}
}

func TestZoom(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{level: 500, want: 150},
		{level: -20, want: 80},
		{level: 120, want: 120},
		{level: 80, want: 80},
		{level: 150, want: 150},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.level), func(t *testing.T) {
			o := newTestOrchestrator(store.NewMemory(), newEngine())
			ctx := context.Background()

			if got := o.SetZoom(ctx, tt.level); got != tt.want {
				t.Errorf("SetZoom(%d) = %d, want %d", tt.level, got, tt.want)
			}
			if got := o.SetZoom(ctx, tt.level); got != tt.want {
				t.Errorf("second SetZoom(%d) = %d, want %d", tt.level, got, tt.want)
			}
		})
	}
}

func TestZoomSteps(t *testing.T) {
	o := newTestOrchestrator(store.NewMemory(), newEngine())
	ctx := context.Background()

	if got := o.ZoomIn(ctx); got != 110 {
		t.Errorf("ZoomIn = %d, want 110", got)
	}
	for i := 0; i < 10; i++ {
		o.ZoomIn(ctx)
	}
	if got := o.Preferences().ZoomLevel; got != MaxZoom {
		t.Errorf("zoom = %d, want %d", got, MaxZoom)
	}
	for i := 0; i < 20; i++ {
		o.ZoomOut(ctx)
	}
	if got := o.Preferences().ZoomLevel; got != MinZoom {
		t.Errorf("zoom = %d, want %d", got, MinZoom)
	}
}

func TestUpdatePreferences(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	var signalled []Preferences
	o := newTestOrchestrator(st, newEngine(), WithListener(ListenerFuncs{
		OnPreferences: func(p Preferences) { signalled = append(signalled, p) },
	}))

	dark := true
	lang := "es"
	prefs := o.UpdatePreferences(ctx, PreferencesPatch{DarkMode: &dark, Language: &lang})
	if !prefs.DarkMode || prefs.Language != "es" || prefs.ZoomLevel != DefaultZoom || !prefs.Notifications {
		t.Errorf("unexpected preferences %+v", prefs)
	}

	unknown := "tlh"
	prefs = o.UpdatePreferences(ctx, PreferencesPatch{Language: &unknown})
	if prefs.Language != "en" {
		t.Errorf("unknown language stored as %q, want en", prefs.Language)
	}
	if !prefs.DarkMode {
		t.Error("untouched field was reset")
	}

	raw, err := st.Get(ctx, "u1:preferences")
	if err != nil {
		t.Fatalf("preferences not persisted: %v", err)
	}
	var persisted Preferences
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if persisted != prefs {
		t.Errorf("persisted %+v, want %+v", persisted, prefs)
	}
	if len(signalled) != 2 {
		t.Errorf("got %d preference signals, want 2", len(signalled))
	}
}

func TestWelcomeFollowsLanguage(t *testing.T) {
	o := newTestOrchestrator(store.NewMemory(), newEngine())
	ctx := context.Background()
	lang := "es"
	o.UpdatePreferences(ctx, PreferencesPatch{Language: &lang})
	o.Open(ctx)

	if got := o.Messages()[0].Content; got != fallback.Welcome("es").Content {
		t.Errorf("welcome = %q, want the Spanish text", got)
	}
}

func TestRestore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first := newTestOrchestrator(st, newEngine())
	first.Open(ctx)
	_ = first.Send(ctx, "hello")
	first.SetZoom(ctx, 130)
	want := first.Snapshot()

	second := newTestOrchestrator(st, newEngine())
	second.Restore(ctx)
	got := second.Snapshot()

	if got.ID != want.ID {
		t.Errorf("restored id %q, want %q", got.ID, want.ID)
	}
	if got.Preferences.ZoomLevel != 130 {
		t.Errorf("restored zoom %d, want 130", got.Preferences.ZoomLevel)
	}
	if len(got.Messages) != len(want.Messages) {
		t.Fatalf("restored %d messages, want %d", len(got.Messages), len(want.Messages))
	}
	for i := range want.Messages {
		w, g := want.Messages[i], got.Messages[i]
		if g.ID != w.ID || g.Content != w.Content || g.Role != w.Role || !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("message %d = %+v, want %+v", i, g, w)
		}
	}

	// Opening a restored session must not add another welcome
	second.Open(ctx)
	if n := len(second.Messages()); n != len(want.Messages) {
		t.Errorf("Open after Restore reseeded: %d messages", n)
	}
}

func TestRestore_Empty(t *testing.T) {
	o := newTestOrchestrator(store.NewMemory(), newEngine())
	o.Restore(context.Background())

	snap := o.Snapshot()
	if snap.ID != "" || len(snap.Messages) != 0 {
		t.Errorf("expected no session, got %+v", snap)
	}
	if snap.Preferences != DefaultPreferences() {
		t.Errorf("got %+v, want defaults", snap.Preferences)
	}
}

func TestRestore_CorruptPreferences(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_ = st.Set(ctx, "u1:preferences", []byte("{not json"))

	o := newTestOrchestrator(st, newEngine())
	o.Restore(ctx)

	if got := o.Preferences(); got != DefaultPreferences() {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestPersistenceFailuresAreAbsorbed(t *testing.T) {
	o := newTestOrchestrator(brokenStore{}, newEngine())
	ctx := context.Background()

	o.Restore(ctx)
	o.Open(ctx)
	if err := o.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	o.SetZoom(ctx, 90)
	o.Clear(ctx)

	if n := len(o.Messages()); n != 1 {
		t.Errorf("got %d messages, want 1", n)
	}
	if got := o.Preferences().ZoomLevel; got != 90 {
		t.Errorf("zoom = %d, want 90", got)
	}
}

func TestSignals(t *testing.T) {
	var (
		messageCounts []int
		typing        []bool
	)
	o := newTestOrchestrator(store.NewMemory(), newEngine(), WithListener(ListenerFuncs{
		OnMessages: func(m []ChatMessage) { messageCounts = append(messageCounts, len(m)) },
		OnTyping:   func(b bool) { typing = append(typing, b) },
	}))
	ctx := context.Background()

	o.Open(ctx)
	_ = o.Send(ctx, "hello")

	wantCounts := []int{1, 2, 3}
	if fmt.Sprint(messageCounts) != fmt.Sprint(wantCounts) {
		t.Errorf("message signals %v, want %v", messageCounts, wantCounts)
	}
	if fmt.Sprint(typing) != fmt.Sprint([]bool{true, false}) {
		t.Errorf("typing signals %v, want [true false]", typing)
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantIntent    string
		wantEmergency bool
		wantLabel     sentiment.Label
		wantEmotion   sentiment.Emotion
	}{
		{
			name:       "greeting",
			input:      "hello",
			wantIntent: "greeting",
			wantLabel:  sentiment.LabelNeutral,
		},
		{
			name:          "emergency",
			input:         "I have chest pain and can't breathe",
			wantIntent:    "emergency",
			wantEmergency: true,
			wantLabel:     sentiment.LabelUrgent,
		},
		{
			name:       "typo",
			input:      "book an apointment",
			wantIntent: "book_appointment",
			wantLabel:  sentiment.LabelNeutral,
		},
		{
			name:        "gratitude",
			input:       "thank you so much",
			wantIntent:  "thanks",
			wantLabel:   sentiment.LabelPositive,
			wantEmotion: sentiment.EmotionGrateful,
		},
	}

	kb := knowledge.MustDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(store.NewMemory(), newEngine())
			ctx := context.Background()
			o.Open(ctx)

			if err := o.Send(ctx, tt.input); err != nil {
				t.Fatalf("Send: %v", err)
			}

			messages := o.Messages()
			reply := messages[len(messages)-1]
			if reply.Role != RoleAssistant {
				t.Fatalf("reply role = %s", reply.Role)
			}
			if reply.Intent != tt.wantIntent {
				t.Errorf("intent = %q, want %q", reply.Intent, tt.wantIntent)
			}
			if reply.IsEmergency != tt.wantEmergency {
				t.Errorf("emergency = %v, want %v", reply.IsEmergency, tt.wantEmergency)
			}
			if reply.Sentiment == nil || reply.Sentiment.Label != tt.wantLabel {
				t.Errorf("sentiment = %+v, want label %s", reply.Sentiment, tt.wantLabel)
			}
			if tt.wantEmotion != "" && reply.Sentiment.Emotion != tt.wantEmotion {
				t.Errorf("emotion = %s, want %s", reply.Sentiment.Emotion, tt.wantEmotion)
			}

			if tt.wantEmotion == sentiment.EmotionGrateful {
				if reply.Sentiment.Score != 0.8 {
					t.Errorf("score = %v, want 0.8", reply.Sentiment.Score)
				}
				intent := findIntent(t, kb, "thanks")
				if !strings.HasPrefix(reply.Content, intent.Responses[0]) {
					t.Errorf("gratitude reply %q has an empathy prefix", reply.Content)
				}
			}
		})
	}
}

func findIntent(t *testing.T, kb *knowledge.Base, tag string) knowledge.Intent {
	t.Helper()
	for _, in := range kb.Intents {
		if in.Tag == tag {
			return in
		}
	}
	t.Fatalf("intent %q not in knowledge base", tag)
	return knowledge.Intent{}
}
