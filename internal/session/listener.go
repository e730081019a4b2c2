package session

import "sync"

// Listener receives the outbound signals of an orchestrator. Callbacks run
// synchronously on the goroutine that changed the state, outside any lock,
// and always receive copies.
type Listener interface {
	MessagesChanged(messages []ChatMessage)
	TypingChanged(typing bool)
	PreferencesChanged(prefs Preferences)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are skipped.
type ListenerFuncs struct {
	OnMessages    func([]ChatMessage)
	OnTyping      func(bool)
	OnPreferences func(Preferences)
}

func (f ListenerFuncs) MessagesChanged(messages []ChatMessage) {
	if f.OnMessages != nil {
		f.OnMessages(messages)
	}
}

func (f ListenerFuncs) TypingChanged(typing bool) {
	if f.OnTyping != nil {
		f.OnTyping(typing)
	}
}

func (f ListenerFuncs) PreferencesChanged(prefs Preferences) {
	if f.OnPreferences != nil {
		f.OnPreferences(prefs)
	}
}

// Broadcaster fans signals out to any number of subscribers
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Listener
}

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it
func (b *Broadcaster) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len reports the number of subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) listeners() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Listener, 0, len(b.subs))
	for _, l := range b.subs {
		out = append(out, l)
	}
	return out
}

func (b *Broadcaster) MessagesChanged(messages []ChatMessage) {
	for _, l := range b.listeners() {
		l.MessagesChanged(cloneMessages(messages))
	}
}

func (b *Broadcaster) TypingChanged(typing bool) {
	for _, l := range b.listeners() {
		l.TypingChanged(typing)
	}
}

func (b *Broadcaster) PreferencesChanged(prefs Preferences) {
	for _, l := range b.listeners() {
		l.PreferencesChanged(prefs)
	}
}

func cloneMessages(messages []ChatMessage) []ChatMessage {
	if messages == nil {
		return []ChatMessage{}
	}
	return append([]ChatMessage(nil), messages...)
}
