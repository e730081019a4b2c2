// Package session owns the conversation lifecycle for one user context:
// message history, the single-flight send protocol, typing state and
// persisted preferences.
package session

import (
	"time"

	"github.com/careassist/hospital-assistant/internal/language"
	"github.com/careassist/hospital-assistant/internal/sentiment"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	MinZoom     = 80
	MaxZoom     = 150
	DefaultZoom = 100
	ZoomStep    = 10
)

// ChatMessage is one persisted conversation unit. Messages are never
// mutated after they are appended.
type ChatMessage struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	CreatedAt   time.Time         `json:"createdAt"`
	Intent      string            `json:"intent,omitempty"`
	IsEmergency bool              `json:"isEmergency,omitempty"`
	Sentiment   *sentiment.Result `json:"sentiment,omitempty"`
}

// Preferences are the user's display and interaction settings
type Preferences struct {
	ZoomLevel     int    `json:"zoomLevel"`
	DarkMode      bool   `json:"darkMode"`
	VoiceEnabled  bool   `json:"voiceEnabled"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
}

// DefaultPreferences returns the settings used before anything is persisted
func DefaultPreferences() Preferences {
	return Preferences{
		ZoomLevel:     DefaultZoom,
		Notifications: true,
		Language:      language.DefaultLanguage,
	}
}

// PreferencesPatch is a partial update; nil fields are left unchanged.
type PreferencesPatch struct {
	ZoomLevel     *int    `json:"zoomLevel,omitempty"`
	DarkMode      *bool   `json:"darkMode,omitempty"`
	VoiceEnabled  *bool   `json:"voiceEnabled,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	Language      *string `json:"language,omitempty"`
}

// apply returns p with the patch applied, zoom clamped and language validated.
func (patch PreferencesPatch) apply(p Preferences) Preferences {
	if patch.ZoomLevel != nil {
		p.ZoomLevel = *patch.ZoomLevel
	}
	if patch.DarkMode != nil {
		p.DarkMode = *patch.DarkMode
	}
	if patch.VoiceEnabled != nil {
		p.VoiceEnabled = *patch.VoiceEnabled
	}
	if patch.Notifications != nil {
		p.Notifications = *patch.Notifications
	}
	if patch.Language != nil {
		p.Language = *patch.Language
	}
	return p.normalized()
}

func (p Preferences) normalized() Preferences {
	p.ZoomLevel = ClampZoom(p.ZoomLevel)
	p.Language = language.Validate(p.Language).Code
	return p
}

// ClampZoom limits level to [MinZoom, MaxZoom]
func ClampZoom(level int) int {
	return min(max(level, MinZoom), MaxZoom)
}

// Session is a point-in-time copy of the conversation state
type Session struct {
	ID          string        `json:"id"`
	Messages    []ChatMessage `json:"messages"`
	IsOpen      bool          `json:"isOpen"`
	IsTyping    bool          `json:"isTyping"`
	Preferences Preferences   `json:"preferences"`
}
