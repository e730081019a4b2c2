package language

import (
	"sort"
	"strings"
	"sync"
)

const DefaultLanguage = "en"

// LanguageInfo contains information about a supported language
type LanguageInfo struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	NativeName     string `json:"native_name"`
	IsEnabled      bool   `json:"is_enabled"`
	IsExperimental bool   `json:"is_experimental"`
}

// ValidationResult represents the result of language validation
type ValidationResult struct {
	Code         string `json:"code"`
	UsedFallback bool   `json:"used_fallback"`
}

// Manager tracks which preference languages the assistant can answer in
type Manager struct {
	languages map[string]*LanguageInfo
	mu        sync.RWMutex
}

var defaultManager = NewManager()

// NewManager creates a manager with English and Spanish enabled and
// French registered but disabled.
func NewManager() *Manager {
	return &Manager{
		languages: map[string]*LanguageInfo{
			"en": {Code: "en", Name: "English", NativeName: "English", IsEnabled: true},
			"es": {Code: "es", Name: "Spanish", NativeName: "Español", IsEnabled: true},
			"fr": {Code: "fr", Name: "French", NativeName: "Français", IsExperimental: true},
		},
	}
}

// Validate checks code against the package-level manager
func Validate(code string) ValidationResult {
	return defaultManager.Validate(code)
}

// IsSupported checks if a language code is registered and enabled.
// Codes are matched case-insensitively.
func (m *Manager) IsSupported(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lang, exists := m.languages[canonical(code)]
	return exists && lang.IsEnabled
}

// Validate returns the canonical code, or DefaultLanguage with
// UsedFallback set when code is not supported.
func (m *Manager) Validate(code string) ValidationResult {
	if m.IsSupported(code) {
		return ValidationResult{Code: canonical(code)}
	}
	return ValidationResult{Code: DefaultLanguage, UsedFallback: true}
}

// GetLanguageInfo returns information about a language
func (m *Manager) GetLanguageInfo(code string) (LanguageInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lang, exists := m.languages[canonical(code)]
	if !exists {
		return LanguageInfo{}, false
	}
	return *lang, true
}

// EnableLanguage enables a registered language
func (m *Manager) EnableLanguage(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lang, exists := m.languages[canonical(code)]; exists {
		lang.IsEnabled = true
	}
}

// DisableLanguage disables a language. The default language stays enabled.
func (m *Manager) DisableLanguage(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = canonical(code)
	if code == DefaultLanguage {
		return
	}
	if lang, exists := m.languages[code]; exists {
		lang.IsEnabled = false
	}
}

// GetSupportedLanguages returns all enabled languages sorted by code
func (m *Manager) GetSupportedLanguages() []LanguageInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var languages []LanguageInfo
	for _, lang := range m.languages {
		if lang.IsEnabled {
			languages = append(languages, *lang)
		}
	}
	sort.Slice(languages, func(i, j int) bool { return languages[i].Code < languages[j].Code })
	return languages
}

// AddLanguage registers or replaces a language
func (m *Manager) AddLanguage(info LanguageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info.Code = canonical(info.Code)
	m.languages[info.Code] = &info
}

func canonical(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
