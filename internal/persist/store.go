package persist

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Storage keys
const (
	MessagesKey = "chat_messages"
	ThemeKey    = "chat_theme"
)

// Theme is the two-valued display preference
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the other theme
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ParseTheme accepts "light" or "dark"
func ParseTheme(s string) (Theme, bool) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), true
	}
	return "", false
}

// Store persists the rendered transcript. The transcript is a cache of what was shown, not a source of truth, so no
// method reports failure: problems are logged and the caller carries on.
type Store struct {
	kv     KV
	logger zerolog.Logger
}

func NewStore(kv KV, logger zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Save overwrites the persisted transcript with records
func (s *Store) Save(records []Record) {
	if records == nil {
		records = []Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal transcript")
		return
	}
	if err := s.kv.Set(MessagesKey, b); err != nil {
		s.logger.Warn().Err(err).Int("records", len(records)).Msg("Failed to save transcript")
		return
	}
	s.logger.Debug().Int("records", len(records)).Msg("Saved transcript")
}

// Load returns the persisted transcript, or an empty list if it's absent or unreadable
func (s *Store) Load() []Record {
	b, err := s.kv.Get(MessagesKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read transcript")
		return []Record{}
	}
	if b == nil {
		return []Record{}
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding corrupt transcript")
		return []Record{}
	}
	if records == nil {
		return []Record{}
	}
	return records
}

// Clear removes the persisted transcript
func (s *Store) Clear() {
	if err := s.kv.Delete(MessagesKey); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to delete transcript")
	}
}

// Theme returns the saved theme, light when unset
func (s *Store) Theme() Theme {
	b, err := s.kv.Get(ThemeKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read theme")
		return ThemeLight
	}
	if t, ok := ParseTheme(string(b)); ok {
		return t
	}
	return ThemeLight
}

// SetTheme persists the theme
func (s *Store) SetTheme(theme Theme) {
	if err := s.kv.Set(ThemeKey, []byte(theme)); err != nil {
		s.logger.Warn().Err(err).Str("theme", string(theme)).Msg("Failed to save theme")
	}
}
