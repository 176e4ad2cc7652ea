package cookies

import (
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Fixed key namespace of the persistent jar. Every value the app caches
// lives under one of these names; nothing else writes to the jar.
const (
	KeyLoggedIn    = "bikeforu_logged_in"
	KeyUserID      = "bikeforu_user_id"
	KeyTheme       = "bikeforu_theme"
	KeyPreferences = "bikeforu_preferences"
)

// Transient keys of the page-scoped MemStore.
const (
	KeyPendingVerificationEmail = "pendingVerificationEmail"
	KeyPendingVerificationCode  = "pendingVerificationCode"
	KeyShowVerificationSuccess  = "showVerificationSuccess"
)

// Themes the UI understands. An unknown stored value falls back to ThemeLight.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// LoginState is the cached, non-authoritative login hint.
// It exists only to avoid a flash of logged-out UI before the auth bridge
// confirms the real session with the provider; it may be stale or wrong
// for at most one render cycle.
type LoginState struct {
	IsLoggedIn bool
	UserID     string
}

// SetLoginState caches the login hint with the default 30-day expiry.
// The user ID is only written when known, matching the shape of the hint
// written on every successful reconciliation.
func (j *Jar) SetLoginState(isLoggedIn bool, userID string) {
	if err := j.Set(KeyLoggedIn, strconv.FormatBool(isLoggedIn), Options{}); err != nil {
		log.Warn().Err(err).Msg("Failed to cache login flag")
	}
	if userID != "" {
		if err := j.Set(KeyUserID, userID, Options{}); err != nil {
			log.Warn().Err(err).Msg("Failed to cache user id")
		}
	}
}

// LoginState reads the cached hint. Absent or expired entries yield the
// logged-out default.
func (j *Jar) LoginState() LoginState {
	flag, err := j.Get(KeyLoggedIn)
	if err != nil {
		return LoginState{}
	}
	userID, _ := j.Get(KeyUserID)
	return LoginState{
		IsLoggedIn: flag == "true",
		UserID:     userID,
	}
}

// ClearLoginState removes the login hint. Called whenever reconciliation
// or a provider event concludes the user is signed out.
func (j *Jar) ClearLoginState() {
	if err := j.Delete(KeyLoggedIn); err != nil {
		log.Warn().Err(err).Msg("Failed to clear login flag")
	}
	if err := j.Delete(KeyUserID); err != nil {
		log.Warn().Err(err).Msg("Failed to clear user id")
	}
}

// SetTheme persists the colour theme for a year.
func (j *Jar) SetTheme(theme string) {
	if err := j.Set(KeyTheme, theme, Options{ExpiryDays: 365}); err != nil {
		log.Warn().Err(err).Msg("Failed to cache theme")
	}
}

// Theme returns the stored theme, defaulting to ThemeLight.
func (j *Jar) Theme() string {
	theme, err := j.Get(KeyTheme)
	if err != nil || (theme != ThemeLight && theme != ThemeDark) {
		return ThemeLight
	}
	return theme
}

// SetPreferences persists arbitrary UI preferences as JSON for a year.
func (j *Jar) SetPreferences(prefs map[string]any) {
	data, err := json.Marshal(prefs)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal preferences")
		return
	}
	if err := j.Set(KeyPreferences, string(data), Options{ExpiryDays: 365}); err != nil {
		log.Warn().Err(err).Msg("Failed to cache preferences")
	}
}

// Preferences returns the stored preference blob. Malformed JSON is
// replaced with an empty map and never propagated as an error.
func (j *Jar) Preferences() map[string]any {
	raw, err := j.Get(KeyPreferences)
	if err != nil {
		return map[string]any{}
	}

	var prefs map[string]any
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		log.Warn().Err(err).Msg("Stored preferences corrupted, using defaults")
		return map[string]any{}
	}
	if prefs == nil {
		prefs = map[string]any{}
	}
	return prefs
}

// SetPendingVerification records the signup awaiting email confirmation.
// Held only in the transient store; a restart of the app restarts the
// signup flow.
func (m *MemStore) SetPendingVerification(email, code string) {
	_ = m.Set(KeyPendingVerificationEmail, email, Options{})
	if code != "" {
		_ = m.Set(KeyPendingVerificationCode, code, Options{})
	}
}

// PendingVerificationEmail returns the email awaiting confirmation, or
// "" and false when no signup is pending.
func (m *MemStore) PendingVerificationEmail() (string, bool) {
	email, err := m.Get(KeyPendingVerificationEmail)
	if err != nil || email == "" {
		return "", false
	}
	return email, true
}

// ClearPendingVerification destroys the pending signup state, on success
// or on an explicit restart of the flow.
func (m *MemStore) ClearPendingVerification() {
	_ = m.Delete(KeyPendingVerificationEmail)
	_ = m.Delete(KeyPendingVerificationCode)
}

// MarkVerificationSuccess sets the one-shot flag telling the next page to
// show the "email verified" banner.
func (m *MemStore) MarkVerificationSuccess() {
	_ = m.Set(KeyShowVerificationSuccess, "true", Options{})
}

// TakeVerificationSuccess consumes the one-shot success flag. The second
// call after a mark returns false.
func (m *MemStore) TakeVerificationSuccess() bool {
	v, ok := m.Take(KeyShowVerificationSuccess)
	return ok && v == "true"
}
