package settings

import (
	"strings"
	"time"
)

// Themes accepted by the dashboard.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Settings is the single organisation-wide configuration record.
type Settings struct {
	Version    int64     `json:"version"`
	OrgName    string    `json:"orgName"`
	BrandColor string    `json:"brandColor"`
	Theme      string    `json:"theme"`
	LogoURL    string    `json:"logoUrl"`
	WebhookURL string    `json:"webhookUrl"`
	APIKey     string    `json:"apiKey"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Masked returns a copy safe to send to clients.
func (s Settings) Masked() Settings {
	s.APIKey = MaskKey(s.APIKey)
	return s
}

// MaskKey keeps the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

// Patch carries a partial update guarded by the version the client last read.
type Patch struct {
	Version    int64   `json:"version" validate:"required,gt=0"`
	OrgName    *string `json:"orgName" validate:"omitempty,max=120"`
	BrandColor *string `json:"brandColor" validate:"omitempty,hexcolor"`
	Theme      *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	LogoURL    *string `json:"logoUrl" validate:"omitempty,max=2048"`
	WebhookURL *string `json:"webhookUrl" validate:"omitempty,max=2048"`
	APIKey     *string `json:"apiKey" validate:"omitempty,max=200"`
}
