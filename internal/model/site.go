package model

import (
	"net/url"
	"strings"
	"time"
)

// SiteSettings is the per-origin policy gate.
type SiteSettings struct {
	SiteKey         string    `json:"site_key"`
	RecordEnabled   bool      `json:"record_enabled"`
	AutofillEnabled bool      `json:"autofill_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultSiteSettings records by default and never autofills until the
// user opts the site in.
func DefaultSiteSettings(siteKey string, now time.Time) SiteSettings {
	return SiteSettings{
		SiteKey:         siteKey,
		RecordEnabled:   true,
		AutofillEnabled: false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SiteKeyFromURL returns the lowercase origin (scheme://host[:port]) of raw.
// Input that does not parse as an absolute URL is returned folded to lowercase.
func SiteKeyFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return strings.ToLower(scheme + "://" + u.Host)
}

// ConsentVersion is the current consent schema. Records granted under an
// older version are treated as not granted.
const ConsentVersion = 2

// UserConsent is the versioned consent record.
type UserConsent struct {
	Version        int       `json:"version"`
	LLMDataSharing bool      `json:"llm_data_sharing"`
	DataCollection bool      `json:"data_collection"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Current reports whether the record was granted under ConsentVersion.
func (c UserConsent) Current() bool {
	return c.Version == ConsentVersion
}
