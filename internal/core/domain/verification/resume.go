package verification

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names carried across redirects and reloads.
const (
	ParamEmail    = "email"
	ParamSent     = "sent"
	ParamUsername = "username"
	ParamName     = "name"
)

// ResumeParams is the navigation state that lets an awaiting-code page be
// reopened after a redirect or reload without losing the countdown.
type ResumeParams struct {
	Email    string    `json:"email,omitempty"`
	SentAt   time.Time `json:"sent_at,omitempty"`
	Username string    `json:"username,omitempty"`
	Name     string    `json:"name,omitempty"`
}

// ParseResumeParams reads the resume state from a URL query. The sent value is
// Unix milliseconds; an unparsable value is ignored.
func ParseResumeParams(q url.Values) ResumeParams {
	p := ResumeParams{
		Email:    TrimEmail(q.Get(ParamEmail)),
		Username: strings.TrimSpace(q.Get(ParamUsername)),
		Name:     strings.TrimSpace(q.Get(ParamName)),
	}
	if raw := q.Get(ParamSent); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			p.SentAt = time.UnixMilli(ms)
		}
	}
	return p
}

// IsResumable reports whether the page should open directly in the
// awaiting-code step.
func (p ResumeParams) IsResumable() bool {
	return p.Email != ""
}

// IssuedAt returns the issuance time to restore. A missing or future sent
// timestamp falls back to now.
func (p ResumeParams) IssuedAt(now time.Time) time.Time {
	if p.SentAt.IsZero() || p.SentAt.After(now) {
		return now
	}
	return p.SentAt
}

// Query renders the params back into URL form.
func (p ResumeParams) Query() url.Values {
	q := url.Values{}
	if p.Email != "" {
		q.Set(ParamEmail, p.Email)
	}
	if !p.SentAt.IsZero() {
		q.Set(ParamSent, strconv.FormatInt(p.SentAt.UnixMilli(), 10))
	}
	if p.Username != "" {
		q.Set(ParamUsername, p.Username)
	}
	if p.Name != "" {
		q.Set(ParamName, p.Name)
	}
	return q
}
