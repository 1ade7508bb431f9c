package domain

import (
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// AlertKind selects how the display surface presents an alert.
type AlertKind string

const (
	KindGift  AlertKind = "gift"
	KindMedia AlertKind = "media"
	KindText  AlertKind = "text"
)

func (k AlertKind) IsValid() bool {
	switch k {
	case KindGift, KindMedia, KindText:
		return true
	}
	return false
}

const (
	maxTitleLen    = 120
	maxUsernameLen = 64
	maxCount       = 1_000_000
	maxDurationMs  = 600_000
)

// Alert is the definition a queue row points at: what to show when it plays.
type Alert struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	MediaURL   *string   `json:"media_url,omitempty"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RenderMessage fills the {username} and {count} placeholders of the
// alert's message template.
func (a *Alert) RenderMessage(username *string, count *int) string {
	name := "Someone"
	if username != nil && *username != "" {
		name = *username
	}
	n := "1"
	if count != nil {
		n = strconv.Itoa(*count)
	}
	return strings.NewReplacer("{username}", name, "{count}", n).Replace(a.Message)
}

// CreateAlertRequest is the inbound payload for a new alert definition.
type CreateAlertRequest struct {
	Title      string    `json:"title"`
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	MediaURL   *string   `json:"media_url,omitempty"`
	DurationMs int       `json:"duration_ms"`
}

func (r *CreateAlertRequest) Validate() error {
	title := strings.TrimSpace(r.Title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return ErrInvalidTitle
	}
	if Slugify(title) == "" {
		return ErrInvalidSlug
	}
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if r.Kind == KindMedia && (r.MediaURL == nil || !isHTTPURL(*r.MediaURL)) {
		return ErrInvalidMediaURL
	}
	if r.MediaURL != nil && *r.MediaURL != "" && !isHTTPURL(*r.MediaURL) {
		return ErrInvalidMediaURL
	}
	if r.DurationMs < 0 || r.DurationMs > maxDurationMs {
		return ErrInvalidDuration
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TriggerRequest carries the optional submitter fields of a trigger call.
type TriggerRequest struct {
	Username *string `json:"username,omitempty"`
	Count    *int    `json:"count,omitempty"`
}

// Normalize trims the username, drops it when empty and validates both fields.
func (r *TriggerRequest) Normalize() error {
	if r.Username != nil {
		name := strings.TrimSpace(*r.Username)
		if utf8.RuneCountInString(name) > maxUsernameLen {
			return ErrInvalidUsername
		}
		if name == "" {
			r.Username = nil
		} else {
			r.Username = &name
		}
	}
	if r.Count != nil && (*r.Count < 1 || *r.Count > maxCount) {
		return ErrInvalidCount
	}
	return nil
}

// Slugify turns a human title into the URL identifier used by trigger
// endpoints: "Big Gift Bomb!" becomes "big-gift-bomb".
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(title) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
