package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict: an alert with this slug already exists")
	ErrNotPlaying       = errors.New("queue item is not playing")
	ErrInvalidTitle     = errors.New("title must be between 1 and 120 characters")
	ErrInvalidSlug      = errors.New("title must contain at least one letter or digit")
	ErrInvalidKind      = errors.New("invalid kind: must be gift, media, or text")
	ErrInvalidMediaURL  = errors.New("media alerts require an http(s) media_url")
	ErrInvalidDuration  = errors.New("duration_ms must be between 0 and 600000")
	ErrInvalidUsername  = errors.New("username must be at most 64 characters")
	ErrInvalidCount     = errors.New("count must be between 1 and 1000000")
	ErrUnknownAlertKind = errors.New("unknown alert kind")
	ErrRateLimited      = errors.New("too many triggers for this alert, try again later")
)
