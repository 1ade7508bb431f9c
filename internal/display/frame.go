// Package display is the realtime gateway to the display surfaces (OBS
// browser sources and similar). Displays connect over WebSocket, receive a
// frame whenever an item starts playing, send heartbeats while it is on
// screen, and report back when playback finishes.
package display

import (
	"fmt"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// FrameType identifies a server → display message.
type FrameType string

const (
	FramePlay     FrameType = "play"
	FrameComplete FrameType = "complete"
	FramePong     FrameType = "pong"
	FrameError    FrameType = "error"
)

// Frame is the envelope every server → display message uses.
type Frame struct {
	Type   FrameType `json:"type"`
	ItemID string    `json:"item_id,omitempty"`
	Alert  *Alert    `json:"alert,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Alert is the presentation of one queue item. Body holds exactly one of
// GiftFrame, MediaFrame or TextFrame, selected by Kind.
type Alert struct {
	ID         string           `json:"id"`
	Slug       string           `json:"slug"`
	Title      string           `json:"title"`
	Kind       domain.AlertKind `json:"kind"`
	DurationMs int              `json:"duration_ms"`
	Body       Body             `json:"body"`
}

// Body is implemented only by the kind-specific frame bodies in this package.
type Body interface {
	kind() domain.AlertKind
}

type GiftFrame struct {
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
	Count    int    `json:"count"`
}

type MediaFrame struct {
	Message  string `json:"message"`
	MediaURL string `json:"media_url"`
	Username string `json:"username,omitempty"`
}

type TextFrame struct {
	Message string `json:"message"`
}

func (GiftFrame) kind() domain.AlertKind  { return domain.KindGift }
func (MediaFrame) kind() domain.AlertKind { return domain.KindMedia }
func (TextFrame) kind() domain.AlertKind  { return domain.KindText }

// Render builds the play frame for a queue item and its alert definition.
func Render(item *domain.QueueItem, alert *domain.Alert) (Frame, error) {
	body, err := renderBody(item, alert)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FramePlay,
		ItemID: item.ID,
		Alert: &Alert{
			ID:         alert.ID,
			Slug:       alert.Slug,
			Title:      alert.Title,
			Kind:       alert.Kind,
			DurationMs: alert.DurationMs,
			Body:       body,
		},
	}, nil
}

func renderBody(item *domain.QueueItem, alert *domain.Alert) (Body, error) {
	message := alert.RenderMessage(item.Username, item.Count)
	username := ""
	if item.Username != nil {
		username = *item.Username
	}

	switch alert.Kind {
	case domain.KindGift:
		count := 1
		if item.Count != nil {
			count = *item.Count
		}
		return GiftFrame{Message: message, Username: username, Count: count}, nil
	case domain.KindMedia:
		if alert.MediaURL == nil {
			return nil, fmt.Errorf("alert %s: %w", alert.Slug, domain.ErrInvalidMediaURL)
		}
		return MediaFrame{Message: message, MediaURL: *alert.MediaURL, Username: username}, nil
	case domain.KindText:
		return TextFrame{Message: message}, nil
	default:
		return nil, fmt.Errorf("alert %s kind %q: %w", alert.Slug, alert.Kind, domain.ErrUnknownAlertKind)
	}
}

func completeFrame(itemID string) Frame {
	return Frame{Type: FrameComplete, ItemID: itemID}
}

func errorFrame(msg string) Frame {
	return Frame{Type: FrameError, Error: msg}
}
