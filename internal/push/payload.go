// Package push delivers offline message notifications over Web Push.
package push

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ImageMarker precedes inline image data inside a message body.
const ImageMarker = "[image]"

const (
	previewRunes = 100
	ellipsis     = "..."
	iconPath     = "/icon.png"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Payload is the JSON document handed to the client's service worker.
type Payload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
}

// BuildPayload renders the notification for an offline member.
func BuildPayload(n chat.OfflineNotice) Payload {
	return Payload{
		ID:    newID(),
		Title: "New message in " + n.RoomLabel,
		Body:  Preview(n.Message),
		Icon:  iconPath,
		URL:   "/chat/" + n.RoomID,
	}
}

// Preview shortens a message body for display in a notification. Inline image
// data is replaced by the marker alone, and text longer than 100 runes is cut
// and suffixed with "...".
func Preview(message string) string {
	text, images, found := strings.Cut(message, ImageMarker)
	text = strings.TrimSpace(text)
	if found && images != "" {
		if text == "" {
			text = ImageMarker
		} else {
			text += " " + ImageMarker
		}
	}

	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + ellipsis
}
