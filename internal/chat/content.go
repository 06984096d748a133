package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
)

// ContentKind tags the content variant of a message.
type ContentKind string

const (
	ContentText        ContentKind = "text"
	ContentMedia       ContentKind = "media"
	ContentLocation    ContentKind = "location"
	ContentInteractive ContentKind = "interactive"
)

// Location is a shared geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Content is the tagged variant over text, media caption, location and
// interactive payloads. Exactly the fields for the tagged kind are set.
type Content struct {
	Kind        ContentKind                  `json:"kind"`
	Text        string                       `json:"text,omitempty"`
	Caption     string                       `json:"caption,omitempty"`
	Location    *Location                    `json:"location,omitempty"`
	Interactive *whatsapp.InteractivePayload `json:"interactive,omitempty"`
}

// SummaryMaxLen bounds conversation summary fields wherever they are persisted.
const SummaryMaxLen = 100

// Normalized is the canonical content record derived from a provider message.
// MediaURL is filled in later by the media resolver; the normalizer only
// extracts the handle and hints.
type Normalized struct {
	Content  Content
	MediaID  string
	MimeType string
	Filename string

	ReplyToMessageID   string
	ReplyContextFrom   string
	ReactedToMessageID string
	ReactionEmoji      string
}

// Normalize maps a provider message payload into a canonical content record.
func Normalize(msg whatsapp.Message) Normalized {
	var n Normalized

	if msg.Context != nil {
		n.ReplyToMessageID = msg.Context.ID
		n.ReplyContextFrom = msg.Context.From
	}

	switch msg.Type {
	case "text":
		n.Content = Content{Kind: ContentText}
		if msg.Text != nil {
			n.Content.Text = msg.Text.Body
		}
	case "image":
		n.Content = Content{Kind: ContentMedia}
		if msg.Image != nil {
			n.Content.Caption = msg.Image.Caption
			n.MediaID = msg.Image.ID
			n.MimeType = msg.Image.MimeType
		}
	case "video":
		n.Content = Content{Kind: ContentMedia}
		if msg.Video != nil {
			n.Content.Caption = msg.Video.Caption
			n.MediaID = msg.Video.ID
			n.MimeType = msg.Video.MimeType
		}
	case "sticker":
		n.Content = Content{Kind: ContentMedia, Text: "🎨 Sticker"}
		if msg.Sticker != nil {
			n.MediaID = msg.Sticker.ID
			n.MimeType = msg.Sticker.MimeType
		}
	case "audio":
		n.Content = Content{Kind: ContentMedia, Text: "🎵 Audio message"}
		if msg.Audio != nil {
			n.MediaID = msg.Audio.ID
			n.MimeType = msg.Audio.MimeType
		}
	case "document":
		n.Content = Content{Kind: ContentMedia}
		n.Filename = "document"
		if msg.Document != nil {
			n.Content.Caption = msg.Document.Caption
			n.MediaID = msg.Document.ID
			n.MimeType = msg.Document.MimeType
			if msg.Document.Filename != "" {
				n.Filename = msg.Document.Filename
			}
		}
	case "location":
		n.Content = Content{Kind: ContentLocation}
		if msg.Location != nil {
			n.Content.Location = &Location{
				Latitude:  msg.Location.Latitude,
				Longitude: msg.Location.Longitude,
				Name:      msg.Location.Name,
				Address:   msg.Location.Address,
			}
		}
	case "contacts":
		name := "Unknown"
		if len(msg.Contacts) > 0 && msg.Contacts[0].Name.FormattedName != "" {
			name = msg.Contacts[0].Name.FormattedName
		}
		n.Content = Content{Kind: ContentText, Text: "👤 Contact: " + name}
	case "button":
		text := "Button response"
		if msg.Button != nil {
			if msg.Button.Text != "" {
				text = msg.Button.Text
			} else if msg.Button.Payload != "" {
				text = msg.Button.Payload
			}
		}
		n.Content = Content{Kind: ContentText, Text: text}
	case "interactive":
		n.Content = Content{Kind: ContentInteractive, Interactive: msg.Interactive, Text: interactiveText(msg.Interactive)}
	case "reaction":
		emoji := "👍"
		if msg.Reaction != nil {
			if msg.Reaction.Emoji != "" {
				emoji = msg.Reaction.Emoji
			}
			n.ReactedToMessageID = msg.Reaction.MessageID
			n.ReactionEmoji = msg.Reaction.Emoji
		}
		n.Content = Content{Kind: ContentText, Text: "Reacted: " + emoji}
	default:
		n.Content = Content{Kind: ContentText, Text: msg.Type + " message"}
	}

	return n
}

func interactiveText(p *whatsapp.InteractivePayload) string {
	if p != nil {
		if p.ButtonReply != nil {
			if p.ButtonReply.Title != "" {
				return p.ButtonReply.Title
			}
			if p.ButtonReply.ID != "" {
				return p.ButtonReply.ID
			}
		}
		if p.ListReply != nil {
			if p.ListReply.Title != "" {
				return p.ListReply.Title
			}
			if p.ListReply.ID != "" {
				return p.ListReply.ID
			}
		}
	}
	return "Interactive response"
}

// DisplayText derives the conversation-summary preview for a message.
func DisplayText(content Content, msgType string) string {
	if content.Text != "" {
		return content.Text
	}
	if content.Caption != "" {
		return content.Caption
	}
	if content.Location != nil {
		name := content.Location.Name
		if name == "" {
			name = "Location"
		}
		return "📍 " + name
	}
	return fmt.Sprintf("%s message", msgType)
}

// TruncateSummary bounds a summary string to SummaryMaxLen characters.
func TruncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= SummaryMaxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:SummaryMaxLen])
}
