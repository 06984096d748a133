package whatsapp

// WebhookEvent is the envelope Meta posts to the webhook endpoint.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes delivered for one WhatsApp Business Account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field-scoped payload inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the union of payloads across recognized change fields.
type ChangeValue struct {
	MessagingProduct string      `json:"messaging_product,omitempty"`
	Metadata         Metadata    `json:"metadata"`
	Contacts         []Contact   `json:"contacts,omitempty"`
	Messages         []Message   `json:"messages,omitempty"`
	Statuses         []Status    `json:"statuses,omitempty"`
	Calls            []CallEvent `json:"calls,omitempty"`
}

// Metadata identifies the business phone line the event belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact carries the sender profile snapshot Meta attaches to messages.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound (or echoed outbound) message payload.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text     *TextPayload     `json:"text,omitempty"`
	Image    *MediaPayload    `json:"image,omitempty"`
	Video    *MediaPayload    `json:"video,omitempty"`
	Audio    *MediaPayload    `json:"audio,omitempty"`
	Sticker  *MediaPayload    `json:"sticker,omitempty"`
	Document *DocumentPayload `json:"document,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
	Contacts []ContactCard    `json:"contacts,omitempty"`
	Button   *ButtonPayload   `json:"button,omitempty"`

	Interactive *InteractivePayload `json:"interactive,omitempty"`
	Reaction    *ReactionPayload    `json:"reaction,omitempty"`

	Context *MessageContext `json:"context,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type MediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type DocumentPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type ContactCard struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
	} `json:"name"`
}

type ButtonPayload struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// InteractivePayload is kept raw enough to stash alongside the extracted text.
type InteractivePayload struct {
	Type        string            `json:"type"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
}

type InteractiveReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// MessageContext references the message being replied to. Informational only.
type MessageContext struct {
	ID   string `json:"id"`
	From string `json:"from,omitempty"`
}

// Status is one delivery-status transition for a previously sent message.
type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code      int    `json:"code"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorData struct {
		Details string `json:"details,omitempty"`
	} `json:"error_data"`
}

// CallEvent is delivered under the "calls" change field.
type CallEvent struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Event     string `json:"event"`
	Direction string `json:"direction,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Recognized change fields. Anything else is ignored by the dispatcher.
const (
	FieldMessages      = "messages"
	FieldCalls         = "calls"
	FieldHistory       = "history"
	FieldAppStateSync  = "smb_app_state_sync"
	FieldMessageEchoes = "smb_message_echoes"
)
