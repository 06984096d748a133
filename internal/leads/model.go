package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead represents a rental enquiry captured from a listing portal or web form.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Area      string    `json:"area"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`

	WhatsAppOptIn         bool       `json:"whatsapp_opt_in"`
	WhatsAppBlocked       bool       `json:"whatsapp_blocked"`
	WhatsAppBlockReason   string     `json:"whatsapp_block_reason,omitempty"`
	WhatsAppLastErrorCode int        `json:"whatsapp_last_error_code,omitempty"`
	FirstReplyAt          *time.Time `json:"first_reply_at,omitempty"`
}

// FirstName returns the leading word of the lead's name, used to personalize
// outbound templates.
func (l *Lead) FirstName() string {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		return ""
	}
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

// CreateLeadRequest represents the request body for creating a lead.
type CreateLeadRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Area   string `json:"area"`
	Source string `json:"source"`
}

// Validate validates the create lead request.
func (r *CreateLeadRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}

// Digits strips every non-digit rune from a phone number. Portals deliver
// numbers in wildly different shapes ("+91 98765-43210", "09876543210"), so
// matching always happens on the digit string.
func Digits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SuffixCandidates returns progressively shorter trailing-digit suffixes of
// the phone number, longest first. Country-code and trunk-prefix variance
// means the same person can appear as 12, 11 or 10 digits depending on the
// source, so lookups retry with shorter suffixes.
func SuffixCandidates(phone string, lengths ...int) []string {
	digits := Digits(phone)
	seen := make(map[string]struct{}, len(lengths))
	out := make([]string, 0, len(lengths))
	for _, n := range lengths {
		if n <= 0 || len(digits) < n {
			continue
		}
		suffix := digits[len(digits)-n:]
		if _, ok := seen[suffix]; ok {
			continue
		}
		seen[suffix] = struct{}{}
		out = append(out, suffix)
	}
	return out
}
