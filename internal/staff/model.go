package staff

import (
	"strings"

	"github.com/google/uuid"
)

// Staff roles. Role strings are stored verbatim in the database and in JWT
// claims, so the constants must not change casing.
const (
	RoleSuperAdmin      = "SuperAdmin"
	RoleAdmin           = "Admin"
	RoleDeveloper       = "Developer"
	RoleSales           = "Sales"
	RoleSalesTeamLead   = "Sales-TeamLead"
	RoleLeadGenTeamLead = "LeadGen-TeamLead"
	RoleLeadGen         = "LeadGen"
	RoleAdvert          = "Advert"
)

// Area sentinels. A staff member allotted "all" or "both" covers every
// phone line regardless of its area tags.
const (
	AreaAll  = "all"
	AreaBoth = "both"
)

// Staff is a back-office user who receives WhatsApp activity notifications.
type Staff struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	AllottedAreas []string  `json:"allotted_areas"`
	Active        bool      `json:"active"`
}

// IsManagement reports whether the role sees all activity unconditionally.
func (s *Staff) IsManagement() bool {
	switch s.Role {
	case RoleSuperAdmin, RoleAdmin, RoleDeveloper:
		return true
	}
	return false
}

// CoversArea reports whether any of the staff member's allotted areas matches
// one of the line's areas. Matching is case-insensitive, and the "all"/"both"
// sentinels on either side match everything.
func (s *Staff) CoversArea(lineAreas []string) bool {
	for _, allotted := range s.AllottedAreas {
		a := strings.ToLower(strings.TrimSpace(allotted))
		if a == "" {
			continue
		}
		if a == AreaAll || a == AreaBoth {
			return true
		}
		for _, area := range lineAreas {
			b := strings.ToLower(strings.TrimSpace(area))
			if b == "" {
				continue
			}
			if b == AreaAll || b == AreaBoth || a == b {
				return true
			}
		}
	}
	return false
}

// PhoneLine maps a WhatsApp business phone number ID to the rental areas it
// serves. Lines are provisioned by hand, so the table is tiny and read often.
type PhoneLine struct {
	BusinessPhoneID string   `json:"business_phone_id"`
	Label           string   `json:"label"`
	Areas           []string `json:"areas"`
	IsRetarget      bool     `json:"is_retarget"`
}
