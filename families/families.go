package families

import (
	"time"

	"github.com/jrsteele09/family-budget-client/users"
)

// RoleType is a member's role within a family.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"  // Can invite, remove and promote members
	RoleMember RoleType = "member" // Regular member
)

// MembershipStatus tracks an invitation through its lifecycle.
type MembershipStatus string

const (
	StatusPending  MembershipStatus = "pending"
	StatusAccepted MembershipStatus = "accepted"
	StatusRejected MembershipStatus = "rejected"
)

// InvitationResponse is the answer to a pending invitation.
type InvitationResponse string

const (
	Accept InvitationResponse = "accept"
	Reject InvitationResponse = "reject"
)

// Family is a household that owns budgets, transactions and savings goals.
type Family struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   *users.Profile `json:"created_by,omitempty"`
}

// Membership links a user to a family. Pending memberships are invitations.
type Membership struct {
	ID          int              `json:"id"`
	Family      *Family          `json:"family,omitempty"`
	User        *users.Profile   `json:"user,omitempty"`
	Role        RoleType         `json:"role"`
	Status      MembershipStatus `json:"status"`
	InvitedBy   *users.Profile   `json:"invited_by,omitempty"`
	InvitedAt   time.Time        `json:"invited_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// Input is the writable part of a family.
type Input struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InviteRequest is the body of POST /families/{id}/invite/.
type InviteRequest struct {
	Email string `json:"email"`
}

// RespondRequest is the body of POST /families/invitations/{id}/respond/.
type RespondRequest struct {
	Response InvitationResponse `json:"response"`
}

// DetailResponse is the {"detail": "..."} acknowledgement several endpoints return.
type DetailResponse struct {
	Detail string `json:"detail"`
}
