package rbac

import (
	"time"
)

// Level is a role rank. Only the enumerated levels are valid; any other
// value is rejected on write and resolves to the Guest rule on read.
type Level int

const (
	LevelGuest      Level = 0
	LevelMember     Level = 10
	LevelModerator  Level = 50
	LevelAdmin      Level = 80
	LevelSuperAdmin Level = 100
)

// Levels lists every valid role level in ascending order
var Levels = []Level{LevelGuest, LevelMember, LevelModerator, LevelAdmin, LevelSuperAdmin}

// Valid reports whether l is one of the enumerated levels
func (l Level) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// WildcardAction grants every action slug
const WildcardAction = "*"

// Action slugs gated by the permission engine
const (
	ActionViewHelp    = "view_help"
	ActionInspectFile = "inspect_file"
	ActionKickUser    = "kick_user"
	ActionPurgeChat   = "purge_chat"
	ActionManageUsers = "manage_users"
)

// RoleDefinition binds a level to its name and permitted action slugs
type RoleDefinition struct {
	Level   Level
	Name    string
	Actions []string
}

// HasAction reports whether the role grants slug, honoring the wildcard
func (r RoleDefinition) HasAction(slug string) bool {
	for _, a := range r.Actions {
		if a == WildcardAction || a == slug {
			return true
		}
	}
	return false
}

// Principal is any identity capable of acting: a user, or a group,
// channel, or anonymous admin acting as the group (negative id).
type Principal struct {
	ID           int64
	Name         string
	Level        Level
	Special      bool
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	Premium      bool
}

// RequestStatus is the state of a pending approval request
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transition
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Prompt locates one approval prompt message posted to a SuperAdmin
type Prompt struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// PendingRequest is one role-escalation request awaiting a decision.
// A requester has at most one non-terminal request; the prompt set holds
// every decision message posted to the current SuperAdmins.
type PendingRequest struct {
	RequesterID int64         `json:"requester_id"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	Prompts     []Prompt      `json:"prompts,omitempty"`
}

// DefaultRules returns the built-in role definitions used to seed a fresh
// rules document.
func DefaultRules() map[Level]RoleDefinition {
	return map[Level]RoleDefinition{
		LevelGuest: {
			Level:   LevelGuest,
			Name:    "Guest",
			Actions: []string{ActionViewHelp},
		},
		LevelMember: {
			Level:   LevelMember,
			Name:    "Member",
			Actions: []string{ActionViewHelp, ActionInspectFile},
		},
		LevelModerator: {
			Level:   LevelModerator,
			Name:    "Moderator",
			Actions: []string{ActionViewHelp, ActionInspectFile, ActionKickUser, ActionPurgeChat},
		},
		LevelAdmin: {
			Level:   LevelAdmin,
			Name:    "Admin",
			Actions: []string{ActionViewHelp, ActionInspectFile, ActionKickUser, ActionPurgeChat, ActionManageUsers},
		},
		LevelSuperAdmin: {
			Level:   LevelSuperAdmin,
			Name:    "SuperAdmin",
			Actions: []string{WildcardAction},
		},
	}
}
