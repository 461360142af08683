package domain

import "time"

// ResolutionAction is the user's choice for a pending duplicate decision.
type ResolutionAction string

const (
	ResolutionAddNew  ResolutionAction = "add_new"
	ResolutionReplace ResolutionAction = "replace"
	ResolutionCancel  ResolutionAction = "cancel"
)

// ParseResolutionAction maps raw callback input onto a known action.
func ParseResolutionAction(raw string) (ResolutionAction, bool) {
	switch ResolutionAction(raw) {
	case ResolutionAddNew, ResolutionReplace, ResolutionCancel:
		return ResolutionAction(raw), true
	default:
		return "", false
	}
}

// PendingDecision parks a new document that collided with an existing one
// until a human picks add-as-new, replace or cancel. It lives only between
// collision detection and resolution; resolution claims and deletes it
// atomically so a second resolver observes it as already gone.
type PendingDecision struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Candidate       Document  `json:"candidate"`
	ExistingID      string    `json:"existing_id"`
	PromptRef       string    `json:"prompt_ref"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Expired reports whether the decision's time window has elapsed.
func (d *PendingDecision) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}
