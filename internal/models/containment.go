package models

import (
	"time"

	"github.com/google/uuid"
)

// ContainmentKind is the response the dispatcher requested.
type ContainmentKind string

const (
	ContainIsolateModel ContainmentKind = "isolate_model"
	ContainRevokeAccess ContainmentKind = "revoke_access"
)

// Containment outcomes.
const (
	ContainmentExecuted = "executed"
	ContainmentFailed   = "failed"
)

// ContainmentAction records one triggered containment response. Append-only;
// the outcome of a failed executor call is recorded, never retried here.
type ContainmentAction struct {
	ID     string `json:"id"`
	ScanID string `json:"scan_id"`

	// Trigger is the reason the policy fired: the finding id (or "risk_score")
	// and the threshold that was crossed.
	TriggerFindingID string `json:"trigger_finding_id,omitempty"`
	Reason           string `json:"reason"`

	Kind        ContainmentKind `json:"kind"`
	RequestedAt time.Time       `json:"requested_at"`
	Outcome     string          `json:"outcome"`
	Error       string          `json:"error,omitempty"`
}

// NewContainmentAction builds an action for a scan with the trigger reason.
func NewContainmentAction(scanID string, kind ContainmentKind, triggerFindingID, reason string) *ContainmentAction {
	return &ContainmentAction{
		ID:               uuid.NewString(),
		ScanID:           scanID,
		TriggerFindingID: triggerFindingID,
		Reason:           reason,
		Kind:             kind,
		RequestedAt:      time.Now().UTC(),
	}
}
