package models

import "time"

// ScanType selects a detector class.
type ScanType string

const (
	ScanTypeMemory      ScanType = "memory"
	ScanTypeEmbedding   ScanType = "embedding"
	ScanTypeRedTeam     ScanType = "redteam"
	ScanTypeFingerprint ScanType = "fingerprint"
	ScanTypeGuardrail   ScanType = "guardrail"
)

// ScanState is the lifecycle state of a whole scan.
type ScanState string

const (
	ScanPending   ScanState = "pending"
	ScanRunning   ScanState = "running"
	ScanCompleted ScanState = "completed"
	ScanFailed    ScanState = "failed"
	ScanCancelled ScanState = "cancelled"
)

// Terminal reports whether the state is absorbing.
func (s ScanState) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed || s == ScanCancelled
}

// DetectorState is the sub-state of a single dispatched detector.
type DetectorState string

const (
	DetectorPending   DetectorState = "pending"
	DetectorRunning   DetectorState = "running"
	DetectorSucceeded DetectorState = "succeeded"
	DetectorFailed    DetectorState = "failed"
)

// Terminal reports whether the detector settled.
func (d DetectorState) Terminal() bool {
	return d == DetectorSucceeded || d == DetectorFailed
}

// ScanRequest is the immutable input for one scan. Created by the caller,
// never mutated by the engine.
type ScanRequest struct {
	TargetModel string `json:"target_model"`
	Endpoint    string `json:"endpoint,omitempty"`

	ScanTypes []ScanType `json:"scan_types"`

	// Input payload. Which fields are required depends on the scan types.
	InputText  string      `json:"input_text,omitempty"`
	OutputText string      `json:"output_text,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`

	// Opaque requester reference, owned by the identity collaborator.
	RequestedBy string `json:"requested_by,omitempty"`

	// Per-scan threshold overrides, keyed by config knob name.
	Overrides map[string]float64 `json:"overrides,omitempty"`
}

// DetectorStatus tracks one detector's progress inside a running scan.
type DetectorStatus struct {
	Name     string        `json:"name"`
	State    DetectorState `json:"state"`
	Error    string        `json:"error,omitempty"`
	Findings int           `json:"findings"`
}

// ScanRecord is the mutable aggregate for one scan's lifecycle. It is owned
// by the state machine; everything else reads snapshots.
type ScanRecord struct {
	ID      string      `json:"id"`
	Request ScanRequest `json:"request"`

	State     ScanState                  `json:"state"`
	Detectors map[string]*DetectorStatus `json:"detectors"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Report is nil until the scan completes. Failed and cancelled scans
	// never carry a report.
	Report *ScanReport `json:"report,omitempty"`
}
