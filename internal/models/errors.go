package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for scan operations. Callers match with errors.Is.
var (
	// ErrValidation covers malformed or unsupported requests, rejected
	// before any scan state is created.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedScanType is a validation failure for an unknown scan type.
	ErrUnsupportedScanType = fmt.Errorf("%w: unsupported scan type", ErrValidation)

	// ErrNotFound indicates an unknown scan id.
	ErrNotFound = errors.New("scan not found")

	// ErrInvalidTransition indicates an illegal lifecycle operation,
	// including any attempt to leave a terminal state.
	ErrInvalidTransition = errors.New("invalid scan transition")

	// ErrReportNotReady indicates a report was requested before the scan
	// reached a terminal state.
	ErrReportNotReady = errors.New("scan report not ready")

	// ErrScoring indicates a scoring invariant violation. Findings are
	// validated at construction, so this is a fatal internal error.
	ErrScoring = errors.New("scoring invariant violated")
)
