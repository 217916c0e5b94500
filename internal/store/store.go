// Package store is the persistence collaborator for scan records, final
// reports, and containment actions.
package store

import (
	"context"

	"github.com/mlnas/MirrorScan/internal/models"
)

// ScanStore persists scan lifecycle data. Implementations must be safe for
// concurrent use.
type ScanStore interface {
	// CreateScan persists a freshly submitted record.
	CreateScan(ctx context.Context, rec *models.ScanRecord) error

	// UpdateScan replaces the stored record with the given snapshot.
	UpdateScan(ctx context.Context, rec *models.ScanRecord) error

	// GetScan returns the stored record or models.ErrNotFound.
	GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error)

	// ListScans returns stored records, most recent first.
	ListScans(ctx context.Context, limit int) ([]*models.ScanRecord, error)

	// AppendContainmentAction appends one containment record. Append-only.
	AppendContainmentAction(ctx context.Context, action *models.ContainmentAction) error

	// ContainmentActions returns the actions recorded for a scan.
	ContainmentActions(ctx context.Context, scanID string) ([]*models.ContainmentAction, error)
}
