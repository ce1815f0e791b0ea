package leveling

import (
	"context"
	"errors"

	"github.com/studyforge/backend/internal/models"
)

var (
	ErrProgressNotFound = errors.New("progress not found")
	ErrProgressExists   = errors.New("progress already exists")
	ErrVersionConflict  = errors.New("progress was modified concurrently")
)

// ProgressStore persists one progress record per user.
//
// CreateProgress stores a new record at version 1 and fails with ErrProgressExists if the user
// already has one. SaveProgress writes p only if the stored version still equals p.Version,
// bumps p.Version on success and otherwise returns ErrVersionConflict. Achievements are
// append-only and keep insertion order.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID string) (*models.UserProgress, error)
	CreateProgress(ctx context.Context, p *models.UserProgress) error
	SaveProgress(ctx context.Context, p *models.UserProgress) error
}
