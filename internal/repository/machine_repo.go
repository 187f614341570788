package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/machinemate/machinemate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MachineRepository handles catalog machine data operations.
// The identification pipeline treats the catalog as read-only; writes
// exist only for seeding and administration.
type MachineRepository struct {
	db *gorm.DB
}

// NewMachineRepository creates a new MachineRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MachineRepository: repository instance bound to db.
func NewMachineRepository(db *gorm.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

// ListActive returns all active machines ordered by name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Machine: active catalog entries.
//   - error: non-nil if the query fails.
func (r *MachineRepository) ListActive(ctx context.Context) ([]domain.Machine, error) {
	var machines []domain.Machine
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// GetByID retrieves a machine by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: machine identifier.
// Returns:
//   - *domain.Machine: machine record, nil when no machine has id.
//   - error: non-nil only on query failure.
func (r *MachineRepository) GetByID(ctx context.Context, id string) (*domain.Machine, error) {
	var machine domain.Machine
	if err := r.db.WithContext(ctx).First(&machine, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &machine, nil
}

// GetByName retrieves a machine by exact name, case-insensitive.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: machine display name.
// Returns:
//   - *domain.Machine: matching record, nil when no machine has name.
//   - error: non-nil only on query failure.
func (r *MachineRepository) GetByName(ctx context.Context, name string) (*domain.Machine, error) {
	var machine domain.Machine
	if err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&machine).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &machine, nil
}

// Upsert inserts or updates a machine record. Used by catalog seeding.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - machine: record to persist.
// Returns:
//   - error: non-nil if the write fails.
func (r *MachineRepository) Upsert(ctx context.Context, machine *domain.Machine) error {
	if machine.ID == "" {
		return fmt.Errorf("machine id is required")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(machine).Error
}

// Count returns the number of active machines.
func (r *MachineRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Machine{}).
		Where("is_active = ?", true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
