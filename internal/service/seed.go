package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/repository"
)

// SeedService populates the machine catalog. An empty catalog makes the
// whole pipeline fail fast, so a fresh deployment seeds the built-in
// machines (or a JSON file) before serving.
type SeedService struct {
	machines *repository.MachineRepository
}

// NewSeedService creates the seeder.
func NewSeedService(machines *repository.MachineRepository) *SeedService {
	return &SeedService{machines: machines}
}

// SeedDefaults inserts the built-in catalog when the machines table is
// empty. An already-populated catalog is left untouched.
func (s *SeedService) SeedDefaults(ctx context.Context) error {
	count, err := s.machines.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count machines: %w", err)
	}
	if count > 0 {
		applog.CtxDebug(ctx, "catalog already seeded: count=%d", count)
		return nil
	}
	return s.upsertAll(ctx, defaultMachines())
}

// SeedFromFile upserts machines from a JSON file holding an array of
// machine objects. Existing entries with matching ids are updated.
func (s *SeedService) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var machines []domain.Machine
	if err := json.Unmarshal(data, &machines); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(machines) == 0 {
		return fmt.Errorf("seed file contains no machines")
	}
	return s.upsertAll(ctx, machines)
}

func (s *SeedService) upsertAll(ctx context.Context, machines []domain.Machine) error {
	for i := range machines {
		m := &machines[i]
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("machine %d: id and name are required", i)
		}
		if err := s.machines.Upsert(ctx, m); err != nil {
			return fmt.Errorf("failed to upsert machine %s: %w", m.ID, err)
		}
	}
	applog.CtxInfo(ctx, "catalog seeded: count=%d", len(machines))
	return nil
}

// defaultMachines is the built-in six-machine catalog.
func defaultMachines() []domain.Machine {
	return []domain.Machine{
		{
			ID:             "chest-press-machine",
			Name:           "Chest Press Machine",
			Category:       "strength",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"chest"},
			EquipmentType:  "selectorized machine",
			Description:    "a seated chest press machine with two horizontal handles and a weight stack",
			Keywords:       domain.StringArray{"press", "chest", "handles", "weight stack"},
			IsActive:       true,
		},
		{
			ID:             "lat-pulldown",
			Name:           "Lat Pulldown",
			Category:       "strength",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"lats"},
			EquipmentType:  "cable machine",
			Description:    "a lat pulldown cable station with a wide overhead bar and a seat with thigh pads",
			Keywords:       domain.StringArray{"pulldown", "cable", "overhead bar", "back"},
			IsActive:       true,
		},
		{
			ID:             "seated-cable-row",
			Name:           "Seated Cable Row",
			Category:       "strength",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"back"},
			EquipmentType:  "cable machine",
			Description:    "a seated cable row station with a low pulley, footplates and a chest-height bench",
			Keywords:       domain.StringArray{"row", "cable", "low pulley", "footplates"},
			IsActive:       true,
		},
		{
			ID:             "seated-leg-press",
			Name:           "Seated Leg Press",
			Category:       "strength",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"quadriceps", "glutes"},
			EquipmentType:  "selectorized machine",
			Description:    "a seated leg press machine with a large angled footplate and a reclined seat",
			Keywords:       domain.StringArray{"leg press", "footplate", "quads"},
			IsActive:       true,
		},
		{
			ID:             "shoulder-press-machine",
			Name:           "Shoulder Press Machine",
			Category:       "strength",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"shoulders"},
			EquipmentType:  "selectorized machine",
			Description:    "a seated shoulder press machine with overhead handles and an upright backrest",
			Keywords:       domain.StringArray{"shoulder press", "overhead", "handles"},
			IsActive:       true,
		},
		{
			ID:             "treadmill",
			Name:           "Treadmill",
			Category:       "cardio",
			Difficulty:     "beginner",
			PrimaryMuscles: domain.StringArray{"legs"},
			EquipmentType:  "cardio machine",
			Description:    "a treadmill with a running belt, console display and side handrails",
			Keywords:       domain.StringArray{"treadmill", "running belt", "cardio", "console"},
			IsActive:       true,
		},
	}
}
