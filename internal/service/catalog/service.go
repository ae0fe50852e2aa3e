// Package catalog implements experiment catalog CRUD. Mutation is admin-only,
// enforced at the HTTP boundary.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
	"github.com/virtlab-edu/virtlab-go/internal/service"
	"github.com/virtlab-edu/virtlab-go/internal/service/runs"
)

type Service struct {
	experiments repo.ExperimentRepository
	runServices map[domain.Kind]*runs.Service
	now         func() time.Time
}

// New builds the catalog service. runServices maps each experiment kind to the
// lifecycle service used by RunsForExperiment.
func New(experimentRepo repo.ExperimentRepository, runServices map[domain.Kind]*runs.Service) *Service {
	if experimentRepo == nil {
		return nil
	}
	if runServices == nil {
		runServices = map[domain.Kind]*runs.Service{}
	}
	return &Service{
		experiments: experimentRepo,
		runServices: runServices,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	Title       string
	Subtitle    string
	Description string
	Kind        string
	VideoKey    string
}

func (s *Service) Create(ctx context.Context, caller service.Caller, input CreateInput) (domain.Experiment, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domain.Experiment{}, fmt.Errorf("title is required: %w", service.ErrValidation)
	}
	kind, err := domain.ParseKind(input.Kind)
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("%v: %w", err, service.ErrValidation)
	}

	now := s.now()
	experiment := domain.Experiment{
		ID:          uuid.NewString(),
		Title:       title,
		Subtitle:    strings.TrimSpace(input.Subtitle),
		Description: strings.TrimSpace(input.Description),
		Kind:        kind,
		VideoKey:    strings.TrimSpace(input.VideoKey),
		CreatedBy:   caller.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.experiments.Create(ctx, experiment); err != nil {
		return domain.Experiment{}, err
	}
	return experiment, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Experiment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Experiment{}, fmt.Errorf("id %q: %w", id, service.ErrBadID)
	}
	experiment, err := s.experiments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Experiment{}, fmt.Errorf("experiment %s: %w", id, service.ErrNotFound)
		}
		return domain.Experiment{}, err
	}
	return experiment, nil
}

func (s *Service) List(ctx context.Context) ([]repo.ExperimentListEntry, error) {
	return s.experiments.List(ctx, repo.ExperimentFilter{})
}

// ListMine returns the experiments created by the calling admin.
func (s *Service) ListMine(ctx context.Context, caller service.Caller) ([]repo.ExperimentListEntry, error) {
	return s.experiments.List(ctx, repo.ExperimentFilter{CreatedBy: caller.UserID})
}

// AttachVideo records the object-store key of the experiment's demo video.
func (s *Service) AttachVideo(ctx context.Context, id, key string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("id %q: %w", id, service.ErrBadID)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("video key is required: %w", service.ErrValidation)
	}
	if err := s.experiments.SetVideoKey(ctx, id, key); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("experiment %s: %w", id, service.ErrNotFound)
		}
		return err
	}
	return nil
}

// Delete removes an experiment created by the calling admin.
func (s *Service) Delete(ctx context.Context, caller service.Caller, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("id %q: %w", id, service.ErrBadID)
	}
	if err := s.experiments.Delete(ctx, id, caller.UserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("experiment %s: %w", id, service.ErrNotFound)
		}
		return err
	}
	return nil
}

// RunsForExperiment lists the runs recorded against an experiment, dispatching
// on its kind. An absent experiment or unrecognized kind yields an empty list.
func (s *Service) RunsForExperiment(ctx context.Context, caller service.Caller, experimentID string) ([]repo.RunListEntry, error) {
	if _, err := uuid.Parse(experimentID); err != nil {
		return nil, fmt.Errorf("id %q: %w", experimentID, service.ErrBadID)
	}
	experiment, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []repo.RunListEntry{}, nil
		}
		return nil, err
	}
	runService, ok := s.runServices[experiment.Kind]
	if !ok {
		return []repo.RunListEntry{}, nil
	}
	return runService.ListForExperiment(ctx, caller, experimentID)
}
