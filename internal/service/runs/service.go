// Package runs implements the per-kind run lifecycle: start, observe,
// finalize, delete. One Service instance is constructed per experiment kind;
// the kind decides which observation fields and result payload apply.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
	"github.com/virtlab-edu/virtlab-go/internal/service"
)

type Service struct {
	kind        domain.Kind
	runs        repo.RunRepository
	experiments repo.ExperimentRepository
	now         func() time.Time
}

func New(kind domain.Kind, runRepo repo.RunRepository, experimentRepo repo.ExperimentRepository) *Service {
	if runRepo == nil || experimentRepo == nil {
		return nil
	}
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil
	}
	return &Service{
		kind:        kind,
		runs:        runRepo,
		experiments: experimentRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Kind() domain.Kind {
	return s.kind
}

// ObservationInput carries one observation; only the fields matching the
// service kind are read.
type ObservationInput struct {
	Message string

	// titration
	Volume *float64
	PH     *float64
	Color  string

	// distillation
	Temperature *float64
	Vapor       string
	CollectedA  *float64
	CollectedB  *float64

	// salt analysis
	TestType string
	TestName string
	Result   string
	Reagent  string
	Detail   string
}

type TitrationFinal struct {
	FinalVolume *float64
	FinalPH     *float64
	FinalColor  *string
}

type DistillationFinal struct {
	FractionBreakPoint *float64
}

type SaltAnalysisFinal struct {
	DetectedCation *string
	DetectedAnion  *string
	FinalResult    *string
}

// FinalizeInput carries the caller-supplied result overrides; supplied values
// win, absent ones keep the prior value.
type FinalizeInput struct {
	Titration    *TitrationFinal
	Distillation *DistillationFinal
	SaltAnalysis *SaltAnalysisFinal
}

type CompletionStatus struct {
	IsCompleted bool
	RunID       string
}

// Start creates a run against an existing experiment of the service's kind.
func (s *Service) Start(ctx context.Context, callerID, experimentID string) (domain.Run, error) {
	if err := wellFormedID(experimentID); err != nil {
		return domain.Run{}, err
	}
	experiment, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Run{}, fmt.Errorf("experiment %s: %w", experimentID, service.ErrNotFound)
		}
		return domain.Run{}, err
	}
	if experiment.Kind != s.kind {
		return domain.Run{}, fmt.Errorf("experiment is %s, expected %s: %w", experiment.Kind, s.kind, service.ErrKindMismatch)
	}

	result, err := domain.DefaultResult(s.kind)
	if err != nil {
		return domain.Run{}, err
	}
	run := domain.Run{
		ID:              uuid.NewString(),
		UserID:          callerID,
		ExperimentID:    experiment.ID,
		ExperimentTitle: experiment.Title,
		Kind:            s.kind,
		Observations:    []domain.Observation{},
		Result:          result,
		StartedAt:       s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

// AddObservation appends one observation to an open run owned by the caller.
func (s *Service) AddObservation(ctx context.Context, callerID, runID string, input ObservationInput) (domain.Run, error) {
	run, err := s.loadOwned(ctx, callerID, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if run.IsComplete {
		return domain.Run{}, service.ErrRunCompleted
	}

	obs := domain.Observation{Time: s.now(), Message: input.Message}
	switch s.kind {
	case domain.KindTitration:
		obs.Volume = input.Volume
		obs.PH = input.PH
		obs.Color = input.Color
	case domain.KindDistillation:
		if err := s.applyDistillationObservation(&run, &obs, input); err != nil {
			return domain.Run{}, err
		}
	case domain.KindSaltAnalysis:
		s.applySaltAnalysisObservation(&run, &obs, input)
	}
	run.AppendObservation(obs)

	if err := s.runs.Save(ctx, run); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func (s *Service) applyDistillationObservation(run *domain.Run, obs *domain.Observation, input ObservationInput) error {
	result := run.Result.Distillation
	if result == nil {
		return fmt.Errorf("run %s has no distillation payload", run.ID)
	}
	if input.Temperature != nil {
		obs.Temperature = input.Temperature
		result.TemperatureProfile = append(result.TemperatureProfile, domain.TemperatureReading{
			Time:        obs.Time,
			Temperature: *input.Temperature,
		})
	}
	if input.Vapor != "" {
		switch input.Vapor {
		case "none", "A", "B":
			obs.Vapor = input.Vapor
			result.ActiveVapor = input.Vapor
		default:
			return fmt.Errorf("vapor must be none, A or B: %w", service.ErrValidation)
		}
	}
	if input.CollectedA != nil {
		obs.CollectedA = input.CollectedA
		result.CollectedVolumeA = *input.CollectedA
	}
	if input.CollectedB != nil {
		obs.CollectedB = input.CollectedB
		result.CollectedVolumeB = *input.CollectedB
	}
	result.TotalCollected = result.CollectedVolumeA + result.CollectedVolumeB
	return nil
}

func (s *Service) applySaltAnalysisObservation(run *domain.Run, obs *domain.Observation, input ObservationInput) {
	result := run.Result.SaltAnalysis
	if result == nil {
		return
	}
	obs.TestType = input.TestType
	obs.TestName = input.TestName
	obs.Result = input.Result
	obs.Reagent = input.Reagent
	obs.Detail = input.Detail

	switch input.TestType {
	case "preliminary":
		if input.TestName != "" && input.Result != "" {
			result.PreliminaryTests = append(result.PreliminaryTests, domain.PreliminaryTest{
				TestName: input.TestName,
				Result:   input.Result,
				Time:     obs.Time,
			})
		}
	case "confirmatory":
		if input.TestName != "" {
			result.ConfirmatoryTests = append(result.ConfirmatoryTests, domain.ConfirmatoryTest{
				TestName:    input.TestName,
				Reagent:     input.Reagent,
				Observation: input.Detail,
				Time:        obs.Time,
			})
		}
	}
	totalTests := len(result.PreliminaryTests) + len(result.ConfirmatoryTests)
	run.Stats.TotalTests = &totalTests
}

// Finalize merges the caller's result overrides, marks the run complete and
// computes the summary stats.
func (s *Service) Finalize(ctx context.Context, callerID, runID string, input FinalizeInput) (domain.Run, error) {
	run, err := s.loadOwned(ctx, callerID, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if run.IsComplete {
		return domain.Run{}, service.ErrRunCompleted
	}

	mergeResult(&run, input)
	completedAt := s.now()
	run.CompletedAt = &completedAt
	run.IsComplete = true
	computeFinalStats(&run, completedAt)

	if err := s.runs.Save(ctx, run); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func mergeResult(run *domain.Run, input FinalizeInput) {
	switch run.Kind {
	case domain.KindTitration:
		result := run.Result.Titration
		if result == nil || input.Titration == nil {
			return
		}
		if input.Titration.FinalVolume != nil {
			result.FinalVolume = *input.Titration.FinalVolume
		}
		if input.Titration.FinalPH != nil {
			result.FinalPH = *input.Titration.FinalPH
		}
		if input.Titration.FinalColor != nil {
			result.FinalColor = *input.Titration.FinalColor
		}
	case domain.KindDistillation:
		result := run.Result.Distillation
		if result == nil || input.Distillation == nil {
			return
		}
		if input.Distillation.FractionBreakPoint != nil {
			result.FractionBreakPoint = input.Distillation.FractionBreakPoint
		}
	case domain.KindSaltAnalysis:
		result := run.Result.SaltAnalysis
		if result == nil || input.SaltAnalysis == nil {
			return
		}
		if input.SaltAnalysis.DetectedCation != nil {
			result.DetectedCation = *input.SaltAnalysis.DetectedCation
		}
		if input.SaltAnalysis.DetectedAnion != nil {
			result.DetectedAnion = *input.SaltAnalysis.DetectedAnion
		}
		if input.SaltAnalysis.FinalResult != nil {
			result.FinalResult = *input.SaltAnalysis.FinalResult
		}
	}
}

// Delete removes a run; permitted for its owner or any admin.
func (s *Service) Delete(ctx context.Context, caller service.Caller, runID string) error {
	if err := wellFormedID(runID); err != nil {
		return err
	}
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.OwnedBy(caller.UserID) && !caller.IsAdmin() {
		return service.ErrForbidden
	}
	if err := s.runs.Delete(ctx, runID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}
	return nil
}

// List returns all runs of the service's kind for admins and only the
// caller's own runs otherwise.
func (s *Service) List(ctx context.Context, caller service.Caller) ([]repo.RunListEntry, error) {
	filter := repo.RunFilter{Kind: s.kind}
	if !caller.IsAdmin() {
		filter.UserID = caller.UserID
	}
	return s.runs.List(ctx, filter)
}

// ListForExperiment returns the runs recorded against one experiment; non-admin
// callers see only their own.
func (s *Service) ListForExperiment(ctx context.Context, caller service.Caller, experimentID string) ([]repo.RunListEntry, error) {
	filter := repo.RunFilter{Kind: s.kind, ExperimentID: experimentID}
	if !caller.IsAdmin() {
		filter.UserID = caller.UserID
	}
	return s.runs.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, caller service.Caller, runID string) (domain.Run, error) {
	if err := wellFormedID(runID); err != nil {
		return domain.Run{}, err
	}
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !run.OwnedBy(caller.UserID) && !caller.IsAdmin() {
		return domain.Run{}, service.ErrForbidden
	}
	return run, nil
}

// CompletionStatus reports whether the caller has a completed run against the
// experiment; absence is not an error.
func (s *Service) CompletionStatus(ctx context.Context, callerID, experimentID string) (CompletionStatus, error) {
	if err := wellFormedID(experimentID); err != nil {
		return CompletionStatus{}, err
	}
	run, err := s.runs.FindByUserAndExperiment(ctx, callerID, experimentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CompletionStatus{}, nil
		}
		return CompletionStatus{}, err
	}
	return CompletionStatus{IsCompleted: run.IsComplete, RunID: run.ID}, nil
}

func (s *Service) loadOwned(ctx context.Context, callerID, runID string) (domain.Run, error) {
	if err := wellFormedID(runID); err != nil {
		return domain.Run{}, err
	}
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !run.OwnedBy(callerID) {
		return domain.Run{}, service.ErrForbidden
	}
	return run, nil
}

func (s *Service) getRun(ctx context.Context, runID string) (domain.Run, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Run{}, fmt.Errorf("run %s: %w", runID, service.ErrNotFound)
		}
		return domain.Run{}, err
	}
	return run, nil
}

func wellFormedID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("id %q: %w", id, service.ErrBadID)
	}
	return nil
}
