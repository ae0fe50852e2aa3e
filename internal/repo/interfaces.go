package repo

import (
	"context"
	"errors"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type ExperimentFilter struct {
	Kind      domain.Kind
	CreatedBy string
}

type RunFilter struct {
	Kind         domain.Kind
	UserID       string
	ExperimentID string
}

// ExperimentListEntry joins an experiment with its creator's display fields.
type ExperimentListEntry struct {
	domain.Experiment
	CreatorName  string
	CreatorEmail string
}

// RunListEntry joins a run with its submitter's display fields.
type RunListEntry struct {
	domain.Run
	SubmitterName  string
	SubmitterEmail string
}

// ExperimentRepository manages catalog entries.
type ExperimentRepository interface {
	Create(ctx context.Context, experiment domain.Experiment) error
	Get(ctx context.Context, id string) (domain.Experiment, error)
	List(ctx context.Context, filter ExperimentFilter) ([]ExperimentListEntry, error)
	// SetVideoKey records the object-store key of the experiment's demo video.
	SetVideoKey(ctx context.Context, id, key string) error
	// Delete removes the experiment only when it was created by createdBy;
	// ErrNotFound otherwise.
	Delete(ctx context.Context, id, createdBy string) error
}

// RunRepository manages runs as whole documents; Save replaces observations,
// result and stats in one write.
type RunRepository interface {
	Create(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, filter RunFilter) ([]RunListEntry, error)
	Save(ctx context.Context, run domain.Run) error
	Delete(ctx context.Context, id string) error
	// FindByUserAndExperiment returns the caller's run against an experiment,
	// or ErrNotFound.
	FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (domain.Run, error)
}

// UserRepository manages accounts keyed by the identity provider subject.
type UserRepository interface {
	UpsertByGoogleSubject(ctx context.Context, user domain.User) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	SetRole(ctx context.Context, id, role string) error
}
