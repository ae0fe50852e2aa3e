package runs

import (
	"context"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

type fakeExperimentRepo struct {
	experiments map[string]domain.Experiment
}

func newFakeExperimentRepo(experiments ...domain.Experiment) *fakeExperimentRepo {
	r := &fakeExperimentRepo{experiments: map[string]domain.Experiment{}}
	for _, e := range experiments {
		r.experiments[e.ID] = e
	}
	return r
}

func (r *fakeExperimentRepo) Create(ctx context.Context, experiment domain.Experiment) error {
	r.experiments[experiment.ID] = experiment
	return nil
}

func (r *fakeExperimentRepo) Get(ctx context.Context, id string) (domain.Experiment, error) {
	e, ok := r.experiments[id]
	if !ok {
		return domain.Experiment{}, repo.ErrNotFound
	}
	return e, nil
}

func (r *fakeExperimentRepo) List(ctx context.Context, filter repo.ExperimentFilter) ([]repo.ExperimentListEntry, error) {
	entries := []repo.ExperimentListEntry{}
	for _, e := range r.experiments {
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.CreatedBy != "" && e.CreatedBy != filter.CreatedBy {
			continue
		}
		entries = append(entries, repo.ExperimentListEntry{Experiment: e})
	}
	return entries, nil
}

func (r *fakeExperimentRepo) SetVideoKey(ctx context.Context, id, key string) error {
	e, ok := r.experiments[id]
	if !ok {
		return repo.ErrNotFound
	}
	e.VideoKey = key
	r.experiments[id] = e
	return nil
}

func (r *fakeExperimentRepo) Delete(ctx context.Context, id, createdBy string) error {
	e, ok := r.experiments[id]
	if !ok || e.CreatedBy != createdBy {
		return repo.ErrNotFound
	}
	delete(r.experiments, id)
	return nil
}

type fakeRunRepo struct {
	runs map[string]domain.Run
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]domain.Run{}}
}

func (r *fakeRunRepo) Create(ctx context.Context, run domain.Run) error {
	r.runs[run.ID] = run
	return nil
}

func (r *fakeRunRepo) Get(ctx context.Context, id string) (domain.Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return run, nil
}

func (r *fakeRunRepo) List(ctx context.Context, filter repo.RunFilter) ([]repo.RunListEntry, error) {
	entries := []repo.RunListEntry{}
	for _, run := range r.runs {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.UserID != "" && run.UserID != filter.UserID {
			continue
		}
		if filter.ExperimentID != "" && run.ExperimentID != filter.ExperimentID {
			continue
		}
		entries = append(entries, repo.RunListEntry{Run: run})
	}
	return entries, nil
}

func (r *fakeRunRepo) Save(ctx context.Context, run domain.Run) error {
	if _, ok := r.runs[run.ID]; !ok {
		return repo.ErrNotFound
	}
	r.runs[run.ID] = run
	return nil
}

func (r *fakeRunRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.runs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.runs, id)
	return nil
}

func (r *fakeRunRepo) FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (domain.Run, error) {
	var found domain.Run
	ok := false
	for _, run := range r.runs {
		if run.UserID != userID || run.ExperimentID != experimentID {
			continue
		}
		if !ok || run.StartedAt.After(found.StartedAt) {
			found = run
			ok = true
		}
	}
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return found, nil
}
