package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
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

type fakeUserRepo struct {
	users map[string]domain.User
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) UpsertByGoogleSubject(ctx context.Context, user domain.User) (domain.User, error) {
	for _, existing := range r.users {
		if existing.GoogleSubject == user.GoogleSubject {
			existing.Email = user.Email
			existing.FirstName = user.FirstName
			existing.LastName = user.LastName
			r.users[existing.ID] = existing
			return existing, nil
		}
	}
	if user.Credits == 0 {
		user.Credits = domain.DefaultCredits
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Get(ctx context.Context, id string) (domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) SetRole(ctx context.Context, id, role string) error {
	u, ok := r.users[id]
	if !ok || u.Role != "" {
		return repo.ErrNotFound
	}
	u.Role = role
	r.users[id] = u
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// doAs serves the request through mux with the identity already attached, the
// way the auth middleware would.
func doAs(mux *http.ServeMux, identity auth.Identity, req *http.Request) *httptest.ResponseRecorder {
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func studentIdentity(userID string) auth.Identity {
	return auth.Identity{UserID: userID, Email: userID + "@example.edu", Role: domain.RoleStudent}
}

func adminIdentity(userID string) auth.Identity {
	return auth.Identity{UserID: userID, Email: userID + "@example.edu", Role: domain.RoleAdmin}
}

func seededExperiment(id string, kind domain.Kind) domain.Experiment {
	now := time.Now().UTC()
	return domain.Experiment{
		ID:        id,
		Title:     "Seeded " + string(kind),
		Kind:      kind,
		CreatedBy: "77777777-7777-7777-7777-777777777777",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
