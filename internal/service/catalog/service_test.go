package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
	"github.com/virtlab-edu/virtlab-go/internal/service"
	"github.com/virtlab-edu/virtlab-go/internal/service/runs"
)

const (
	testAdminID   = "44444444-4444-4444-4444-444444444444"
	testStudentID = "55555555-5555-5555-5555-555555555555"
)

type fakeExperimentRepo struct {
	experiments map[string]domain.Experiment
}

func newFakeExperimentRepo() *fakeExperimentRepo {
	return &fakeExperimentRepo{experiments: map[string]domain.Experiment{}}
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
	for _, run := range r.runs {
		if run.UserID == userID && run.ExperimentID == experimentID {
			return run, nil
		}
	}
	return domain.Run{}, repo.ErrNotFound
}

func testCatalog(t *testing.T) (*Service, *fakeExperimentRepo, *fakeRunRepo) {
	t.Helper()
	experiments := newFakeExperimentRepo()
	runRepo := newFakeRunRepo()
	runServices := map[domain.Kind]*runs.Service{
		domain.KindTitration: runs.New(domain.KindTitration, runRepo, experiments),
	}
	svc := New(experiments, runServices)
	if svc == nil {
		t.Fatalf("New returned nil")
	}
	return svc, experiments, runRepo
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := testCatalog(t)
	admin := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"missing title", CreateInput{Kind: "titration"}},
		{"missing kind", CreateInput{Title: "Acid-base titration"}},
		{"unknown kind", CreateInput{Title: "Acid-base titration", Kind: "chromatography"}},
	}
	for _, tc := range tests {
		if _, err := svc.Create(context.Background(), admin, tc.input); !errors.Is(err, service.ErrValidation) {
			t.Fatalf("%s: err=%v, want %v", tc.name, err, service.ErrValidation)
		}
	}
}

func TestCreate_StampsCreator(t *testing.T) {
	svc, experiments, _ := testCatalog(t)
	admin := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}

	experiment, err := svc.Create(context.Background(), admin, CreateInput{
		Title: "  Acid-base titration  ",
		Kind:  "titration",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if experiment.Title != "Acid-base titration" {
		t.Fatalf("Title=%q, want trimmed", experiment.Title)
	}
	if experiment.CreatedBy != testAdminID {
		t.Fatalf("CreatedBy=%q, want %q", experiment.CreatedBy, testAdminID)
	}
	if _, ok := experiments.experiments[experiment.ID]; !ok {
		t.Fatalf("experiment not persisted")
	}
}

func TestGet_Errors(t *testing.T) {
	svc, _, _ := testCatalog(t)

	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, service.ErrBadID) {
		t.Fatalf("err=%v, want %v", err, service.ErrBadID)
	}
	if _, err := svc.Get(context.Background(), "99999999-9999-9999-9999-999999999999"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("err=%v, want %v", err, service.ErrNotFound)
	}
}

func TestDelete_ScopedToCreator(t *testing.T) {
	svc, _, _ := testCatalog(t)
	owner := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}
	other := service.Caller{UserID: testStudentID, Role: domain.RoleAdmin}

	experiment, err := svc.Create(context.Background(), owner, CreateInput{Title: "Mine", Kind: "titration"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), other, experiment.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("other admin delete err=%v, want %v", err, service.ErrNotFound)
	}
	if err := svc.Delete(context.Background(), owner, experiment.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestAttachVideo(t *testing.T) {
	svc, experiments, _ := testCatalog(t)
	admin := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}

	experiment, err := svc.Create(context.Background(), admin, CreateInput{Title: "With video", Kind: "titration"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.AttachVideo(context.Background(), experiment.ID, ""); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("empty key err=%v, want %v", err, service.ErrValidation)
	}
	if err := svc.AttachVideo(context.Background(), experiment.ID, "videos/demo.mp4"); err != nil {
		t.Fatalf("AttachVideo: %v", err)
	}
	if got := experiments.experiments[experiment.ID].VideoKey; got != "videos/demo.mp4" {
		t.Fatalf("VideoKey=%q", got)
	}
}

func TestRunsForExperiment(t *testing.T) {
	svc, _, _ := testCatalog(t)
	admin := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}

	experiment, err := svc.Create(context.Background(), admin, CreateInput{Title: "Runs", Kind: "titration"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// absent experiment yields an empty list, not an error
	entries, err := svc.RunsForExperiment(context.Background(), admin, "99999999-9999-9999-9999-999999999999")
	if err != nil {
		t.Fatalf("RunsForExperiment absent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries=%d, want 0", len(entries))
	}

	entries, err = svc.RunsForExperiment(context.Background(), admin, experiment.ID)
	if err != nil {
		t.Fatalf("RunsForExperiment: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries=%d, want 0", len(entries))
	}
}

func TestRunsForExperiment_ScopedByRole(t *testing.T) {
	svc, experiments, runRepo := testCatalog(t)
	admin := service.Caller{UserID: testAdminID, Role: domain.RoleAdmin}
	student := service.Caller{UserID: testStudentID, Role: domain.RoleStudent}

	experiment, err := svc.Create(context.Background(), admin, CreateInput{Title: "Shared", Kind: "titration"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	runService := runs.New(domain.KindTitration, runRepo, experiments)
	if _, err := runService.Start(context.Background(), testStudentID, experiment.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := runService.Start(context.Background(), testAdminID, experiment.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	entries, err := svc.RunsForExperiment(context.Background(), student, experiment.ID)
	if err != nil {
		t.Fatalf("RunsForExperiment student: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("student sees %d runs, want 1", len(entries))
	}

	entries, err = svc.RunsForExperiment(context.Background(), admin, experiment.ID)
	if err != nil {
		t.Fatalf("RunsForExperiment admin: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("admin sees %d runs, want 2", len(entries))
	}
}
