package postgres

import (
	"strings"
	"testing"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

func TestBuildRunListQuery(t *testing.T) {
	tests := []struct {
		name         string
		filter       repo.RunFilter
		wantArgs     []any
		wantContains []string
		wantAbsent   []string
	}{
		{
			name:         "no filter",
			filter:       repo.RunFilter{},
			wantArgs:     []any{},
			wantContains: []string{"ORDER BY r.started_at DESC"},
			wantAbsent:   []string{"WHERE"},
		},
		{
			name:         "kind only",
			filter:       repo.RunFilter{Kind: domain.KindTitration},
			wantArgs:     []any{"titration"},
			wantContains: []string{"r.kind = $1"},
		},
		{
			name:         "kind and user",
			filter:       repo.RunFilter{Kind: domain.KindDistillation, UserID: "user-1"},
			wantArgs:     []any{"distillation", "user-1"},
			wantContains: []string{"r.kind = $1", "r.user_id = $2"},
		},
		{
			name:         "all filters",
			filter:       repo.RunFilter{Kind: domain.KindSaltAnalysis, UserID: "user-1", ExperimentID: "exp-1"},
			wantArgs:     []any{"salt-analysis", "user-1", "exp-1"},
			wantContains: []string{"r.kind = $1", "r.user_id = $2", "r.experiment_id = $3"},
		},
	}

	for _, tc := range tests {
		query, args := buildRunListQuery(tc.filter)
		if len(args) != len(tc.wantArgs) {
			t.Fatalf("%s: args=%v, want %v", tc.name, args, tc.wantArgs)
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Fatalf("%s: args[%d]=%v, want %v", tc.name, i, args[i], tc.wantArgs[i])
			}
		}
		for _, fragment := range tc.wantContains {
			if !strings.Contains(query, fragment) {
				t.Fatalf("%s: query %q missing %q", tc.name, query, fragment)
			}
		}
		for _, fragment := range tc.wantAbsent {
			if strings.Contains(query, fragment) {
				t.Fatalf("%s: query %q unexpectedly contains %q", tc.name, query, fragment)
			}
		}
	}
}

func TestBuildExperimentListQuery(t *testing.T) {
	query, args := buildExperimentListQuery(repo.ExperimentFilter{})
	if len(args) != 0 {
		t.Fatalf("args=%v, want none", args)
	}
	if strings.Contains(query, "WHERE") {
		t.Fatalf("query %q unexpectedly filtered", query)
	}
	if !strings.Contains(query, "ORDER BY e.created_at DESC") {
		t.Fatalf("query %q missing order", query)
	}

	query, args = buildExperimentListQuery(repo.ExperimentFilter{Kind: domain.KindTitration, CreatedBy: "admin-1"})
	if len(args) != 2 || args[0] != "titration" || args[1] != "admin-1" {
		t.Fatalf("args=%v", args)
	}
	if !strings.Contains(query, "e.kind = $1") || !strings.Contains(query, "e.created_by = $2") {
		t.Fatalf("query %q missing conditions", query)
	}
}

func TestEncodeRunDocuments_NilObservations(t *testing.T) {
	run := domain.Run{
		Kind:   domain.KindTitration,
		Result: domain.Result{Titration: &domain.TitrationResult{}},
	}
	observations, result, stats, err := encodeRunDocuments(run)
	if err != nil {
		t.Fatalf("encodeRunDocuments: %v", err)
	}
	if string(observations) != "[]" {
		t.Fatalf("observations=%s, want []", observations)
	}
	if len(result) == 0 || len(stats) == 0 {
		t.Fatalf("empty result or stats document")
	}

	var decoded domain.Run
	if err := decodeRunDocuments(&decoded, observations, result, stats); err != nil {
		t.Fatalf("decodeRunDocuments: %v", err)
	}
	if decoded.Observations == nil || len(decoded.Observations) != 0 {
		t.Fatalf("Observations=%v, want empty slice", decoded.Observations)
	}
	if decoded.Result.Titration == nil {
		t.Fatalf("Result.Titration lost in round trip")
	}
}
