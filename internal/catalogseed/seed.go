// Package catalogseed loads an optional YAML file of experiments and inserts
// any that are missing from the catalog at startup.
package catalogseed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

type Entry struct {
	Title       string `yaml:"title"`
	Subtitle    string `yaml:"subtitle"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	VideoKey    string `yaml:"videoKey"`
}

type file struct {
	Experiments []Entry `yaml:"experiments"`
}

func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var parsed file
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, entry := range parsed.Experiments {
		if strings.TrimSpace(entry.Title) == "" {
			return nil, fmt.Errorf("seed entry %d: title is required", i)
		}
		if _, err := domain.ParseKind(entry.Kind); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return parsed.Experiments, nil
}

// Apply inserts every entry whose title+kind pair is not already present.
// createdBy is the admin account the seeded rows are attributed to.
func Apply(ctx context.Context, experiments repo.ExperimentRepository, createdBy string, entries []Entry) (int, error) {
	if strings.TrimSpace(createdBy) == "" {
		return 0, fmt.Errorf("created by is required")
	}
	existing, err := experiments.List(ctx, repo.ExperimentFilter{})
	if err != nil {
		return 0, fmt.Errorf("list experiments: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		present[seedKey(entry.Title, string(entry.Kind))] = struct{}{}
	}

	created := 0
	now := time.Now().UTC()
	for _, entry := range entries {
		if _, ok := present[seedKey(entry.Title, entry.Kind)]; ok {
			continue
		}
		kind, err := domain.ParseKind(entry.Kind)
		if err != nil {
			return created, err
		}
		experiment := domain.Experiment{
			ID:          uuid.NewString(),
			Title:       strings.TrimSpace(entry.Title),
			Subtitle:    strings.TrimSpace(entry.Subtitle),
			Description: strings.TrimSpace(entry.Description),
			Kind:        kind,
			VideoKey:    strings.TrimSpace(entry.VideoKey),
			CreatedBy:   createdBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := experiments.Create(ctx, experiment); err != nil {
			return created, fmt.Errorf("seed %q: %w", entry.Title, err)
		}
		present[seedKey(entry.Title, entry.Kind)] = struct{}{}
		created++
	}
	return created, nil
}

func seedKey(title, kind string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.TrimSpace(kind)
}
