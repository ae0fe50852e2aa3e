package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies which simulated experiment a catalog entry or run belongs to.
type Kind string

const (
	KindTitration    Kind = "titration"
	KindDistillation Kind = "distillation"
	KindSaltAnalysis Kind = "salt-analysis"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.TrimSpace(raw)) {
	case KindTitration:
		return KindTitration, nil
	case KindDistillation:
		return KindDistillation, nil
	case KindSaltAnalysis:
		return KindSaltAnalysis, nil
	default:
		return "", fmt.Errorf("unknown experiment kind %q", raw)
	}
}

// Experiment is a catalog entry authored by an admin. Kind is immutable after
// creation; there is no update path.
type Experiment struct {
	ID          string
	Title       string
	Subtitle    string
	Description string
	Kind        Kind
	VideoKey    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e Experiment) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("experiment id is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("title is required")
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(e.CreatedBy) == "" {
		return errors.New("created by is required")
	}
	return nil
}
