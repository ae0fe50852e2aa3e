package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Observation is one timestamped record appended during a run. Only the
// measurement fields matching the run's kind are ever populated.
type Observation struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`

	// titration
	Volume *float64 `json:"volume,omitempty"`
	PH     *float64 `json:"pH,omitempty"`
	Color  string   `json:"color,omitempty"`

	// distillation
	Temperature *float64 `json:"temperature,omitempty"`
	Vapor       string   `json:"vapor,omitempty"`
	CollectedA  *float64 `json:"collectedA,omitempty"`
	CollectedB  *float64 `json:"collectedB,omitempty"`

	// salt analysis
	TestType string `json:"testType,omitempty"`
	TestName string `json:"testName,omitempty"`
	Result   string `json:"result,omitempty"`
	Reagent  string `json:"reagent,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type TitrationResult struct {
	FinalVolume float64 `json:"finalVolume"`
	FinalPH     float64 `json:"finalPH"`
	FinalColor  string  `json:"finalColor"`
}

type MixtureComponent struct {
	Name         string  `json:"name"`
	BoilingPoint float64 `json:"boilingPoint"`
}

type TemperatureReading struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
}

type DistillationResult struct {
	ComponentA         MixtureComponent     `json:"componentA"`
	ComponentB         MixtureComponent     `json:"componentB"`
	TemperatureProfile []TemperatureReading `json:"temperatureProfile"`
	ActiveVapor        string               `json:"activeVapor"`
	CollectedVolumeA   float64              `json:"collectedVolumeA"`
	CollectedVolumeB   float64              `json:"collectedVolumeB"`
	TotalCollected     float64              `json:"totalCollected"`
	FractionBreakPoint *float64             `json:"fractionBreakPoint,omitempty"`
}

type PreliminaryTest struct {
	TestName string    `json:"testName"`
	Result   string    `json:"result"`
	Time     time.Time `json:"time"`
}

type ConfirmatoryTest struct {
	TestName    string    `json:"testName"`
	Reagent     string    `json:"reagent"`
	Observation string    `json:"observation"`
	Time        time.Time `json:"time"`
}

type SaltAnalysisResult struct {
	PreliminaryTests  []PreliminaryTest  `json:"preliminaryTests"`
	ConfirmatoryTests []ConfirmatoryTest `json:"confirmatoryTests"`
	DetectedCation    string             `json:"detectedCation"`
	DetectedAnion     string             `json:"detectedAnion"`
	FinalResult       string             `json:"finalResult"`
}

// Result is the kind-tagged payload of a run; exactly the member matching the
// run's kind is non-nil.
type Result struct {
	Titration    *TitrationResult    `json:"titration,omitempty"`
	Distillation *DistillationResult `json:"distillation,omitempty"`
	SaltAnalysis *SaltAnalysisResult `json:"saltAnalysis,omitempty"`
}

// DefaultResult returns the empty payload a freshly started run carries.
// Distillation runs are seeded with an illustrative ethanol/water mixture.
func DefaultResult(kind Kind) (Result, error) {
	switch kind {
	case KindTitration:
		return Result{Titration: &TitrationResult{}}, nil
	case KindDistillation:
		return Result{Distillation: &DistillationResult{
			ComponentA:         MixtureComponent{Name: "Ethanol", BoilingPoint: 78},
			ComponentB:         MixtureComponent{Name: "Water", BoilingPoint: 100},
			TemperatureProfile: []TemperatureReading{},
			ActiveVapor:        "none",
		}}, nil
	case KindSaltAnalysis:
		return Result{SaltAnalysis: &SaltAnalysisResult{
			PreliminaryTests:  []PreliminaryTest{},
			ConfirmatoryTests: []ConfirmatoryTest{},
		}}, nil
	default:
		return Result{}, fmt.Errorf("unknown experiment kind %q", kind)
	}
}

type Stats struct {
	TotalObservations int      `json:"totalObservations"`
	TimeTakenSeconds  int64    `json:"timeTakenSeconds"`
	EndpointVolume    *float64 `json:"endpointVolume,omitempty"`
	PHChangeRate      *float64 `json:"phChangeRate,omitempty"`
	TotalTests        *int     `json:"totalTests,omitempty"`
}

// Run is one student's attempt at one experiment. Title and kind are
// denormalized from the catalog so the run survives catalog deletion.
type Run struct {
	ID              string
	UserID          string
	ExperimentID    string
	ExperimentTitle string
	Kind            Kind
	Observations    []Observation
	Result          Result
	Stats           Stats
	IsComplete      bool
	StartedAt       time.Time
	CompletedAt     *time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.ExperimentID) == "" {
		return errors.New("experiment id is required")
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if r.StartedAt.IsZero() {
		return errors.New("started at is required")
	}
	return nil
}

func (r Run) OwnedBy(userID string) bool {
	return r.UserID == userID
}

// AppendObservation appends obs and keeps the observation counter in step with
// the sequence length.
func (r *Run) AppendObservation(obs Observation) {
	r.Observations = append(r.Observations, obs)
	r.Stats.TotalObservations = len(r.Observations)
}
