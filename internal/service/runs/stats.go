package runs

import (
	"math"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
)

// computeFinalStats derives the summary block at finalize time.
func computeFinalStats(run *domain.Run, completedAt time.Time) {
	run.Stats.TotalObservations = len(run.Observations)
	run.Stats.TimeTakenSeconds = int64(math.Round(completedAt.Sub(run.StartedAt).Seconds()))

	switch run.Kind {
	case domain.KindTitration:
		computeTitrationStats(run)
	case domain.KindSaltAnalysis:
		if result := run.Result.SaltAnalysis; result != nil {
			totalTests := len(result.PreliminaryTests) + len(result.ConfirmatoryTests)
			run.Stats.TotalTests = &totalTests
		}
	}
}

func computeTitrationStats(run *domain.Run) {
	run.Stats.EndpointVolume = endpointVolume(run)
	run.Stats.PHChangeRate = phChangeRate(run.Observations)
}

// endpointVolume prefers the explicit final volume, falling back to the last
// observation that recorded one.
func endpointVolume(run *domain.Run) *float64 {
	if result := run.Result.Titration; result != nil && result.FinalVolume != 0 {
		v := result.FinalVolume
		return &v
	}
	for i := len(run.Observations) - 1; i >= 0; i-- {
		if run.Observations[i].Volume != nil {
			v := *run.Observations[i].Volume
			return &v
		}
	}
	return nil
}

// phChangeRate is (lastPH-firstPH)/(lastVolume-firstVolume) over the first and
// last observations carrying both measurements. A zero volume delta saturates
// the divisor to 1 rather than erroring.
func phChangeRate(observations []domain.Observation) *float64 {
	first, last := -1, -1
	for i, obs := range observations {
		if obs.Volume == nil || obs.PH == nil {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 || last == first {
		return nil
	}
	deltaVolume := *observations[last].Volume - *observations[first].Volume
	if deltaVolume == 0 {
		deltaVolume = 1
	}
	rate := (*observations[last].PH - *observations[first].PH) / deltaVolume
	return &rate
}
