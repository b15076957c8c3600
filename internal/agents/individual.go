package agents

import (
	"github.com/talgya/outbreak/internal/events"
)

// Quarantine withdraws the individual until till and returns the
// REINTEGRATION event that releases it.
func (ind *Individual) Quarantine(till float64) events.Event {
	ind.Quarantined = At(till)
	return events.New(till, events.Reintegration{Release: till, Scheduled: true}).For(ind.ID)
}

// Reintegrate ends a quarantine.
func (ind *Individual) Reintegrate() {
	ind.Quarantined = Stamp{}
}

// IsQuarantined reports whether the individual is currently withdrawn.
func (ind *Individual) IsQuarantined() bool {
	return ind.Quarantined.Valid
}

// Releases reports whether a release scheduled for till ends the current
// quarantine.
func (ind *Individual) Releases(till float64) bool {
	return ind.Quarantined.Valid && ind.Quarantined.At == till
}

// QuarantinedAt reports whether the individual will still be withdrawn at t.
func (ind *Individual) QuarantinedAt(t float64) bool {
	return ind.Quarantined.Valid && t < ind.Quarantined.At
}

// Vaccinate records a vaccination at time. Reductions are clipped to [0, 1].
func (ind *Individual) Vaccinate(time, immunity, infectivity float64) {
	v := &Vaccination{At: time, Immunity: clip01(immunity), Infectivity: clip01(infectivity)}
	ind.Vaccination = v
	ind.Immunity = v.Immunity
	ind.Infectivity = v.Infectivity
}

// Recover marks recovery. A recovered individual is fully immune.
func (ind *Individual) Recover(time float64) {
	ind.Recovered = At(time)
	ind.Immunity = 1
	ind.Infectivity = 0
}

// MarkSymptom records symptom onset. The first onset wins.
func (ind *Individual) MarkSymptom(time float64) bool {
	if ind.SymptomOnset.Valid {
		return false
	}
	ind.SymptomOnset = At(time)
	return true
}

// RecordInfectee notes that this individual infected id at time.
func (ind *Individual) RecordInfectee(id ID, time float64) {
	ind.Infectees = append(ind.Infectees, Infectee{ID: id, At: time})
}

// InfecteesSince returns the individuals infected at or after t.
func (ind *Individual) InfecteesSince(t float64) []Infectee {
	var out []Infectee
	for _, e := range ind.Infectees {
		if e.At >= t {
			out = append(out, e)
		}
	}
	return out
}

func clip01(v float64) float64 {
	return min(1, max(0, v))
}
