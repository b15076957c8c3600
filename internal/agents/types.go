// Package agents provides the individual infection state machine and the
// population that owns every individual of a replicate.
package agents

import (
	"errors"

	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

// ID is an individual's identity. Members of the default group are numbered
// "0".."N-1"; members of a named group are "<group>_<index>".
type ID = string

var (
	ErrDuplicateID         = errors.New("duplicate individual id")
	ErrUnknownIndividual   = errors.New("unknown individual")
	ErrUnknownGroup        = errors.New("unknown group")
	ErrChainUnresolved     = errors.New("replacement chain unresolved")
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrLeadTimeOnSecondary = errors.New("lead time requested on a secondary infection")
)

// Stamp is an optional point in simulation time.
type Stamp struct {
	At    float64
	Valid bool
}

// At returns a set stamp.
func At(t float64) Stamp {
	return Stamp{At: t, Valid: true}
}

// Stage is the infection stage derived from an individual's stamps.
type Stage uint8

const (
	Susceptible Stage = iota
	Infected
	Recovered
)

func (s Stage) String() string {
	switch s {
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	}
	return "susceptible"
}

// Vaccination records when an individual was vaccinated and the reductions
// it confers.
type Vaccination struct {
	At          float64
	Immunity    float64 // reduction of the chance to be infected, 0..1
	Infectivity float64 // reduction of r0 once infected, 0..1
}

// Infectee is someone this individual infected.
type Infectee struct {
	ID ID
	At float64
}

// Env is what individuals of one replicate share: the parameter model (and
// through it the replicate's random source) and the record log.
type Env struct {
	Model *params.Model
	Log   events.Recorder
}

// Individual is one person of the population.
type Individual struct {
	ID             ID
	Group          string
	Susceptibility float64 // selection weight

	Infected     Stamp // may be negative with a lead time
	Recovered    Stamp
	SymptomOnset Stamp
	Quarantined  Stamp // release time while quarantined
	Incubation   Stamp // days from infection to onset; unset for asymptomatic carriers

	Symptomatic bool
	R0          float64

	Vaccination *Vaccination
	Immunity    float64 // current protection against infection, 0..1
	Infectivity float64 // current reduction of r0, 0..1

	Infectees []Infectee

	env *Env
}

// Stage returns the infection stage.
func (ind *Individual) Stage() Stage {
	switch {
	case ind.Recovered.Valid:
		return Recovered
	case ind.Infected.Valid:
		return Infected
	}
	return Susceptible
}
