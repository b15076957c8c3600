// Package events defines the simulation's event taxonomy: the closed set of
// event kinds, one typed payload per kind, and the tab-separated log record
// every applied event produces.
package events

import (
	"fmt"
	"strings"
)

// Kind tags an event. The set is closed.
type Kind uint8

const (
	KindStart Kind = iota
	KindInfection
	KindInfectionFailed
	KindInfectionAvoided
	KindInfectionIgnored
	KindRecover
	KindShowSymptom
	KindRemoval
	KindQuarantine
	KindReintegration
	KindStat
	KindAbort
	KindEnd
	KindError
	KindWarning
	KindPlugin
	KindVaccination
	KindReplacement
	KindContactTracing

	numKinds
)

var kindNames = [numKinds]string{
	KindStart:            "START",
	KindInfection:        "INFECTION",
	KindInfectionFailed:  "INFECTION_FAILED",
	KindInfectionAvoided: "INFECTION_AVOIDED",
	KindInfectionIgnored: "INFECTION_IGNORED",
	KindRecover:          "RECOVER",
	KindShowSymptom:      "SHOW_SYMPTOM",
	KindRemoval:          "REMOVAL",
	KindQuarantine:       "QUARANTINE",
	KindReintegration:    "REINTEGRATION",
	KindStat:             "STAT",
	KindAbort:            "ABORT",
	KindEnd:              "END",
	KindError:            "ERROR",
	KindWarning:          "WARNING",
	KindPlugin:           "PLUGIN",
	KindVaccination:      "VACCINATION",
	KindReplacement:      "REPLACEMENT",
	KindContactTracing:   "CONTACT_TRACING",
}

// String returns the upper-case name used in the log.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind maps a log name (case-insensitive) back to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}
