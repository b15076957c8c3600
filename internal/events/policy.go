package events

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedPolicy is returned for handling policies the simulator
	// does not know.
	ErrUnsupportedPolicy = errors.New("unsupported policy")
	// ErrMalformedOption is returned for option strings that do not parse.
	ErrMalformedOption = errors.New("malformed option")
)

// DefaultQuarantineDays is the quarantine length when a policy names none.
const DefaultQuarantineDays = 14.0

// Action is what a policy does to an individual.
type Action uint8

const (
	ActionKeep Action = iota
	ActionRemove
	ActionQuarantine
	ActionReplace
	ActionReintegrate
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionRemove:
		return "remove"
	case ActionQuarantine:
		return "quarantine"
	case ActionReplace:
		return "replace"
	case ActionReintegrate:
		return "reintegrate"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// HandlePolicy says what happens to an individual once a trigger (symptom
// onset, being traced) fires. Proportion is the share of individuals the
// policy applies to; Groups restricts it to named groups when non-empty.
type HandlePolicy struct {
	Action     Action
	Duration   float64 // quarantine days
	Proportion float64
	Groups     []string
}

// NewHandlePolicy returns a policy applying to everyone. A zero duration for
// a quarantine becomes DefaultQuarantineDays.
func NewHandlePolicy(a Action, duration float64) HandlePolicy {
	if a == ActionQuarantine && duration <= 0 {
		duration = DefaultQuarantineDays
	}
	return HandlePolicy{Action: a, Duration: duration, Proportion: 1}
}

// ParseHandlePolicy parses an option vector of the form
//
//	action [proportion] [group ...]
//
// where action is one of keep, remove, replace, reintegrate, quarantine or
// quarantine_N (N days). An empty vector means keep.
func ParseHandlePolicy(args []string) (HandlePolicy, error) {
	if len(args) == 0 {
		return NewHandlePolicy(ActionKeep, 0), nil
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	var p HandlePolicy
	switch {
	case name == "keep":
		p = NewHandlePolicy(ActionKeep, 0)
	case name == "remove":
		p = NewHandlePolicy(ActionRemove, 0)
	case name == "replace":
		p = NewHandlePolicy(ActionReplace, 0)
	case name == "reintegrate":
		p = NewHandlePolicy(ActionReintegrate, 0)
	case name == "quarantine":
		p = NewHandlePolicy(ActionQuarantine, 0)
	case strings.HasPrefix(name, "quarantine_"):
		d, err := strconv.ParseFloat(strings.TrimPrefix(name, "quarantine_"), 64)
		if err != nil || d <= 0 {
			return HandlePolicy{}, fmt.Errorf("%w: quarantine duration in %q", ErrMalformedOption, args[0])
		}
		p = NewHandlePolicy(ActionQuarantine, d)
	default:
		return HandlePolicy{}, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, args[0])
	}

	rest := args[1:]
	if len(rest) > 0 {
		if v, err := strconv.ParseFloat(rest[0], 64); err == nil {
			if v < 0 || v > 1 {
				return HandlePolicy{}, fmt.Errorf("%w: proportion %v outside [0, 1]", ErrMalformedOption, v)
			}
			p.Proportion = v
			rest = rest[1:]
		}
	}
	for _, g := range rest {
		if g = strings.TrimSpace(g); g != "" {
			p.Groups = append(p.Groups, g)
		}
	}
	return p, nil
}

// Applies reports whether members of group fall under the policy.
func (p HandlePolicy) Applies(group string) bool {
	return len(p.Groups) == 0 || slices.Contains(p.Groups, group)
}

// Acts reports whether the policy changes anything at all.
func (p HandlePolicy) Acts() bool {
	return p.Action != ActionKeep && p.Proportion > 0
}

// String renders the policy the way it is written in options.
func (p HandlePolicy) String() string {
	s := p.Action.String()
	if p.Action == ActionQuarantine {
		s += "_" + strconv.FormatFloat(p.Duration, 'g', -1, 64)
	}
	return s
}

// LeadKind selects how a lead time is obtained.
type LeadKind uint8

const (
	LeadNone LeadKind = iota
	LeadFixed
	LeadAny          // uniform over the whole infectious period
	LeadAsymptomatic // uniform over the incubation period
)

// LeadTime backdates an unprompted infection.
type LeadTime struct {
	Kind  LeadKind
	Value float64 // days, for LeadFixed
}

// ParseLeadTime parses "", "any", "asymptomatic" or a non-negative number of
// days.
func ParseLeadTime(s string) (LeadTime, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return LeadTime{}, nil
	case "any":
		return LeadTime{Kind: LeadAny}, nil
	case "asymptomatic":
		return LeadTime{Kind: LeadAsymptomatic}, nil
	default:
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return LeadTime{}, fmt.Errorf("%w: leadtime %q", ErrMalformedOption, s)
		}
		return LeadTime{Kind: LeadFixed, Value: d}, nil
	}
}

// IsSet reports whether a lead time was requested.
func (l LeadTime) IsSet() bool {
	return l.Kind != LeadNone
}

func (l LeadTime) String() string {
	switch l.Kind {
	case LeadFixed:
		return strconv.FormatFloat(l.Value, 'f', 2, 64)
	case LeadAny:
		return "any"
	case LeadAsymptomatic:
		return "asymptomatic"
	}
	return ""
}
