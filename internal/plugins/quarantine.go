package plugins

import (
	"fmt"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
)

// Quarantine quarantines targeted individuals for Duration days. Those
// already in quarantine are skipped.
type Quarantine struct {
	Targeting `mapstructure:",squash"`
	Duration  float64 `mapstructure:"duration"`
}

// NewQuarantine builds a mass quarantine plugin. The duration defaults to
// two weeks.
func NewQuarantine(args map[string]any) (engine.Plugin, error) {
	q := &Quarantine{Duration: events.DefaultQuarantineDays}
	if err := engine.DecodeArgs(args, q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidArgs)
	}
	return q, nil
}

func (q *Quarantine) Name() string { return "quarantine" }

func (q *Quarantine) Apply(time float64, pop *agents.Population) ([]events.Event, error) {
	picked := q.pick(pop, func(ind *agents.Individual) bool {
		return !ind.IsQuarantined()
	})
	out := make([]events.Event, 0, len(picked))
	for _, ind := range picked {
		out = append(out, events.New(time, events.Quarantine{
			Till:   time + q.Duration,
			Reason: "plugin",
		}).For(ind.ID))
	}
	return out, nil
}
