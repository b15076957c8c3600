// Simulation runs one replicate: it seeds the outbreak, pops due events in
// time order, applies them and merges their follow-ups back into the queue.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

// ErrInvalidSetup wraps configuration problems found before a replicate
// starts.
var ErrInvalidSetup = errors.New("invalid simulation setup")

// Setup is everything one replicate is built from.
type Setup struct {
	Replicate int
	Seed      uint64
	Model     params.Config
	Groups    []agents.GroupSpec
	Infectors []string // seeded at time 0; one random individual when empty
	Options   Options
	StopAt    *float64
	Plugins   []PluginSpec
}

// Validate checks the setup without building anything.
func (s Setup) Validate() error {
	var errs []error
	names := make([]string, 0, len(s.Groups))
	seen := make(map[string]bool)
	for _, g := range s.Groups {
		if seen[g.Name] {
			errs = append(errs, fmt.Errorf("group %q listed twice", g.Name))
		}
		seen[g.Name] = true
		if g.Size < 0 {
			errs = append(errs, fmt.Errorf("group %q: negative size %d", g.Name, g.Size))
		}
		names = append(names, g.Name)
	}
	if err := s.Model.Validate(names...); err != nil {
		errs = append(errs, err)
	}
	if s.Options.Handle.Action == events.ActionReintegrate {
		errs = append(errs, fmt.Errorf("%w: reintegrate on symptom onset", events.ErrUnsupportedPolicy))
	}
	if tr := s.Options.Tracing; tr != nil {
		if tr.Proportion < 0 || tr.Proportion > 1 || tr.Succ < 0 || tr.Succ > 1 {
			errs = append(errs, fmt.Errorf("contact tracing: proportion and succ must lie in [0, 1]"))
		}
		if tr.Cutoff < 0 {
			errs = append(errs, fmt.Errorf("contact tracing: negative cutoff %v", tr.Cutoff))
		}
	}
	if s.StopAt != nil && *s.StopAt < 0 {
		errs = append(errs, fmt.Errorf("negative stop time %v", *s.StopAt))
	}
	for _, p := range s.Plugins {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSetup, errors.Join(errs...))
}

// Summary describes a finished replicate.
type Summary struct {
	Replicate   int            `json:"replicate"`
	Seed        uint64         `json:"seed"`
	EndTime     float64        `json:"end_time"`
	PopSize     int            `json:"popsize"`
	Infected    int            `json:"n_infected"`
	Recovered   int            `json:"n_recovered"`
	Removed     int            `json:"n_removed"`
	Quarantined int            `json:"n_quarantined"`
	Vaccinated  int            `json:"n_vaccinated"`
	Replaced    int            `json:"n_replaced"`
	Aborted     bool           `json:"aborted"`
	Counts      map[string]int `json:"counts"`
}

// Simulation holds the state of one replicate. It is single-threaded.
type Simulation struct {
	Replicate int
	Pop       *agents.Population
	Log       *events.Log

	setup     Setup
	ctx       *Context
	queue     *Queue
	clock     float64
	aborted   bool
	triggered map[int]float64
}

// NewSimulation builds a replicate from setup, drawing from rng. Plugins are
// instantiated from reg, which may be nil when none are configured.
func NewSimulation(setup Setup, reg *Registry, rng *rand.Rand) (*Simulation, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	model, err := params.New(setup.Model, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSetup, err)
	}
	model.DrawPropAsymCarriers("")

	log := events.NewLog(setup.Replicate)
	pop, err := agents.NewPopulation(&agents.Env{Model: model, Log: log}, setup.Groups...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSetup, err)
	}
	for _, id := range setup.Infectors {
		if !pop.Contains(id) {
			return nil, fmt.Errorf("%w: infector %q is not in the population", ErrInvalidSetup, id)
		}
	}

	plugins := make([]Plugin, 0, len(setup.Plugins))
	for _, spec := range setup.Plugins {
		if reg == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, spec.Name)
		}
		p, err := reg.Build(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSetup, err)
		}
		plugins = append(plugins, p)
	}

	return &Simulation{
		Replicate: setup.Replicate,
		Pop:       pop,
		Log:       log,
		setup:     setup,
		ctx:       &Context{Pop: pop, Options: setup.Options, Plugins: plugins},
		queue:     NewQueue(),
		triggered: make(map[int]float64),
	}, nil
}

// Run executes the replicate to completion. A protocol error is recorded as
// an ERROR and returned; the summary is valid either way.
func (s *Simulation) Run() (Summary, error) {
	start := events.New(0, events.Start{Seed: s.setup.Seed, PopSize: s.Pop.Size()})
	if _, err := Apply(s.ctx, start); err != nil {
		return s.finish(), err
	}
	s.seed()
	s.schedulePlugins()

loop:
	for {
		t, batch, ok := s.queue.Pop()
		if !ok {
			break
		}
		if stop := s.setup.StopAt; stop != nil && t > *stop {
			s.clock = *stop
			break
		}
		s.clock = t

		for i, ev := range batch {
			res, err := Apply(s.ctx, ev)
			if err != nil {
				s.Log.Record(t, events.KindError, ev.Target,
					events.Str("event", ev.Kind().String()),
					events.Str("msg", sanitize(err.Error())))
				slog.Debug("replicate failed", "replicate", s.Replicate, "time", SimTime(t), "error", err)
				return s.finish(), fmt.Errorf("replicate %d: %w", s.Replicate, err)
			}

			if call, isCall := ev.Payload.(events.PluginCall); isCall {
				s.reschedule(call, t, s.queue.Core()+coreCount(batch[i+1:]))
			} else {
				s.trigger(ev.Kind(), t)
			}
			for _, f := range res.Events {
				f.Time = max(f.Time, t)
				if _, isAbort := f.Payload.(events.Abort); isAbort && f.Time == t {
					// Nothing else at this time runs once the replicate aborts.
					if _, err := Apply(s.ctx, f); err != nil {
						return s.finish(), fmt.Errorf("replicate %d: %w", s.Replicate, err)
					}
					s.aborted = true
					break loop
				}
				s.queue.Push(f)
			}

			if res.Abort {
				s.aborted = true
				break loop
			}
			if res.Done {
				break loop
			}
		}
	}

	return s.finish(), nil
}

// seed queues the initial infections as priority events at time 0.
func (s *Simulation) seed() {
	ids := s.setup.Infectors
	if len(ids) == 0 {
		id, ok := s.Pop.Select("")
		if !ok {
			slog.Debug("nobody to infect", "replicate", s.Replicate)
			return
		}
		ids = []string{id}
	}
	for _, id := range ids {
		s.queue.Push(events.New(0, events.Infection{
			LeadTime: s.setup.Options.LeadTime,
			Handle:   s.setup.Options.Handle,
		}).For(id).Urgent())
	}
}

// finish writes the END record and returns the summary.
func (s *Simulation) finish() Summary {
	sum := Summary{
		Replicate:   s.Replicate,
		Seed:        s.setup.Seed,
		EndTime:     s.clock,
		PopSize:     s.Pop.Size(),
		Infected:    s.Log.Count(events.KindInfection),
		Recovered:   s.Log.Count(events.KindRecover),
		Removed:     s.Log.Count(events.KindRemoval),
		Quarantined: s.Log.Count(events.KindQuarantine),
		Vaccinated:  s.Log.Count(events.KindVaccination),
		Replaced:    s.Log.Count(events.KindReplacement),
		Aborted:     s.aborted,
	}
	s.Log.Record(s.clock, events.KindEnd, "",
		events.Int("popsize", sum.PopSize),
		events.Int("n_infected", sum.Infected),
		events.Int("n_recovered", sum.Recovered),
		events.Int("n_removed", sum.Removed),
		events.Int("n_quarantined", sum.Quarantined),
		events.Int("n_vaccinated", sum.Vaccinated),
		events.Int("n_replaced", sum.Replaced),
	)
	sum.Counts = s.Log.Counts()

	slog.Debug("replicate finished",
		"replicate", s.Replicate,
		"time", SimTime(s.clock),
		"popsize", sum.PopSize,
		"infected", sum.Infected,
		"aborted", sum.Aborted,
	)
	return sum
}

func coreCount(evs []events.Event) int {
	n := 0
	for _, ev := range evs {
		if _, isCall := ev.Payload.(events.PluginCall); !isCall {
			n++
		}
	}
	return n
}

var recordEscaper = strings.NewReplacer(",", ";", "\t", " ", "\n", " ", "=", ":")

// sanitize keeps free text from breaking the k=v,k=v record format.
func sanitize(s string) string {
	return recordEscaper.Replace(s)
}
