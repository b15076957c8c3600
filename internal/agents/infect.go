package agents

import (
	"fmt"
	"math"

	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

// InfectOptions describe how an infection came about.
type InfectOptions struct {
	By       ID // infector, empty for an unprompted infection
	LeadTime events.LeadTime
	Handle   events.HandlePolicy // what happens at symptom onset
}

// Infect infects the individual at time and returns the events its
// infection sets in motion: symptom onset, the symptom handling, secondary
// infection attempts and recovery. Infecting an individual twice logs
// INFECTION_IGNORED and changes nothing.
func (ind *Individual) Infect(time float64, opts InfectOptions) ([]events.Event, error) {
	if ind.Infected.Valid {
		var ps []events.Param
		if opts.By != "" {
			ps = append(ps, events.Str("by", opts.By))
		}
		ind.env.Log.Record(time, events.KindInfectionIgnored, ind.ID, ps...)
		return nil, nil
	}
	if opts.LeadTime.IsSet() && opts.By != "" {
		return nil, fmt.Errorf("%w: %s infected by %s", ErrLeadTimeOnSecondary, ind.ID, opts.By)
	}
	if opts.Handle.Action == events.ActionReintegrate {
		return nil, fmt.Errorf("%w: %s on symptom onset", events.ErrUnsupportedPolicy, opts.Handle.Action)
	}

	if ind.env.Model.DrawIsAsymptomatic(ind.Group) {
		return ind.infectAsymptomatic(time, opts), nil
	}
	return ind.infectSymptomatic(time, opts), nil
}

func (ind *Individual) infectSymptomatic(time float64, opts InfectOptions) []events.Event {
	m := ind.env.Model
	rng := m.Rand()

	r0 := m.DrawRandomR0(true, ind.Group) * (1 - ind.Infectivity)
	incu := m.DrawRandomIncubationPeriod(ind.Group)

	var lead float64
	switch opts.LeadTime.Kind {
	case events.LeadFixed:
		lead = opts.LeadTime.Value
	case events.LeadAny:
		lead = entropy.Uniform(rng, 0, incu*2/3+8)
	case events.LeadAsymptomatic:
		lead = entropy.Uniform(rng, 0, incu)
	}

	infected := time - lead
	onset := infected + incu
	ind.Infected = At(infected)
	ind.Symptomatic = true
	ind.R0 = r0
	ind.Incubation = At(incu)

	var out []events.Event
	if onset <= time {
		ind.MarkSymptom(onset)
	} else {
		out = append(out, events.New(onset, events.ShowSymptom{}).For(ind.ID))
	}

	tr := ind.transmission(time, infected)
	tr.onset = onset

	handle := opts.Handle
	if ind.handled(handle, onset) {
		at := max(onset, time)
		var ev events.Event
		switch handle.Action {
		case events.ActionRemove:
			ev = events.New(at, events.Removal{Reason: "symptom"})
			tr.cut = at
		case events.ActionReplace:
			ev = events.New(at, events.Replacement{Reason: "symptom"})
			tr.cut = at
		case events.ActionQuarantine:
			ev = events.New(at, events.Quarantine{Till: at + handle.Duration, Reason: "symptom"})
			tr.blocked = append(tr.blocked, window{from: at, till: at + handle.Duration})
		}
		ev = ev.For(ind.ID)
		if at == time {
			ev = ev.Urgent()
		}
		out = append(out, ev)
	}

	curve := m.SymptomaticCurve(incu, r0)
	attempts, pre, post := ind.transmit(curve, tr, handle)
	out = append(out, attempts...)
	out = append(out, events.New(max(time, infected+curve.End()), events.Recover{}).For(ind.ID))

	ps := ind.infectionParams(opts, lead)
	ps = append(ps,
		events.Float("r0", r0),
		events.Int("r", pre+post),
		events.Int("r_presym", pre),
		events.Int("r_postsym", post),
		events.Float("incu", incu),
	)
	ind.env.Log.Record(time, events.KindInfection, ind.ID, ps...)
	return out
}

func (ind *Individual) infectAsymptomatic(time float64, opts InfectOptions) []events.Event {
	m := ind.env.Model
	r0 := m.DrawRandomR0(false, ind.Group) * (1 - ind.Infectivity)
	curve := m.AsymptomaticCurve(r0)

	var lead float64
	switch opts.LeadTime.Kind {
	case events.LeadFixed:
		lead = opts.LeadTime.Value
	case events.LeadAny, events.LeadAsymptomatic:
		lead = entropy.Uniform(m.Rand(), 0, curve.End())
	}

	infected := time - lead
	ind.Infected = At(infected)
	ind.Symptomatic = false
	ind.R0 = r0
	ind.Incubation = Stamp{}

	attempts, n, _ := ind.transmit(curve, ind.transmission(time, infected), opts.Handle)
	out := append(attempts, events.New(max(time, infected+curve.End()), events.Recover{}).For(ind.ID))

	ps := ind.infectionParams(opts, lead)
	ps = append(ps,
		events.Float("r0", r0),
		events.Int("r", n),
		events.Int("r_asym", n),
		events.Str("incu", "NA"),
	)
	ind.env.Log.Record(time, events.KindInfection, ind.ID, ps...)
	return out
}

// handled decides whether the symptom handling policy applies to this
// individual. Someone already quarantined past onset is exempt.
func (ind *Individual) handled(p events.HandlePolicy, onset float64) bool {
	if !p.Acts() || !p.Applies(ind.Group) || ind.QuarantinedAt(onset) {
		return false
	}
	return entropy.Bernoulli(ind.env.Model.Rand(), p.Proportion)
}

func (ind *Individual) infectionParams(opts InfectOptions, lead float64) []events.Param {
	switch {
	case opts.By != "":
		return []events.Param{events.Str("by", opts.By)}
	case opts.LeadTime.IsSet():
		return []events.Param{events.Float("leadtime", lead)}
	}
	return nil
}

type window struct {
	from, till float64
}

// transmission bounds where secondary infection attempts may land.
type transmission struct {
	infected float64  // absolute infection time
	from     float64  // attempts before this fall outside the simulation
	cut      float64  // the carrier is gone from this time on
	onset    float64  // splits pre- and post-symptomatic attempts
	blocked  []window // quarantine windows
}

func (ind *Individual) transmission(time, infected float64) transmission {
	tr := transmission{infected: infected, from: time, cut: math.Inf(1), onset: math.Inf(1)}
	if ind.Quarantined.Valid {
		tr.blocked = append(tr.blocked, window{from: time, till: ind.Quarantined.At})
	}
	return tr
}

func (tr transmission) isBlocked(t float64) bool {
	for _, w := range tr.blocked {
		if t >= w.from && t < w.till {
			return true
		}
	}
	return false
}

// transmit draws one Bernoulli trial per curve point. Successful attempts
// become untargeted INFECTION events, or INFECTION_AVOIDED when they fall in
// a quarantine window.
func (ind *Individual) transmit(c params.Curve, tr transmission, handle events.HandlePolicy) (out []events.Event, pre, post int) {
	rng := ind.env.Model.Rand()
	for i, x := range c.X {
		if !entropy.Bernoulli(rng, c.P[i]) {
			continue
		}
		t := tr.infected + x
		if t < tr.from || t >= tr.cut {
			continue
		}
		if t < tr.onset {
			pre++
		} else {
			post++
		}
		if tr.isBlocked(t) {
			out = append(out, events.New(t, events.InfectionOutcome{
				Outcome: events.KindInfectionAvoided,
				By:      ind.ID,
				Reason:  "quarantine",
			}))
			continue
		}
		out = append(out, events.New(t, events.Infection{By: ind.ID, Handle: handle}))
	}
	return out, pre, post
}
