package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
)

// ErrProtocol marks events that cannot be applied at all. It ends the
// replicate.
var ErrProtocol = errors.New("protocol violation")

// Tracing configures contact tracing on symptom onset.
type Tracing struct {
	Proportion float64             // share of symptomatic cases that are traced
	Succ       float64             // chance each contact is found
	Reaction   events.HandlePolicy // what happens to a found contact
	Cutoff     float64             // days to look back; 0 traces every contact
}

// Options are the replicate-wide rules events are applied under.
type Options struct {
	Handle                   events.HandlePolicy // symptom handling of seeded infections
	LeadTime                 events.LeadTime     // lead time of seeded infections
	Tracing                  *Tracing
	AbortOnQuarantineSymptom bool
}

// Context is what Apply works on.
type Context struct {
	Pop     *agents.Population
	Options Options
	Plugins []Plugin
}

func (c *Context) log() events.Recorder {
	return c.Pop.Env().Log
}

func (c *Context) warn(time float64, target, msg string) {
	c.log().Record(time, events.KindWarning, target, events.Str("msg", msg))
}

// Result is what applying one event produced. Abort and Done both end the
// replicate; only Abort counts as an early termination.
type Result struct {
	Events []events.Event
	Abort  bool
	Done   bool
}

// Apply advances the population by one event and returns its follow-ups.
// Every applied event leaves one record in the log. Events whose target has
// vanished leave a WARNING and change nothing.
func Apply(c *Context, ev events.Event) (Result, error) {
	var (
		res Result
		err error
	)
	switch p := ev.Payload.(type) {
	case events.Infection:
		res.Events, err = c.infection(ev, p)
	case events.InfectionOutcome:
		c.log().Record(ev.Time, p.Outcome, ev.Target, outcomeParams(p.By, p.Reason)...)
	case events.Recover:
		c.recover(ev)
	case events.ShowSymptom:
		res.Events = c.showSymptom(ev)
	case events.Removal:
		c.removal(ev, p)
	case events.Quarantine:
		res.Events = c.quarantine(ev, p)
	case events.Reintegration:
		c.reintegration(ev, p)
	case events.Vaccination:
		c.vaccination(ev, p)
	case events.Replacement:
		res.Events, err = c.replacement(ev, p)
	case events.ContactTracing:
		res.Events = c.contactTracing(ev, p)
	case events.PluginCall:
		res.Events, err = c.plugin(ev, p)
	case events.Stat:
		c.log().Record(ev.Time, events.KindStat, ev.Target, p.Values...)
	case events.Start:
		c.log().Record(ev.Time, events.KindStart, ev.Target,
			events.Str("seed", strconv.FormatUint(p.Seed, 10)), events.Int("popsize", p.PopSize))
	case events.End:
		// The simulation writes the END record with the final statistics.
		res.Done = true
	case events.Abort:
		c.log().Record(ev.Time, events.KindAbort, ev.Target, events.Str("reason", p.Reason))
		res.Abort = true
	case events.Notice:
		c.log().Record(ev.Time, p.Level, ev.Target, events.Str("msg", p.Message))
	default:
		err = fmt.Errorf("%w: unhandled payload %T", ErrProtocol, ev.Payload)
	}
	if err != nil {
		return Result{}, fmt.Errorf("apply %s at %.2f: %w", ev.Kind(), ev.Time, err)
	}
	return res, nil
}

func outcomeParams(by, reason string) []events.Param {
	var ps []events.Param
	if by != "" {
		ps = append(ps, events.Str("by", by))
	}
	if reason != "" {
		ps = append(ps, events.Str("reason", reason))
	}
	return ps
}

func (c *Context) infection(ev events.Event, p events.Infection) ([]events.Event, error) {
	t := ev.Time
	var infector *agents.Individual
	if p.By != "" {
		inf, ok := c.Pop.Get(p.By)
		if !ok {
			c.log().Record(t, events.KindInfectionFailed, ev.Target, outcomeParams(p.By, "infector_removed")...)
			return nil, nil
		}
		if inf.IsQuarantined() {
			c.log().Record(t, events.KindInfectionAvoided, ev.Target, outcomeParams(p.By, "quarantine")...)
			return nil, nil
		}
		infector = inf
	}

	target := ev.Target
	if target == "" {
		id, ok := c.Pop.Select(p.By)
		if !ok {
			c.log().Record(t, events.KindInfectionFailed, "", outcomeParams(p.By, "no_target")...)
			return nil, nil
		}
		target = id
	}
	ind, ok := c.Pop.Get(target)
	if !ok {
		c.warn(t, target, "target_missing")
		return nil, nil
	}

	opts := agents.InfectOptions{By: p.By, LeadTime: p.LeadTime, Handle: p.Handle}
	if !ind.Infected.Valid && entropy.Bernoulli(c.Pop.Env().Model.Rand(), ind.Immunity) {
		c.log().Record(t, events.KindInfectionFailed, target, outcomeParams(p.By, "immunity")...)
		return nil, nil
	}
	wasInfected := ind.Infected.Valid
	follow, err := ind.Infect(t, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if infector != nil && !wasInfected {
		infector.RecordInfectee(target, t)
	}
	return follow, nil
}

func (c *Context) recover(ev events.Event) {
	ind, ok := c.Pop.Lookup(ev.Target)
	if !ok {
		c.warn(ev.Time, ev.Target, "target_missing")
		return
	}
	if c.Pop.IsRemoved(ev.Target) {
		c.warn(ev.Time, ev.Target, "recover_after_removal")
		return
	}
	ind.Recover(ev.Time)
	c.log().Record(ev.Time, events.KindRecover, ev.Target)
}

func (c *Context) showSymptom(ev events.Event) []events.Event {
	ind, ok := c.Pop.Get(ev.Target)
	if !ok {
		c.warn(ev.Time, ev.Target, "target_missing")
		return nil
	}
	ind.MarkSymptom(ev.Time)
	c.log().Record(ev.Time, events.KindShowSymptom, ev.Target)

	if c.Options.AbortOnQuarantineSymptom && ind.QuarantinedAt(ev.Time) {
		return []events.Event{events.New(ev.Time, events.Abort{Reason: "symptom_in_quarantine"}).For(ev.Target).Urgent()}
	}

	tr := c.Options.Tracing
	if tr == nil || !tr.Reaction.Applies(ind.Group) {
		return nil
	}
	if !entropy.Bernoulli(c.Pop.Env().Model.Rand(), tr.Proportion) {
		return nil
	}
	return []events.Event{events.New(ev.Time, events.ContactTracing{
		Succ:     tr.Succ,
		Reaction: tr.Reaction,
		Cutoff:   tr.Cutoff,
	}).For(ev.Target)}
}

func (c *Context) removal(ev events.Event, p events.Removal) {
	if !c.Pop.Remove(ev.Target) {
		c.warn(ev.Time, ev.Target, "target_missing")
		return
	}
	c.log().Record(ev.Time, events.KindRemoval, ev.Target, events.Str("reason", p.Reason))
}

func (c *Context) quarantine(ev events.Event, p events.Quarantine) []events.Event {
	ind, ok := c.Pop.Get(ev.Target)
	if !ok {
		c.warn(ev.Time, ev.Target, "target_missing")
		return nil
	}
	if ind.IsQuarantined() {
		c.warn(ev.Time, ev.Target, "already_quarantined")
		return nil
	}
	release := ind.Quarantine(max(p.Till, ev.Time))
	ps := []events.Param{events.Float("till", release.Time)}
	if p.Reason != "" {
		ps = append(ps, events.Str("reason", p.Reason))
	}
	c.log().Record(ev.Time, events.KindQuarantine, ev.Target, ps...)
	return []events.Event{release}
}

func (c *Context) reintegration(ev events.Event, p events.Reintegration) {
	if p.Restore {
		left, err := c.Pop.Restore(ev.Target)
		if err != nil {
			slog.Debug("restore failed", "target", ev.Target, "error", err)
			c.warn(ev.Time, ev.Target, "chain_unresolved")
			return
		}
		c.log().Record(ev.Time, events.KindReintegration, ev.Target, events.Str("replaced_by", left))
		return
	}

	// A replaced individual still serves its quarantine while parked.
	ind, ok := c.Pop.Lookup(ev.Target)
	if !ok || c.Pop.IsRemoved(ev.Target) {
		c.warn(ev.Time, ev.Target, "target_missing")
		return
	}
	if !ind.IsQuarantined() {
		c.warn(ev.Time, ev.Target, "not_quarantined")
		return
	}
	if p.Scheduled && !ind.Releases(p.Release) {
		c.warn(ev.Time, ev.Target, "stale_reintegration")
		return
	}
	ind.Reintegrate()
	var ps []events.Param
	if c.Pop.IsParked(ev.Target) {
		ps = append(ps, events.Str("state", "parked"))
	}
	c.log().Record(ev.Time, events.KindReintegration, ev.Target, ps...)
}

func (c *Context) vaccination(ev events.Event, p events.Vaccination) {
	ind, ok := c.Pop.Get(ev.Target)
	if !ok {
		c.warn(ev.Time, ev.Target, "target_missing")
		return
	}
	ind.Vaccinate(ev.Time, p.Immunity, p.Infectivity)
	c.log().Record(ev.Time, events.KindVaccination, ev.Target,
		events.Float("immunity", ind.Immunity), events.Float("infectivity", ind.Infectivity))
}

func (c *Context) replacement(ev events.Event, p events.Replacement) ([]events.Event, error) {
	if !c.Pop.Contains(ev.Target) {
		c.warn(ev.Time, ev.Target, "target_missing")
		return nil, nil
	}
	nid, err := c.Pop.Replace(ev.Target, p.Keep)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	ps := []events.Param{events.Str("replaced_by", nid)}
	if p.Reason != "" {
		ps = append(ps, events.Str("reason", p.Reason))
	}
	c.log().Record(ev.Time, events.KindReplacement, ev.Target, ps...)

	if !p.HasTill {
		return nil, nil
	}
	return []events.Event{events.New(max(p.Till, ev.Time), events.Reintegration{Restore: true}).For(ev.Target)}, nil
}

func (c *Context) plugin(ev events.Event, p events.PluginCall) ([]events.Event, error) {
	if p.Index < 0 || p.Index >= len(c.Plugins) {
		return nil, fmt.Errorf("%w: no plugin at index %d", ErrProtocol, p.Index)
	}
	pl := c.Plugins[p.Index]
	out, err := pl.Apply(ev.Time, c.Pop)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", pl.Name(), err)
	}
	c.log().Record(ev.Time, events.KindPlugin, ev.Target, events.Str("name", pl.Name()), events.Int("events", len(out)))
	return out, nil
}
