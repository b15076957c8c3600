package engine

import (
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
)

// contactTracing looks for the individuals the target infected and reacts
// on each one found. Contacts infected before the cutoff window, no longer
// in the population, or already recovered are left alone.
func (c *Context) contactTracing(ev events.Event, p events.ContactTracing) []events.Event {
	src, ok := c.Pop.Lookup(ev.Target)
	if !ok {
		c.warn(ev.Time, ev.Target, "target_missing")
		return nil
	}

	rng := c.Pop.Env().Model.Rand()
	since := ev.Time - p.Cutoff
	if p.Cutoff <= 0 {
		since = src.Infected.At
	}

	var out []events.Event
	contacts, traced := 0, 0
	for _, inf := range src.InfecteesSince(since) {
		contacts++
		if !entropy.Bernoulli(rng, p.Succ) {
			continue
		}
		contact, ok := c.Pop.Get(inf.ID)
		if !ok || contact.Recovered.Valid || !p.Reaction.Applies(contact.Group) {
			continue
		}
		if !entropy.Bernoulli(rng, p.Reaction.Proportion) {
			continue
		}
		traced++
		if follow, ok := reaction(ev.Time, inf.ID, p.Reaction); ok {
			out = append(out, follow)
		}
	}

	c.log().Record(ev.Time, events.KindContactTracing, ev.Target,
		events.Int("contacts", contacts),
		events.Int("traced", traced),
		events.Str("reaction", p.Reaction.String()),
	)
	return out
}

// reaction turns a tracing policy into the event applied to one contact.
func reaction(time float64, id string, p events.HandlePolicy) (events.Event, bool) {
	var payload events.Payload
	switch p.Action {
	case events.ActionRemove:
		payload = events.Removal{Reason: "contact_tracing"}
	case events.ActionQuarantine:
		d := p.Duration
		if d <= 0 {
			d = events.DefaultQuarantineDays
		}
		payload = events.Quarantine{Till: time + d, Reason: "contact_tracing"}
	case events.ActionReplace:
		payload = events.Replacement{Reason: "contact_tracing"}
	case events.ActionReintegrate:
		payload = events.Reintegration{}
	default:
		return events.Event{}, false
	}
	return events.New(time, payload).For(id), true
}
