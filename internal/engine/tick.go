// Package engine applies events to a population and drives the event loop of
// a single replicate.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/outbreak/internal/events"
)

// SimTime renders simulation days as a human-readable clock, e.g.
// "day 3 04:30". Negative times (infections backdated by a lead time) are
// shown with a minus sign.
func SimTime(t float64) string {
	sign := ""
	if t < 0 {
		sign = "-"
		t = -t
	}
	totalMinutes := int64(math.Round(t * 24 * 60))
	minutes := totalMinutes % 60
	hours := totalMinutes / 60 % 24
	days := totalMinutes / (24 * 60)
	return fmt.Sprintf("%sday %d %02d:%02d", sign, days, hours, minutes)
}

func (s *Simulation) pluginCall(idx int, t float64, repeat bool) events.Event {
	spec := s.setup.Plugins[idx]
	return events.New(t, events.PluginCall{
		Name:   spec.Name,
		After:  spec.After,
		Index:  idx,
		Repeat: repeat,
	})
}

// schedulePlugins queues the first call of every plugin.
func (s *Simulation) schedulePlugins() {
	for i, spec := range s.setup.Plugins {
		for _, t := range spec.At {
			s.queue.Push(s.pluginCall(i, t, false))
		}
		switch {
		case spec.Interval > 0:
			s.queue.Push(s.pluginCall(i, spec.Start, true))
		case len(spec.At) == 0 && len(spec.TriggerBy) == 0:
			s.queue.Push(s.pluginCall(i, spec.Start, false))
		}
	}
}

// reschedule queues the next call of an interval plugin. Without an end time
// the plugin keeps running only while pending holds other work.
func (s *Simulation) reschedule(call events.PluginCall, t float64, pending int) {
	if !call.Repeat {
		return
	}
	spec := s.setup.Plugins[call.Index]
	next := t + spec.Interval
	if spec.End != nil {
		if next > *spec.End+1/timeResolution {
			return
		}
	} else if pending == 0 {
		return
	}
	s.queue.Push(s.pluginCall(call.Index, next, true))
}

// trigger queues plugins listening for kind. A plugin is triggered at most
// once per time.
func (s *Simulation) trigger(kind events.Kind, t float64) {
	for i, spec := range s.setup.Plugins {
		if !spec.triggeredBy(kind) {
			continue
		}
		if last, ok := s.triggered[i]; ok && last == t {
			continue
		}
		s.triggered[i] = t
		s.queue.Push(s.pluginCall(i, t, false))
	}
}
