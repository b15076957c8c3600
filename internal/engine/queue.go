package engine

import (
	"container/heap"
	"math"

	"github.com/talgya/outbreak/internal/events"
)

// timeResolution is the grid event times are rounded to, so that times
// computed along different paths share a bucket.
const timeResolution = 1e9

func roundTime(t float64) float64 {
	return math.Round(t*timeResolution) / timeResolution
}

// bucket holds the events of one time. They run in field order.
type bucket struct {
	before   []events.Event // plugins declared "before"
	priority []events.Event
	normal   []events.Event
	after    []events.Event // plugins declared "after"
}

func (b *bucket) flatten() []events.Event {
	out := make([]events.Event, 0, len(b.before)+len(b.priority)+len(b.normal)+len(b.after))
	out = append(out, b.before...)
	out = append(out, b.priority...)
	out = append(out, b.normal...)
	return append(out, b.after...)
}

type timeHeap []float64

func (h timeHeap) Len() int           { return len(h) }
func (h timeHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h timeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timeHeap) Push(x any)        { *h = append(*h, x.(float64)) }
func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Queue is a time-bucketed event queue. Pop returns every event of the
// earliest pending time at once.
type Queue struct {
	buckets map[float64]*bucket
	times   timeHeap
	size    int
	core    int // events that are not plugin calls
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{buckets: make(map[float64]*bucket)}
}

// Push schedules an event.
func (q *Queue) Push(ev events.Event) {
	ev.Time = roundTime(ev.Time)
	b, ok := q.buckets[ev.Time]
	if !ok {
		b = &bucket{}
		q.buckets[ev.Time] = b
		heap.Push(&q.times, ev.Time)
	}

	if call, isCall := ev.Payload.(events.PluginCall); isCall {
		if call.After {
			b.after = append(b.after, ev)
		} else {
			b.before = append(b.before, ev)
		}
	} else {
		q.core++
		if ev.Priority {
			b.priority = append(b.priority, ev)
		} else {
			b.normal = append(b.normal, ev)
		}
	}
	q.size++
}

// Pop removes and returns the earliest bucket.
func (q *Queue) Pop() (float64, []events.Event, bool) {
	if len(q.times) == 0 {
		return 0, nil, false
	}
	t := heap.Pop(&q.times).(float64)
	b := q.buckets[t]
	delete(q.buckets, t)

	evs := b.flatten()
	q.size -= len(evs)
	q.core -= len(b.priority) + len(b.normal)
	return t, evs, true
}

// Peek returns the earliest pending time.
func (q *Queue) Peek() (float64, bool) {
	if len(q.times) == 0 {
		return 0, false
	}
	return q.times[0], true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return q.size
}

// Core returns the number of pending events that are not plugin calls.
func (q *Queue) Core() int {
	return q.core
}
