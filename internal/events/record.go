package events

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NoTarget is how an absent target is written in the log.
const NoTarget = "."

// Param is one key=value pair of a log record.
type Param struct {
	Key   string
	Value string
}

// Float formats v with two decimals.
func Float(key string, v float64) Param {
	return Param{Key: key, Value: strconv.FormatFloat(v, 'f', 2, 64)}
}

// Int formats an integer parameter.
func Int(key string, v int) Param {
	return Param{Key: key, Value: strconv.Itoa(v)}
}

// Str is a string parameter.
func Str(key, v string) Param {
	return Param{Key: key, Value: v}
}

// Record is one line of the simulation log.
type Record struct {
	Replicate int
	Time      float64
	Kind      Kind
	Target    string
	Params    []Param
}

// String renders the record as
//
//	replicate \t time \t EVENT \t target \t k=v,k=v
//
// with "." for a missing target.
func (r Record) String() string {
	target := r.Target
	if target == "" {
		target = NoTarget
	}
	return fmt.Sprintf("%d\t%.2f\t%s\t%s\t%s", r.Replicate, r.Time, r.Kind, target, r.ParamString())
}

// ParamString joins the parameters as k=v pairs separated by commas.
func (r Record) ParamString() string {
	parts := make([]string, len(r.Params))
	for i, p := range r.Params {
		parts[i] = p.Key + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

// Param returns the value stored under key.
func (r Record) Param(key string) (string, bool) {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Recorder receives the records produced while events are applied.
type Recorder interface {
	Record(time float64, kind Kind, target string, params ...Param)
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(float64, Kind, string, ...Param) {}

// Log buffers the records of one replicate. It is not safe for concurrent
// use; a replicate owns its Log until it hands it to the runner.
type Log struct {
	replicate int
	records   []Record
	counts    [numKinds]int
}

// NewLog returns an empty log for the given replicate.
func NewLog(replicate int) *Log {
	return &Log{replicate: replicate}
}

// Record appends a record.
func (l *Log) Record(time float64, kind Kind, target string, params ...Param) {
	l.records = append(l.records, Record{
		Replicate: l.replicate,
		Time:      time,
		Kind:      kind,
		Target:    target,
		Params:    params,
	})
	if kind < numKinds {
		l.counts[kind]++
	}
}

// Replicate returns the replicate the log belongs to.
func (l *Log) Replicate() int {
	return l.replicate
}

// Records returns the buffered records in order.
func (l *Log) Records() []Record {
	return l.records
}

// Count returns how many records of kind were logged.
func (l *Log) Count(kind Kind) int {
	if kind >= numKinds {
		return 0
	}
	return l.counts[kind]
}

// Counts returns the non-zero record counts by kind name.
func (l *Log) Counts() map[string]int {
	out := make(map[string]int)
	for k, n := range l.counts {
		if n > 0 {
			out[Kind(k).String()] = n
		}
	}
	return out
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.records)
}

// Filter returns the records of the given kinds.
func (l *Log) Filter(kinds ...Kind) []Record {
	var out []Record
	for _, r := range l.records {
		for _, k := range kinds {
			if r.Kind == k {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// WriteTo writes one line per record.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, r := range l.records {
		n, err := io.WriteString(w, r.String()+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
