package params

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/outbreak/internal/entropy"
)

// Calibration of the normal-mode curves. The symptomatic right tail puts day
// 14 at the 97.5th percentile of a 6-day mean; the asymptomatic curve puts
// day 10 at the 97.5th percentile of a 5-day mean.
const (
	symptomaticTailDays = 8.0 // curve runs to centre + 8 days
	symptomaticRightSD  = 14.0 - 6.0
	asymptomaticMean    = 4.8
	asymptomaticSD      = 10.0 - 5.0
)

// Curve is a discretized transmission-probability curve. X holds times since
// infection on the model's interval grid; P holds the probability of a
// transmission attempt at each point. Sum(P) equals the r0 it was built for.
type Curve struct {
	X []float64
	P []float64
}

// Sum returns the expected number of transmission attempts.
func (c Curve) Sum() float64 {
	var s float64
	for _, p := range c.P {
		s += p
	}
	return s
}

// End returns the last grid point, or 0 for an empty curve.
func (c Curve) End() float64 {
	if len(c.X) == 0 {
		return 0
	}
	return c.X[len(c.X)-1]
}

// SymptomaticCurve returns the transmission curve of a symptomatic carrier
// with the given incubation period.
func (m *Model) SymptomaticCurve(incubation, r0 float64) Curve {
	if m.cfg.Transmissibility == ModePiecewise {
		d := m.drawDuration()
		pw := m.cfg.Piecewise
		return triangle(pw.Start*incubation, pw.Peak*incubation, incubation+d, m.cfg.Interval, r0)
	}
	return m.normalSymptomatic(incubation, r0)
}

// AsymptomaticCurve returns the transmission curve of an asymptomatic carrier.
func (m *Model) AsymptomaticCurve(r0 float64) Curve {
	if m.cfg.Transmissibility == ModePiecewise {
		d := m.drawDuration()
		pw := m.cfg.Piecewise
		return triangle(pw.Start*d, pw.Peak*d, d, m.cfg.Interval, r0)
	}

	dist := distuv.Normal{Mu: asymptomaticMean, Sigma: asymptomaticSD / z975}
	x := grid(asymptomaticMean+z975*dist.Sigma, m.cfg.Interval)
	p := make([]float64, len(x))
	for i, t := range x {
		p[i] = dist.Prob(t)
	}
	normalize(p, r0)
	return Curve{X: x, P: p}
}

// normalSymptomatic joins two half-Gaussians at c = 2/3 of the incubation
// period. The right half has a fixed spread; the left half reaches its 2.5th
// percentile at infection time and is rescaled to meet the right half at c.
func (m *Model) normalSymptomatic(incubation, r0 float64) Curve {
	c := incubation * 2 / 3
	right := distuv.Normal{Mu: c, Sigma: symptomaticRightSD / z975}
	left := distuv.Normal{Mu: c, Sigma: math.Max(c, m.cfg.Interval) / z975}
	scale := right.Prob(c) / left.Prob(c)

	x := grid(c+symptomaticTailDays, m.cfg.Interval)
	p := make([]float64, len(x))
	for i, t := range x {
		if t < c {
			p[i] = left.Prob(t) * scale
		} else {
			p[i] = right.Prob(t)
		}
	}
	normalize(p, r0)
	return Curve{X: x, P: p}
}

func (m *Model) drawDuration() float64 {
	r := m.cfg.Piecewise.Duration
	return entropy.Uniform(m.rng, r.Low, r.High)
}

// triangle rises linearly from 0 at start to 1 at peak and falls back to 0 at
// end.
func triangle(start, peak, end, step, r0 float64) Curve {
	peak = math.Min(peak, end)
	start = math.Min(start, peak)

	x := grid(end, step)
	p := make([]float64, len(x))
	for i, t := range x {
		switch {
		case t < start:
		case t < peak:
			p[i] = (t - start) / (peak - start)
		case t == peak:
			p[i] = 1
		case t < end:
			p[i] = (end - t) / (end - peak)
		}
	}
	normalize(p, r0)
	return Curve{X: x, P: p}
}

// grid returns 0, step, 2·step, ... strictly below end. At least one point is
// always returned.
func grid(end, step float64) []float64 {
	n := int(math.Ceil(end / step))
	if n < 1 {
		n = 1
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) * step
	}
	return x
}

// normalize scales p in place so that it sums to r0. A curve with no mass
// (a duration shorter than one step) puts all of r0 on its midpoint.
func normalize(p []float64, r0 float64) {
	var total float64
	for _, v := range p {
		total += v
	}
	if total <= 0 || math.IsNaN(total) {
		for i := range p {
			p[i] = 0
		}
		if r0 > 0 && len(p) > 0 {
			p[len(p)/2] = r0
		}
		return
	}
	f := r0 / total
	for i := range p {
		p[i] *= f
	}
}
