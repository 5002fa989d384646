// Package alias implements the false-phase-lock / half-cycle alias
// detector named as a collaborator in spec.md 4.3 and driven from
// TrackingChannel.update step 9. It buffers a short run of first-half /
// second-half prompt cross products and runs a small FFT over them
// (gonum.org/v1/gonum/dsp/fourier, the same spectral-peak technique the
// teacher uses for angle-of-arrival search in internal/dsp/fft.go, here
// repurposed from spatial bins to residual-Doppler bins) to pull out a
// frequency-error estimate.
package alias

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// historyLen is the number of half-integration cross products buffered
// before each FFT search; the rolling history keeps the latest historyLen. A longer history resolves smaller frequency
// errors at the cost of detection latency.
const historyLen = 8

// Detector buffers first-half prompt snapshots and, once the matching
// second half arrives, accumulates the (first, second) cross-product into
// a short rolling history used to estimate a residual frequency error.
type Detector struct {
	firstI, firstQ float64
	history        []complex128

	halfPeriodS float64
}

// SetHalfPeriod configures the duration, in seconds, of one half of the
// long-coherent integration this detector is attached to. It must be
// called (or re-called) whenever int_ms changes.
func (d *Detector) SetHalfPeriod(s float64) { d.halfPeriodS = s }

// First snapshots the first-half prompt correlation (spec.md 4.1.2:
// "pass the prompt to the alias detector's 'first' stage").
func (d *Detector) First(i, q int32) {
	d.firstI, d.firstQ = float64(i), float64(q)
}

// FirstIQ returns the most recent first-half prompt snapshot, letting the
// caller compute the second-half correlation as (total - first)/(n-1)
// before calling Second.
func (d *Detector) FirstIQ() (i, q float64) { return d.firstI, d.firstQ }

// Second takes the second-half prompt correlation, accumulates the
// first/second cross product into the rolling history, and returns an
// estimated frequency error in Hz.
func (d *Detector) Second(i, q float64) float64 {
	first := complex(d.firstI, d.firstQ)
	second := complex(i, q)
	cross := second * cmplx.Conj(first)

	d.history = append(d.history, cross)
	if len(d.history) > historyLen {
		d.history = d.history[len(d.history)-historyLen:]
	}
	if len(d.history) < historyLen || d.halfPeriodS <= 0 {
		return 0
	}

	fft := fourier.NewCmplxFFT(len(d.history)).Coefficients(nil, d.history)

	peakBin, peakMag := 0, 0.0
	for bin, v := range fft {
		mag := cmplx.Abs(v)
		if mag > peakMag {
			peakMag = mag
			peakBin = bin
		}
	}

	// Fold the bin index into a signed frequency, centered at DC.
	n := len(fft)
	signedBin := peakBin
	if signedBin > n/2 {
		signedBin -= n
	}
	binWidthHz := 1.0 / (float64(n) * d.halfPeriodS)
	return math.Round(float64(signedBin)*binWidthHz*1000) / 1000
}

// Reset clears the rolling history, e.g. after a stage transition.
func (d *Detector) Reset() {
	d.history = d.history[:0]
}
