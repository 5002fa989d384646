// Package cn0 estimates carrier-to-noise density ratio (C/N0, dBHz) from a
// stream of prompt correlator amplitudes using the narrowband-wideband power
// ratio (NWPR) method (Van Dierendonck), the estimator named in spec.md 4.3.
package cn0

import "math"

// windowSize is the number of integration periods averaged per C/N0
// estimate (M in the NWPR formula).
const windowSize = 20

// minDenom is the smallest value of (M - NWPR) used in the NWPR formula,
// which bounds the estimate for a noise-free window.
const minDenom = 1e-3

// Estimator accumulates narrowband and wideband power over consecutive
// windows of prompt correlator amplitudes and reports the C/N0 estimate of
// the last complete window.
type Estimator struct {
	intervalS float64

	nbdI, nbdQ float64 // sum of I, sum of Q over the window (narrowband)
	wbp        float64 // sum of I^2+Q^2 over the window (wideband)
	count      int

	dbHz float64
}

// Init seeds the estimator with an initial C/N0 value (from acquisition)
// and the coherent integration interval in seconds.
func (e *Estimator) Init(dbHz, intervalS float64) {
	*e = Estimator{intervalS: intervalS, dbHz: dbHz}
}

// Update feeds one integration period's normalized prompt amplitude
// (I, Q already divided by int_ms per spec.md 4.1.2 step 6) into the
// estimator, replacing the C/N0 estimate once per complete window.
func (e *Estimator) Update(i, q float64) {
	e.nbdI += i
	e.nbdQ += q
	e.wbp += i*i + q*q
	e.count++

	if e.count < windowSize {
		return
	}

	nbd := e.nbdI*e.nbdI + e.nbdQ*e.nbdQ
	if e.wbp > 0 {
		nwpr := nbd / e.wbp
		m := float64(windowSize)
		denom := m - nwpr
		if denom < minDenom {
			// A noise-free window drives NWPR to M; floor the denominator
			// so the estimate saturates high instead of keeping its old value.
			denom = minDenom
		}
		if nwpr > 1 {
			snr := (nwpr - 1) / denom
			if snr > 0 && e.intervalS > 0 {
				e.dbHz = 10*math.Log10(snr) - 10*math.Log10(e.intervalS)
			}
		}
	}

	e.nbdI, e.nbdQ, e.wbp = 0, 0, 0
	e.count = 0
}

// CN0 returns the current estimate in dBHz.
func (e *Estimator) CN0() float64 { return e.dbHz }
