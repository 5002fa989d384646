// Package loopfilter implements the aided code/carrier tracking loop: a
// second-order DLL aided by carrier Doppler, and an FLL-assisted second-order
// PLL for the carrier. It is the one DSP collaborator named directly in
// spec.md 4.2; TrackingChannel drives it once per (possibly long) integration
// and reads back carr_freq/code_freq plus the exposed carr_filt.y history the
// false-lock corrector needs to resynchronize after a frequency jump.
package loopfilter

import "math"

// piFilter is a standard discrete proportional-integral loop filter: y is
// the integrator state (the "memory" of the loop), pgain/igain are derived
// from the configured noise bandwidth and damping ratio.
type piFilter struct {
	pgain float64
	igain float64
	y     float64
}

// tune derives proportional/integral gains from noise bandwidth (Hz) and
// damping ratio for a second-order loop (Kaplan & Hegarty, "Understanding
// GPS/GNSS", sec. 5.3-ish PI loop-filter design).
func tune(bw, zeta float64) (pgain, igain float64) {
	if bw <= 0 {
		return 0, 0
	}
	if zeta <= 0 {
		zeta = 0.7
	}
	wn := bw / (zeta + 1/(4*zeta))
	return 2 * zeta * wn, wn * wn
}

func (f *piFilter) retune(bw, zeta float64) {
	f.pgain, f.igain = tune(bw, zeta)
}

// update advances the integrator by err (scaled by the loop update period)
// and returns the filter output (proportional term + integrator).
func (f *piFilter) update(err, loopPeriodS float64) float64 {
	f.y += f.igain * err * loopPeriodS
	return f.pgain*err + f.y
}

// LoopFilter is the aided DLL + FLL-assisted-PLL tracking-loop collaborator.
type LoopFilter struct {
	loopFreqHz float64

	codeFilt piFilter
	carrFilt piFilter

	codeK      float64
	carrK      float64
	carrToCode float64
	fllGain    float64

	carrFreq float64
	codeFreq float64

	prevPrompt complex128
	havePrev   bool
}

// Init seeds the loop filter around the acquisition hand-off carrier
// frequency and zero code error, and configures stage-0 coefficients.
func (l *LoopFilter) Init(loopFreqHz, codeErrInit, codeBW, codeZeta, codeK, carrToCode, carrFreqInit, carrBW, carrZeta, carrK, fllGain float64) {
	l.loopFreqHz = loopFreqHz
	l.codeFilt = piFilter{y: codeErrInit}
	l.codeFilt.retune(codeBW, codeZeta)
	l.carrFilt = piFilter{y: carrFreqInit}
	l.carrFilt.retune(carrBW, carrZeta)
	l.codeK = codeK
	l.carrK = carrK
	l.carrToCode = carrToCode
	l.fllGain = fllGain
	l.carrFreq = carrFreqInit
	l.codeFreq = codeErrInit
	l.havePrev = false
}

// Retune keeps integrator state (carr_filt.y, code_filt.y) but swaps in new
// coefficients, used on the S0->S1 stage transition (spec.md 4.1.2 step 10).
func (l *LoopFilter) Retune(loopFreqHz, codeBW, codeZeta, codeK, carrToCode, carrBW, carrZeta, carrK, fllGain float64) {
	l.loopFreqHz = loopFreqHz
	l.codeFilt.retune(codeBW, codeZeta)
	l.carrFilt.retune(carrBW, carrZeta)
	l.codeK = codeK
	l.carrK = carrK
	l.carrToCode = carrToCode
	l.fllGain = fllGain
}

// Correlations holds the three complex correlator taps in Late, Prompt,
// Early order, the order the aided tracking filter is specified to receive
// them in (spec.md 4.1.2 step 7).
type Correlations struct {
	Late, Prompt, Early complex128
}

// Update advances the loop filter by one (possibly long) integration and
// returns the new carrier frequency (Hz) and code frequency offset (Hz,
// relative to the nominal chipping rate — callers add GPSCAChippingRate to
// get code_phase_rate).
func (l *LoopFilter) Update(c Correlations) (carrFreq, codeFreq float64) {
	loopPeriodS := 1.0
	if l.loopFreqHz > 0 {
		loopPeriodS = 1.0 / l.loopFreqHz
	}

	phaseErr := costasDiscriminator(c.Prompt)

	var freqErr float64
	if l.havePrev {
		freqErr = fllDiscriminator(l.prevPrompt, c.Prompt, loopPeriodS)
	}
	l.prevPrompt = c.Prompt
	l.havePrev = true

	carrErr := l.carrK * (phaseErr + l.fllGain*freqErr)
	l.carrFreq = l.carrFilt.update(carrErr, loopPeriodS)
	l.carrFilt.y = l.carrFreq

	codeErr := l.codeK * dllDiscriminator(c.Early, c.Late)
	codeAiding := 0.0
	if l.carrToCode != 0 {
		codeAiding = l.carrFreq / l.carrToCode
	}
	l.codeFreq = l.codeFilt.update(codeErr, loopPeriodS) + codeAiding

	return l.carrFreq, l.codeFreq
}

// CarrFreq returns the carrier frequency estimate from the most recent Update.
func (l *LoopFilter) CarrFreq() float64 { return l.carrFreq }

// CodeFreq returns the code-rate offset estimate from the most recent Update.
func (l *LoopFilter) CodeFreq() float64 { return l.codeFreq }

// CarrFiltY exposes the carrier loop's integrator history so the false-lock
// corrector can inspect and resynchronize it after a frequency jump (spec.md
// 4.2, 9: "expose that field").
func (l *LoopFilter) CarrFiltY() float64 { return l.carrFilt.y }

// SetCarrFiltY resynchronizes the carrier integrator and the reported
// carrier frequency to a corrected value, per spec.md 4.1.2 step 9
// ("carr_filt.y <- carr_freq").
func (l *LoopFilter) SetCarrFiltY(v float64) {
	l.carrFilt.y = v
	l.carrFreq = v
}

// AddCarrFreq adds a frequency correction directly to the carrier state,
// used by the false-lock corrector (spec.md 4.1.2 step 9: "add err to the
// carrier-loop frequency state").
func (l *LoopFilter) AddCarrFreq(errHz float64) {
	l.carrFreq += errHz
	l.carrFilt.y = l.carrFreq
}

// costasDiscriminator is the standard two-quadrant Costas phase
// discriminator, insensitive to a 180-degree navigation-bit-induced phase
// flip.
func costasDiscriminator(prompt complex128) float64 {
	i, q := real(prompt), imag(prompt)
	if i == 0 && q == 0 {
		return 0
	}
	return math.Atan(q/i) / (2 * math.Pi)
}

// fllDiscriminator is the standard atan2 cross/dot frequency discriminator
// between consecutive prompt correlations.
func fllDiscriminator(prev, cur complex128, dtS float64) float64 {
	cross := imag(cur)*real(prev) - real(cur)*imag(prev)
	dot := real(cur)*real(prev) + imag(cur)*imag(prev)
	if cross == 0 && dot == 0 {
		return 0
	}
	if dtS <= 0 {
		return 0
	}
	return math.Atan2(cross, dot) / (2 * math.Pi * dtS)
}

// dllDiscriminator is the normalized non-coherent early-late power
// discriminator.
func dllDiscriminator(early, late complex128) float64 {
	e := math.Hypot(real(early), imag(early))
	l := math.Hypot(real(late), imag(late))
	if e+l == 0 {
		return 0
	}
	return 0.5 * (e - l) / (e + l)
}
