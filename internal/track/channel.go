package track

import (
	"math"

	"github.com/gnsstrack/core/internal/alias"
	"github.com/gnsstrack/core/internal/cn0"
	"github.com/gnsstrack/core/internal/fixedpoint"
	"github.com/gnsstrack/core/internal/loopfilter"
	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/loopparams"
	"github.com/gnsstrack/core/internal/napdevice"
	"github.com/gnsstrack/core/internal/navbitsync"
)

// channel is one TrackingChannel's mutable state (spec.md 3). It is
// addressed only through TrackingBank: the bank owns the fixed-size channel
// table and the process-wide collaborators (device, logger, sink,
// lock-counter table) every channel needs.
type channel struct {
	id    int
	prn   int
	state State
	stage Stage

	intMs      int
	shortCycle bool

	sampleCount     uint64
	updateCount     uint64
	modeChangeCount uint64

	towMs int

	codePhaseEarly fixedpoint.CodePhase
	carrierPhase   fixedpoint.CarrierPhase

	carrFreqFp, carrFreqFpPrev int32
	codeRateFp, codeRateFpPrev int32

	loop     loopfilter.LoopFilter
	cn0Est   cn0.Estimator
	cn0      float64
	aliasDet alias.Detector
	nav      *navbitsync.BitSync

	cs              [3]napdevice.Correlation
	corrSampleCount uint64

	outputIQ    bool
	lockCounter uint16

	stats Stats

	logger logging.Logger
}

// advanceTime is spec.md 4.1.2 step 1: propagate sample_count, code_phase,
// and carrier_phase by the samples consumed in the integration that just
// closed, then shift the *_fp_prev pipeline registers.
func (c *channel) advanceTime() {
	c.sampleCount += c.corrSampleCount
	c.codePhaseEarly = fixedpoint.AdvanceCodePhase(c.codePhaseEarly, c.codeRateFpPrev, c.corrSampleCount)
	c.carrierPhase = fixedpoint.AdvanceCarrierPhase(c.carrierPhase, c.carrFreqFpPrev, c.corrSampleCount)
	if c.updateCount == 0 {
		// First integration after Init: take one sample's worth of
		// carrier advance (one carr_freq_fp_prev) back out.
		c.carrierPhase -= fixedpoint.CarrierPhase(c.carrFreqFpPrev)
	}
	c.codeRateFpPrev = c.codeRateFp
	c.carrFreqFpPrev = c.carrFreqFp
}

// tickTOW is spec.md 4.1.2 step 2: advance tow_ms by the elapsed ms, using
// the pre-toggle short_cycle value (fetch_correlations already consumed it
// this interrupt).
func (c *channel) tickTOW() {
	if c.towMs == InvalidTOW {
		return
	}
	delta := c.intMs - 1
	if c.shortCycle {
		delta = 1
	}
	c.towMs = (c.towMs + delta) % WeekMs
}

// toggleShortCycleAndCheckDefer is spec.md 4.1.2 step 3: for a long
// (int_ms > 1) integration, toggle short_cycle and report whether the
// caller should write the unchanged NCO words back and defer the rest of
// update to the next interrupt ("loop filter runs only at end of long
// half").
func (c *channel) toggleShortCycleAndCheckDefer() bool {
	if c.intMs <= 1 {
		return false
	}
	c.shortCycle = !c.shortCycle
	return !c.shortCycle
}

// runNavBitSync is spec.md 4.1.2 step 5.
func (c *channel) runNavBitSync() {
	candidate := c.nav.Update(c.cs[1].I, c.intMs)
	if candidate <= 0 || candidate == c.towMs {
		return
	}
	if c.towMs != InvalidTOW {
		c.stats.TOWMismatches++
		c.logger.Error("tow mismatch",
			logging.Field{Key: "have_ms", Value: c.towMs},
			logging.Field{Key: "candidate_ms", Value: candidate},
		)
	}
	c.towMs = candidate
}

// updateCN0 is spec.md 4.1.2 step 6.
func (c *channel) updateCN0() {
	n := float64(c.intMs)
	c.cn0Est.Update(float64(c.cs[1].I)/n, float64(c.cs[1].Q)/n)
	c.cn0 = c.cn0Est.CN0()
}

// runLoopFilter is spec.md 4.1.2 step 7: reorder (E,P,L) to (L,P,E), run the
// aided loop filter, and convert the outputs to device NCO words.
func (c *channel) runLoopFilter() {
	corr := loopfilter.Correlations{
		Late:   complex(float64(c.cs[2].I), float64(c.cs[2].Q)),
		Prompt: complex(float64(c.cs[1].I), float64(c.cs[1].Q)),
		Early:  complex(float64(c.cs[0].I), float64(c.cs[0].Q)),
	}
	carrFreq, codeFreq := c.loop.Update(corr)
	c.carrFreqFp = fixedpoint.NCOCarrierWord(carrFreq)
	c.codeRateFp = fixedpoint.NCOCodeRateWord(codeFreq + fixedpoint.GPSCAChippingRate)
}

// checkFalseLock is spec.md 4.1.2 step 9, only meaningful for int_ms > 1.
func (c *channel) checkFalseLock() {
	if c.intMs <= 1 {
		return
	}
	denom := float64(c.intMs - 1)
	firstI, firstQ := c.aliasDet.FirstIQ()
	secondI := (float64(c.cs[1].I) - firstI) / denom
	secondQ := (float64(c.cs[1].Q) - firstQ) / denom
	errHz := c.aliasDet.Second(secondI, secondQ)

	threshold := 250.0 / float64(c.intMs)
	if math.Abs(errHz) <= threshold {
		return
	}
	c.stats.FalseLockCorrections++
	c.modeChangeCount = c.updateCount
	c.loop.AddCarrFreq(errHz)
	c.logger.Warn("false phase lock corrected",
		logging.Field{Key: "error_hz", Value: errHz},
		logging.Field{Key: "threshold_hz", Value: threshold},
	)
}

// maybeTransitionStage is spec.md 4.1.2 step 10: S0_BitSync -> S1_Long once
// bit-sync has locked the nav-bit boundary.
func (c *channel) maybeTransitionStage(stage1 loopparams.Stage) {
	if c.stage != StageBitSync || c.intMs != 1 {
		return
	}
	if c.nav.BitPhaseRef() < 0 || c.nav.BitPhase() != c.nav.BitPhaseRef() {
		return
	}

	c.stage = StageLong
	c.intMs = stage1.CoherentMs
	c.shortCycle = true
	c.modeChangeCount = c.updateCount
	c.stats.StageTransitions++

	c.cn0Est.Init(c.cn0, float64(c.intMs)/1000.0)
	c.aliasDet.Reset()
	c.aliasDet.SetHalfPeriod(float64(c.intMs-1) / 2000.0)

	loopFreqHz := 1000.0 / float64(c.intMs)
	c.loop.Retune(loopFreqHz,
		stage1.CodeBW, stage1.CodeZeta, stage1.CodeK, stage1.CarrToCode,
		stage1.CarrBW, stage1.CarrZeta, stage1.CarrK, stage1.CarrFLLAidGain)

	c.logger.Info("bit sync achieved; transitioning to long coherent stage",
		logging.Field{Key: "int_ms", Value: c.intMs},
	)
}

// lengthCode computes the NAP_TRACK_UPDATE length_code field: zero for a
// 1ms integration, otherwise int_ms-2 (spec.md 4.1.2 step 11 / 6).
func (c *channel) lengthCode() int {
	if c.intMs == 1 {
		return 0
	}
	return c.intMs - 2
}
