// Package fixedpoint implements the fixed-point time-base arithmetic shared
// by the tracking loop: code phase in chips, carrier phase in half-cycles,
// and the device NCO word encodings the NAP correlator expects. It has no
// dependency on any other package in this module (it is the leaf of the
// dependency order: FixedPointPhase -> LoopFilter -> ... -> TrackingBank).
package fixedpoint

import "math"

const (
	// CodePhaseFracBits is the number of fractional bits used to represent
	// a chip of C/A code phase: code phase is held as chips*2^32.
	CodePhaseFracBits = 32
	// CarrierPhaseFracBits is the number of fractional bits used to
	// represent a half-cycle of carrier phase: carrier phase is held as
	// half-cycles*2^24.
	CarrierPhaseFracBits = 24

	// CACodeLengthChips is the length of the GPS C/A code, in chips. Code
	// phase rolls over here, not at a power of two.
	CACodeLengthChips = 1023

	// SampleFreqHz is the NAP ADC sample rate; NCO words advance their
	// phase accumulators once per sample.
	SampleFreqHz = 16.368e6

	// CarrierFreqUnitsPerHz converts a carrier frequency in Hz to the
	// NAP_TRACK_CARRIER_FREQ device NCO unit (half-cycles*2^24 per sample).
	CarrierFreqUnitsPerHz = CarrierPhaseUnitsPerCycle / SampleFreqHz
	// CodePhaseRateUnitsPerHz converts a code phase rate in chips/s to the
	// NAP_TRACK_CODE_PHASE_RATE device NCO unit (chips*2^32 per sample).
	CodePhaseRateUnitsPerHz = CodePhaseUnitsPerChip / SampleFreqHz
	// CodePhaseUnitsPerChip converts a code-phase value in chips to the
	// NAP_TRACK_CODE_PHASE device unit.
	CodePhaseUnitsPerChip = float64(int64(1) << CodePhaseFracBits)
	// CarrierPhaseUnitsPerCycle converts a carrier phase value in whole
	// cycles to carrier_phase's half-cycle*2^24 units (two half-cycles per
	// cycle).
	CarrierPhaseUnitsPerCycle = 2 * float64(int64(1)<<CarrierPhaseFracBits)

	// GPSL1Hz is the GPS L1 carrier frequency.
	GPSL1Hz = 1.57542e9
	// GPSCAChippingRate is the nominal C/A code chipping rate, in chips/s.
	GPSCAChippingRate = 1.023e6
)

// CodePhase is the early code-phase accumulator, in chips*2^32, monotone
// non-decreasing between an Init and the next Init (spec.md invariant).
type CodePhase uint64

// AdvanceCodePhase advances a code-phase accumulator by nSamples at the
// given device-unit code rate, widening the product to 64 bits before
// adding so the multiply cannot silently overflow a narrower type.
func AdvanceCodePhase(phase CodePhase, rateFp int32, nSamples uint64) CodePhase {
	delta := uint64(uint32(rateFp)) * nSamples
	return phase + CodePhase(delta)
}

// CarrierPhase is the signed carrier-phase accumulator, in half-cycles*2^24.
type CarrierPhase int64

// AdvanceCarrierPhase advances a (signed) carrier-phase accumulator by
// nSamples at the given device-unit carrier rate. The multiply is done in
// signed 64-bit space to preserve sign through the widening.
func AdvanceCarrierPhase(phase CarrierPhase, rateFp int32, nSamples uint64) CarrierPhase {
	delta := int64(rateFp) * int64(nSamples)
	return phase + CarrierPhase(delta)
}

// NCOCarrierWord converts a carrier frequency in Hz to the signed 32-bit
// NAP carrier NCO word.
func NCOCarrierWord(freqHz float64) int32 {
	return int32(math.Round(freqHz * CarrierFreqUnitsPerHz))
}

// NCOCodeRateWord converts a full code phase rate in chips/s (not the
// code_freq offset) to the signed 32-bit NAP code-phase-rate NCO word.
// Callers compose code_phase_rate = code_freq + GPSCAChippingRate before
// calling this, per spec.md step 7.
func NCOCodeRateWord(codePhaseRateHz float64) int32 {
	return int32(math.Round(codePhaseRateHz * CodePhaseRateUnitsPerHz))
}

// NominalNCORate is the NCO word corresponding to the nominal (zero Doppler)
// C/A chipping rate.
func NominalNCORate() int32 {
	return NCOCodeRateWord(GPSCAChippingRate)
}

// PropagateCodePhase returns the expected early code phase, in chips, after
// nSamples at the current carrier aiding, folded back into [0, 1023) at
// sub-chip (1/16 chip) resolution. Internally this is carried as
// chips*2^32; the public units are chips.
//
// Rollover is intentional at exactly 1023.0 chips, not 1024.0 — the GPS C/A
// code is 1023 chips long, and a naive mod-2^k mask would be wrong.
func PropagateCodePhase(phaseChips float32, carrierFreqHz float64, nSamples int) float32 {
	doppler := carrierFreqHz / GPSL1Hz
	nominalRate := (1 + doppler) * NominalNCORateFloat()

	phaseFp := uint64(float64(phaseChips) * CodePhaseUnitsPerChip)
	phaseFp += uint64(nominalRate) * uint64(nSamples)

	// Fold to sub-chip (1/16 chip) resolution, then to [0, 1023) chips.
	subChips := phaseFp >> 28
	subChips %= CACodeLengthChips * 16
	return float32(subChips) / 16.0
}

// NominalNCORateFloat is the floating-point form of NominalNCORate, used
// internally by PropagateCodePhase to avoid re-rounding through int32.
func NominalNCORateFloat() float64 {
	return GPSCAChippingRate * CodePhaseRateUnitsPerHz
}
