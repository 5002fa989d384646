// Package track implements the per-channel GPS L1 C/A code/carrier tracking
// core: TrackingChannel and TrackingBank (spec.md 3, 4.1). It is the top of
// the dependency order named in spec.md 2 (FixedPointPhase -> LoopFilter ->
// CN0Estimator/AliasDetector/NavBitSync -> TrackingChannel -> TrackingBank),
// decomposed the way the teacher's internal/app.TrackManager decomposes
// Update into small private helpers (expire/markMisses/recordDetection/
// updateLifecycle) around one public entry point.
package track

import "github.com/gnsstrack/core/internal/navbitsync"

// State is a channel's lifecycle state (spec.md 3).
type State int

const (
	Disabled State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "disabled"
}

// Stage is a channel's tracking stage (spec.md 3).
type Stage int

const (
	StageBitSync Stage = iota // S0
	StageLong                 // S1
)

func (s Stage) String() string {
	if s == StageLong {
		return "S1_long"
	}
	return "S0_bitsync"
}

// InvalidTOW is the sentinel tow_ms value meaning "unknown" (spec.md 3).
// It is distinct from the valid TOW value 0 (spec.md 9, open question:
// tow_ms == 0 is a valid, not a sentinel, value).
const InvalidTOW = -1

// WeekMs is the number of milliseconds in one GPS week, the modulus tow_ms
// is reduced by.
const WeekMs = 7 * 24 * 3600 * 1000

// SampleFreqHz is the NAP ADC sample rate (spec.md 6, SAMPLE_FREQ), chosen
// so that samples-per-chip is exactly 16 (SampleFreqHz / GPSCAChippingRate).
const SampleFreqHz = 16.368e6

// halfChipOffsetSamples is half of one early-late correlator spacing, in
// samples, used to align a freshly-handed-off channel to the early
// rollover instead of the prompt rollover (spec.md 4.1 Init precondition).
// With 16 samples/chip and a 1-chip early-late spacing, half a chip is 8
// samples (spec.md 8 scenario 1: start_sample=16000 -> timing_strobe(16000-8)).
const halfChipOffsetSamples = 8

// Correlation is one complex correlator tap (I, Q).
type Correlation struct {
	I, Q int32
}

// SID remaps a zero-based PRN to the wire "signal id". Currently identity
// (spec.md 9 design notes): a future multi-constellation remap has exactly
// one call site to change.
func SID(prn int) int { return prn }

// Measurement is the snapshot exported for the navigation pipeline
// (spec.md 4.1.3).
type Measurement struct {
	PRN         int
	SID         int
	LockCounter uint16

	CodePhaseChips     float64
	CodePhaseRateHz    float64
	CarrierFreqHz      float64
	CarrierPhaseCycles float64

	TOWMs int

	ReceiverTimeS float64
	SNRDbHz       float32
}

// Stats is an operational-visibility snapshot for one channel, grounded on
// the teacher's telemetry.ProcessMetrics/Diagnostics pattern. It is not
// named by spec.md; it supplements it (SPEC_FULL.md, "track" module).
type Stats struct {
	TOWMismatches        uint32
	FalseLockCorrections uint32
	StageTransitions     uint32
}

// ChannelStateMsg is one channel's entry in a TrackingState message
// (spec.md 9: "for each of N channels, a record {state, sid, cn0}").
type ChannelStateMsg struct {
	State State
	SID   int
	CN0   float64 // -1 when the channel is not Running
}

// TrackingStateMsg is the always-emitted, fixed-shape state summary across
// a bank's channels (spec.md 9).
type TrackingStateMsg struct {
	Channels []ChannelStateMsg
}

// TrackingIQMsg is the optional per-channel correlator dump emitted when
// output_iq && int_ms > 1 (spec.md 4.1.2 step 8, 9).
type TrackingIQMsg struct {
	Channel int
	SID     int
	Corrs   [3]Correlation
}

// Sink is the TelemetrySink collaborator (spec.md 9): the wire-level
// telemetry transport, out of scope for this module beyond this contract.
type Sink interface {
	PublishState(TrackingStateMsg)
	PublishIQ(TrackingIQMsg)
}

// bitPolarityOffset returns the 0.5-cycle ambiguity correction applied to
// carrier_phase_cycles when the decoded bit polarity is inverted
// (spec.md 4.1.3).
func bitPolarityOffset(p navbitsync.Polarity) float64 {
	if p == navbitsync.PolarityInverted {
		return 0.5
	}
	return 0
}
