package track

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/gnsstrack/core/internal/alias"
	"github.com/gnsstrack/core/internal/fixedpoint"
	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/loopparams"
	"github.com/gnsstrack/core/internal/napdevice"
	"github.com/gnsstrack/core/internal/navbitsync"
)

// Bank is TrackingBank (spec.md 3): the process-wide channel table, the
// lock-counter table, and the live loop-parameter pair, composed with the
// CorrelatorDevice and TelemetrySink collaborators. Decomposed the way the
// teacher's internal/app.TrackManager decomposes Update into small private
// step helpers around one public entry point, generalized here from a
// single Update method into the per-channel helpers in channel.go plus the
// pipelining/collaborator-wiring glue in this file.
type Bank struct {
	channels []channel

	lockMu       sync.Mutex // guards lockCounters; increments must be atomic per spec.md 5
	lockCounters []uint16

	paramsMu   sync.RWMutex
	loopParams [2]loopparams.Stage

	device napdevice.Device
	logger logging.Logger
	sink   Sink
}

// NewBank constructs a TrackingBank with nChannels hardware channels and a
// lock-counter table sized for maxSats (spec.md 6 N_CHANNELS/MAX_SATS).
// lockCounterSeed seeds the table's random boot values (spec.md 3); pass a
// fixed seed for reproducible tests and a time-derived one in production.
func NewBank(nChannels, maxSats int, device napdevice.Device, logger logging.Logger, sink Sink, lockCounterSeed int64) (*Bank, error) {
	if nChannels <= 0 {
		return nil, fmt.Errorf("track: n_channels must be positive, got %d", nChannels)
	}
	if maxSats <= 0 {
		return nil, fmt.Errorf("track: max_sats must be positive, got %d", maxSats)
	}
	if logger == nil {
		logger = logging.Default()
	}
	b := &Bank{
		channels:     make([]channel, nChannels),
		lockCounters: make([]uint16, maxSats),
		loopParams:   [2]loopparams.Stage{},
		device:       device,
		logger:       logger.With(logging.Subsystem("track")),
		sink:         sink,
	}
	for i := range b.channels {
		b.channels[i].id = i
		b.channels[i].towMs = InvalidTOW
		b.channels[i].state = Disabled
	}
	// Seed the PRN-indexed lock-counter table with random values at boot
	// (spec.md 3), so a freshly-booted receiver can't be mistaken for one
	// that has been continuously tracking since lock_counter = 0.
	seed := rand.New(rand.NewSource(lockCounterSeed))
	for i := range b.lockCounters {
		b.lockCounters[i] = uint16(seed.Intn(1 << 16))
	}
	return b, nil
}

// SetLoopParams installs the live loop-parameter pair used by future
// Init/stage-transition calls (spec.md 4.4: swapped atomically; already-
// running channels keep their current coefficients until their own next
// transition or re-Init).
func (b *Bank) SetLoopParams(stages [2]loopparams.Stage) {
	b.paramsMu.Lock()
	b.loopParams = stages
	b.paramsMu.Unlock()
}

func (b *Bank) liveLoopParams() [2]loopparams.Stage {
	b.paramsMu.RLock()
	defer b.paramsMu.RUnlock()
	return b.loopParams
}

func (b *Bank) channelAt(id int) (*channel, error) {
	if id < 0 || id >= len(b.channels) {
		return nil, fmt.Errorf("track: channel %d out of range [0,%d)", id, len(b.channels))
	}
	return &b.channels[id], nil
}

func (b *Bank) checkPRN(prn int) error {
	if prn < 0 || prn >= len(b.lockCounters) {
		return fmt.Errorf("track: prn %d out of range [0,%d)", prn, len(b.lockCounters))
	}
	return nil
}

// Init hands a freshly-acquired signal off to channelID (spec.md 4.1.2,
// "init"). It programs the correlator's code generator, seeds its phase
// accumulators at codePhase=0/carrierPhase=0, and schedules the first
// timing strobe half a chip before startSampleCount so the channel aligns
// to the early rollover instead of the prompt rollover.
func (b *Bank) Init(channelID, prn int, carrierFreqHz float64, startSampleCount uint64, cn0InitDBHz float64) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	if err := b.checkPRN(prn); err != nil {
		return err
	}
	if ch.state == Running {
		return fmt.Errorf("track: channel %d already running; disable before re-init", channelID)
	}

	stages := b.liveLoopParams()
	stage0 := stages[0]

	alignedStart := startSampleCount
	if alignedStart >= halfChipOffsetSamples {
		alignedStart -= halfChipOffsetSamples
	}

	ch.prn = prn
	ch.state = Running
	ch.stage = StageBitSync
	ch.intMs = 1
	ch.shortCycle = false
	ch.sampleCount = alignedStart
	ch.updateCount = 0
	ch.modeChangeCount = 0
	ch.towMs = InvalidTOW
	ch.codePhaseEarly = 0
	ch.carrierPhase = 0
	ch.cs = [3]napdevice.Correlation{}
	ch.corrSampleCount = 0
	ch.outputIQ = false
	ch.stats = Stats{}
	ch.nav = navbitsync.New()
	ch.aliasDet = alias.Detector{}
	ch.logger = b.logger.With(logging.Channel(channelID), logging.PRN(prn))

	ch.loop.Init(1000.0/float64(ch.intMs), 0,
		stage0.CodeBW, stage0.CodeZeta, stage0.CodeK, stage0.CarrToCode,
		carrierFreqHz, stage0.CarrBW, stage0.CarrZeta, stage0.CarrK, stage0.CarrFLLAidGain)

	ch.carrFreqFp = fixedpoint.NCOCarrierWord(carrierFreqHz)
	ch.carrFreqFpPrev = ch.carrFreqFp
	ch.codeRateFp = fixedpoint.NominalNCORate()
	ch.codeRateFpPrev = ch.codeRateFp

	ch.cn0Est.Init(cn0InitDBHz, float64(ch.intMs)/1000.0)
	ch.cn0 = cn0InitDBHz

	if err := b.device.CodeWrite(channelID, prn); err != nil {
		return err
	}
	if err := b.device.InitWrite(channelID, prn, uint64(ch.codePhaseEarly), int64(ch.carrierPhase)); err != nil {
		return err
	}
	if err := b.programCorrelator(ch); err != nil {
		return err
	}
	if err := b.device.TimingStrobe(alignedStart); err != nil {
		return err
	}

	ch.lockCounter = b.bumpLockCounter(prn)

	return nil
}

// bumpLockCounter atomically (via mutex) increments lock_counters[prn] mod
// 2^16 and returns the new value (spec.md 3, 5, 8).
func (b *Bank) bumpLockCounter(prn int) uint16 {
	b.lockMu.Lock()
	defer b.lockMu.Unlock()
	b.lockCounters[prn]++
	return b.lockCounters[prn]
}

// FetchCorrelations is the strictly-first half of one ISR (spec.md 4.1.2:
// "fetch_correlations strictly precedes update in the same interrupt"). It
// pulls the correlator's [E,P,L] dump and either accumulates it into the
// running coherent sum (the long half of a long integration) or starts a
// fresh sum (the short half, or any 1ms integration).
func (b *Bank) FetchCorrelations(channelID int) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	if ch.state == Disabled {
		return nil
	}

	sampleCount, corrs, err := b.device.CorrRead(channelID)
	if err != nil {
		return err
	}
	ch.corrSampleCount = sampleCount

	if ch.intMs > 1 && !ch.shortCycle {
		for i := range ch.cs {
			ch.cs[i].I += corrs[i].I
			ch.cs[i].Q += corrs[i].Q
		}
		return nil
	}

	ch.cs = corrs
	ch.aliasDet.First(corrs[1].I, corrs[1].Q)
	return nil
}

// Update is the second half of one ISR: spec.md 4.1.2's eleven-step
// algorithm, decomposed into the private helpers on channel plus the
// collaborator calls (device writes, telemetry) only Bank can make.
func (b *Bank) Update(channelID int) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	if ch.state == Disabled {
		b.logger.Debug("update on disabled channel ignored", logging.Channel(channelID))
		return nil
	}

	ch.advanceTime()
	ch.tickTOW()

	if ch.toggleShortCycleAndCheckDefer() {
		return b.programCorrelator(ch)
	}

	ch.updateCount += uint64(ch.intMs)
	ch.runNavBitSync()
	ch.updateCN0()
	ch.runLoopFilter()

	if b.sink != nil && ch.outputIQ && ch.intMs > 1 {
		b.sink.PublishIQ(TrackingIQMsg{Channel: channelID, SID: SID(ch.prn), Corrs: [3]Correlation{
			{I: ch.cs[0].I, Q: ch.cs[0].Q},
			{I: ch.cs[1].I, Q: ch.cs[1].Q},
			{I: ch.cs[2].I, Q: ch.cs[2].Q},
		}})
	}

	ch.checkFalseLock()
	ch.maybeTransitionStage(b.liveLoopParams()[1])

	return b.programCorrelator(ch)
}

func (b *Bank) programCorrelator(ch *channel) error {
	return b.device.UpdateWrite(ch.id, ch.carrFreqFp, ch.codeRateFp, ch.lengthCode(), 0)
}

// Disable takes channelID out of service: it zeros the NCO words (silencing
// the hardware channel) and clears the coherent-sum accumulator so a
// pending ISR can't smear a disabled channel's next Init.
func (b *Bank) Disable(channelID int) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	if err := b.device.UpdateWrite(channelID, 0, 0, 0, 0); err != nil {
		return err
	}
	ch.state = Disabled
	ch.cs = [3]napdevice.Correlation{}
	ch.corrSampleCount = 0
	return nil
}

// MarkAmbiguous flags channelID's bit polarity as unresolved (e.g. after a
// suspected cycle slip) and advances its PRN's lock counter (spec.md 4.1,
// 5: "The lock-counter table is written by mark_ambiguous... increments
// must be atomic").
func (b *Bank) MarkAmbiguous(channelID int) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	ch.nav.SetPolarityUnknown()
	ch.lockCounter = b.bumpLockCounter(ch.prn)
	return nil
}

// SetOutputIQ toggles per-channel IQ telemetry emission (spec.md 3, the
// Telemetry.output_iq field).
func (b *Bank) SetOutputIQ(channelID int, enabled bool) error {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return err
	}
	ch.outputIQ = enabled
	return nil
}

// Drop is a testing aid (spec.md 4.1 Non-goals call out mark_ambiguous/drop
// as test-only entry points): it perturbs PRN's carrier-loop state hard
// enough to destroy lock, for exercising the false-lock/reacquisition path.
func (b *Bank) Drop(prn int) {
	for i := range b.channels {
		ch := &b.channels[i]
		if ch.state == Running && ch.prn == prn {
			ch.loop.AddCarrFreq(5000)
			return
		}
	}
}

// SNR returns channelID's current C/N0 estimate in dBHz.
func (b *Bank) SNR(channelID int) (float32, error) {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return 0, err
	}
	return float32(ch.cn0), nil
}

// Stats returns an operational-visibility snapshot for channelID.
func (b *Bank) Stats(channelID int) (Stats, error) {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return Stats{}, err
	}
	return ch.stats, nil
}

// ExportMeasurement snapshots channelID's tracking state for the
// navigation pipeline (spec.md 4.1.3).
func (b *Bank) ExportMeasurement(channelID int) (Measurement, error) {
	ch, err := b.channelAt(channelID)
	if err != nil {
		return Measurement{}, err
	}

	codePhaseChips := float64(ch.codePhaseEarly) / fixedpoint.CodePhaseUnitsPerChip
	carrierCycles := float64(ch.carrierPhase) / fixedpoint.CarrierPhaseUnitsPerCycle
	carrierCycles += bitPolarityOffset(ch.nav.Polarity())

	return Measurement{
		PRN:                ch.prn,
		SID:                SID(ch.prn),
		LockCounter:        ch.lockCounter,
		CodePhaseChips:     codePhaseChips,
		CodePhaseRateHz:    ch.loop.CodeFreq() + fixedpoint.GPSCAChippingRate,
		CarrierFreqHz:      ch.loop.CarrFreq(),
		CarrierPhaseCycles: carrierCycles,
		TOWMs:              ch.towMs,
		ReceiverTimeS:      float64(ch.sampleCount) / SampleFreqHz,
		SNRDbHz:            float32(ch.cn0),
	}, nil
}

// PublishState emits the always-on TrackingState summary across every
// channel in the bank (spec.md 9). It is a foreground operation, run on
// whatever cadence the caller (e.g. cmd/tracksim's telemetry loop) chooses,
// independent of the per-channel ISR cadence.
func (b *Bank) PublishState() {
	if b.sink == nil {
		return
	}
	msg := TrackingStateMsg{Channels: make([]ChannelStateMsg, len(b.channels))}
	for i := range b.channels {
		ch := &b.channels[i]
		cn0 := -1.0
		if ch.state == Running {
			cn0 = ch.cn0
		}
		msg.Channels[i] = ChannelStateMsg{State: ch.state, SID: SID(ch.prn), CN0: cn0}
	}
	b.sink.PublishState(msg)
}

// NChannels returns the number of hardware channels in the bank.
func (b *Bank) NChannels() int { return len(b.channels) }
