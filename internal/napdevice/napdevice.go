// Package napdevice defines the CorrelatorDevice collaborator contract
// (spec.md 6, "the hardware register peripheral... abstracted as a
// CorrelatorDevice") and a concrete in-memory SimDevice used by tests and
// the demo CLI. The interface shape and mutex-guarded register writes are
// grounded on internal/sdr.SDR and internal/sdr.PlutoSDR; register-write
// retry is grounded on the hand-rolled backoff loop in iiod/connect.go's
// reconnect(), replaced here with the real github.com/cenkalti/backoff
// library the module already depended on transitively.
package napdevice

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Correlation is one complex correlator tap (I, Q).
type Correlation struct {
	I, Q int32
}

// Device is the set of NAP register operations a TrackingChannel depends
// on (spec.md 6).
type Device interface {
	// CodeWrite programs the C/A code generator for channel to prn.
	CodeWrite(channel, prn int) error
	// InitWrite seeds channel's code and carrier phase accumulators.
	InitWrite(channel, prn int, codePhase uint64, carrierPhase int64) error
	// UpdateWrite programs the NCO words and long-integration length that
	// take effect one integration ahead (spec.md 5, "pipelined writes").
	UpdateWrite(channel int, carrFreqFp, codeRateFp int32, lengthCode int, flags uint8) error
	// CorrRead returns the sample count consumed and the [E,P,L]
	// correlator taps for the integration that just closed.
	CorrRead(channel int) (sampleCount uint64, corrs [3]Correlation, err error)
	// TimingStrobe schedules a future correlator start at sampleCount.
	TimingStrobe(sampleCount uint64) error
}

// WriteFailureInjector lets tests simulate transient register-write
// failures without touching the retry policy itself.
type WriteFailureInjector func(op string, channel int) error

// SimDevice is an in-memory NAP simulation: it tracks per-channel register
// state and synthesizes correlator outputs, so the tracking core can be
// driven end to end without real FPGA hardware.
type SimDevice struct {
	mu sync.Mutex

	nChannels int
	chans     []simChannelState

	inject WriteFailureInjector
	rng    *rand.Rand
}

type simChannelState struct {
	enabled      bool
	prn          int
	codePhase    uint64
	carrierPhase int64
	carrFreqFp   int32
	codeRateFp   int32
	lengthCode   int
	flags        uint8
	sampleCount  uint64
}

// NewSimDevice constructs a simulated NAP with nChannels hardware channels.
func NewSimDevice(nChannels int, seed int64) *SimDevice {
	return &SimDevice{
		nChannels: nChannels,
		chans:     make([]simChannelState, nChannels),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// SetFailureInjector installs a hook, consulted on every write attempt, that
// can force register writes to fail, exercising the retry-inside-the-device-layer path spec.md 7
// describes ("Correlator write failure | device layer | not surfaced to
// core; device layer retries internally").
func (d *SimDevice) SetFailureInjector(f WriteFailureInjector) {
	d.mu.Lock()
	d.inject = f
	d.mu.Unlock()
}

func (d *SimDevice) retryWrite(op string, channel int, fn func() error) error {
	operation := func() error {
		d.mu.Lock()
		injector := d.inject
		d.mu.Unlock()
		if injector != nil {
			if err := injector(op, channel); err != nil {
				return err
			}
		}
		return fn()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Microsecond
	b.MaxElapsedTime = 200 * time.Millisecond
	if err := backoff.Retry(operation, b); err != nil {
		return fmt.Errorf("napdevice: %s on channel %d: %w", op, channel, err)
	}
	return nil
}

func (d *SimDevice) checkChannel(channel int) error {
	if channel < 0 || channel >= d.nChannels {
		return fmt.Errorf("napdevice: channel %d out of range [0,%d)", channel, d.nChannels)
	}
	return nil
}

// CodeWrite implements Device.
func (d *SimDevice) CodeWrite(channel, prn int) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.retryWrite("code_wr", channel, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.chans[channel].prn = prn
		d.chans[channel].enabled = true
		return nil
	})
}

// InitWrite implements Device.
func (d *SimDevice) InitWrite(channel, prn int, codePhase uint64, carrierPhase int64) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.retryWrite("init_wr", channel, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		c := &d.chans[channel]
		c.prn = prn
		c.codePhase = codePhase
		c.carrierPhase = carrierPhase
		c.sampleCount = 0
		return nil
	})
}

// UpdateWrite implements Device.
func (d *SimDevice) UpdateWrite(channel int, carrFreqFp, codeRateFp int32, lengthCode int, flags uint8) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	return d.retryWrite("update_wr", channel, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		c := &d.chans[channel]
		c.carrFreqFp = carrFreqFp
		c.codeRateFp = codeRateFp
		c.lengthCode = lengthCode
		c.flags = flags
		if carrFreqFp == 0 && codeRateFp == 0 {
			c.enabled = false
		}
		return nil
	})
}

// CorrRead implements Device, synthesizing a plausible [E,P,L] correlator
// triple with a prompt-dominant amplitude and Gaussian noise so callers can
// exercise the tracking loop end to end without real RF.
func (d *SimDevice) CorrRead(channel int) (uint64, [3]Correlation, error) {
	if err := d.checkChannel(channel); err != nil {
		return 0, [3]Correlation{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &d.chans[channel]
	if !c.enabled {
		return 0, [3]Correlation{}, nil
	}

	const promptAmp = 1000.0
	const sideAmp = 600.0
	noise := func() int32 { return int32(d.rng.NormFloat64() * 20) }

	samples := uint64(1 + c.lengthCode) * 1000 // ms of integration in samples of 1kHz epoch scale
	c.sampleCount += samples

	corrs := [3]Correlation{
		{I: int32(sideAmp) + noise(), Q: noise()},
		{I: int32(promptAmp) + noise(), Q: noise()},
		{I: int32(sideAmp) + noise(), Q: noise()},
	}
	return samples, corrs, nil
}

// TimingStrobe implements Device.
func (d *SimDevice) TimingStrobe(sampleCount uint64) error {
	return d.retryWrite("timing_strobe", -1, func() error { return nil })
}
