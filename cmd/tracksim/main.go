// Command tracksim drives a TrackingBank against a simulated NAP correlator
// and exposes its telemetry, so the tracking core can be exercised end to
// end without FPGA hardware. Flag/config layering is grounded on
// cmd/monopulse's persistentConfig-plus-flags pattern; signal handling on
// FengXuebin-gnssgo/app/rtkrcv.go's SIGINT/SIGTERM channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/napdevice"
	"github.com/gnsstrack/core/internal/settings"
	"github.com/gnsstrack/core/internal/telemetry"
	"github.com/gnsstrack/core/internal/track"
)

func main() {
	const configPath = "tracksim.json"

	cfg, err := settings.Load(configPath)
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	cfg, sim, err := parseFlags(os.Args[1:], os.LookupEnv, cfg)
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if err := settings.Save(configPath, cfg); err != nil {
		log.Fatalf("save settings: %v", err)
	}

	stages, err := cfg.Validate()
	if err != nil {
		log.Fatalf("validate settings: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("parse log level: %v", err)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		log.Fatalf("parse log format: %v", err)
	}
	logger := logging.New(level, format, os.Stderr)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel, logger)

	var sink track.Sink
	if sim.webAddr != "" {
		hub := telemetry.NewHub(sim.historyLimit, logger)
		sink = hub
		go telemetry.NewWebServer(sim.webAddr, hub, logger).Start(ctx)
		logger.Info("telemetry web interface", logging.Field{Key: "addr", Value: sim.webAddr})
	} else {
		stdoutSink := telemetry.NewStdoutSink(logger)
		sink = stdoutSink
	}

	device := napdevice.NewSimDevice(cfg.NChannels, sim.seed)
	bank, err := track.NewBank(cfg.NChannels, cfg.MaxSats, device, logger, sink, sim.seed)
	if err != nil {
		log.Fatalf("new bank: %v", err)
	}
	bank.SetLoopParams(stages)

	prns, err := parsePRNs(sim.prns, cfg.NChannels)
	if err != nil {
		log.Fatalf("parse prns: %v", err)
	}
	for ch, prn := range prns {
		if err := bank.Init(ch, prn, sim.carrierOffsetHz, uint64(sim.startSample), sim.cn0InitDBHz); err != nil {
			log.Fatalf("init channel %d (prn %d): %v", ch, prn, err)
		}
		logger.Info("channel acquired", logging.Channel(ch), logging.PRN(prn))
	}

	if err := run(ctx, bank, sim.isrInterval, sim.statePeriod); err != nil && err != context.Canceled {
		log.Fatalf("run: %v", err)
	}
}

// run drives the ISR loop (FetchCorrelations + Update per channel, every
// tick) and the independent, slower TrackingState publish cadence (spec.md
// 9: PublishState runs on whatever cadence the caller chooses).
func run(ctx context.Context, bank *track.Bank, isrInterval, statePeriod time.Duration) error {
	isrTicker := time.NewTicker(isrInterval)
	defer isrTicker.Stop()
	stateTicker := time.NewTicker(statePeriod)
	defer stateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-isrTicker.C:
			for ch := 0; ch < bank.NChannels(); ch++ {
				if err := bank.FetchCorrelations(ch); err != nil {
					return fmt.Errorf("fetch correlations channel %d: %w", ch, err)
				}
				if err := bank.Update(ch); err != nil {
					return fmt.Errorf("update channel %d: %w", ch, err)
				}
			}
		case <-stateTicker.C:
			bank.PublishState()
		}
	}
}

func waitForSignal(cancel context.CancelFunc, logger logging.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
	cancel()
}

// simFlags holds the simulation-only knobs that have no place in the
// persisted tracking-core settings.Settings (web address, acquisition
// stimulus, timing).
type simFlags struct {
	webAddr         string
	historyLimit    int
	prns            string
	carrierOffsetHz float64
	startSample     int64
	cn0InitDBHz     float64
	isrInterval     time.Duration
	statePeriod     time.Duration
	seed            int64
}

func parseFlags(args []string, lookup func(string) (string, bool), defaults settings.Settings) (settings.Settings, simFlags, error) {
	cfg := defaults
	var sim simFlags

	fs := flag.NewFlagSet("tracksim", flag.ContinueOnError)
	fs.IntVar(&cfg.NChannels, "n-channels", envInt(lookup, "TRACKSIM_N_CHANNELS", defaults.NChannels), "number of hardware tracking channels")
	fs.IntVar(&cfg.MaxSats, "max-sats", envInt(lookup, "TRACKSIM_MAX_SATS", defaults.MaxSats), "size of the PRN-indexed lock-counter table")
	fs.StringVar(&cfg.LoopParamsSpec, "loop-params", envString(lookup, "TRACKSIM_LOOP_PARAMS", defaults.LoopParamsSpec), "loop_params setting spec (see loopparams grammar)")
	fs.StringVar(&cfg.LogLevel, "log-level", envString(lookup, "TRACKSIM_LOG_LEVEL", defaults.LogLevel), "log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", envString(lookup, "TRACKSIM_LOG_FORMAT", defaults.LogFormat), "log format (text|json)")

	fs.StringVar(&sim.webAddr, "web-addr", envString(lookup, "TRACKSIM_WEB_ADDR", ":8080"), "telemetry web listen address; empty disables it in favor of stdout")
	fs.IntVar(&sim.historyLimit, "history-limit", envInt(lookup, "TRACKSIM_HISTORY_LIMIT", 500), "max telemetry samples retained in the hub")
	fs.StringVar(&sim.prns, "prns", envString(lookup, "TRACKSIM_PRNS", "1,7,11,22"), "comma-separated PRNs to acquire, one per channel (up to n-channels)")
	fs.Float64Var(&sim.carrierOffsetHz, "carrier-offset-hz", envFloat(lookup, "TRACKSIM_CARRIER_OFFSET_HZ", 1500), "simulated acquisition carrier frequency offset, Hz")
	fs.Int64Var(&sim.startSample, "start-sample", int64(envInt(lookup, "TRACKSIM_START_SAMPLE", 16000)), "simulated acquisition start_sample_count")
	fs.Float64Var(&sim.cn0InitDBHz, "cn0-init-dbhz", envFloat(lookup, "TRACKSIM_CN0_INIT_DBHZ", 40), "seed C/N0 estimate at acquisition, dB-Hz")
	fs.DurationVar(&sim.isrInterval, "isr-interval", envDuration(lookup, "TRACKSIM_ISR_INTERVAL", time.Millisecond), "simulated 1ms-ISR tick interval")
	fs.DurationVar(&sim.statePeriod, "state-period", envDuration(lookup, "TRACKSIM_STATE_PERIOD", time.Second), "TrackingState publish cadence")
	fs.Int64Var(&sim.seed, "seed", int64(envInt(lookup, "TRACKSIM_SEED", 1)), "RNG seed for the simulated device and lock-counter table")

	if err := fs.Parse(args); err != nil {
		return settings.Settings{}, simFlags{}, err
	}
	return cfg, sim, nil
}

// parsePRNs decodes the comma-separated -prns flag into a per-channel PRN
// slice, truncated to nChannels but not padded; a channel with no assigned
// PRN (fewer entries than channels) is left out of Init and stays disabled.
func parsePRNs(spec string, nChannels int) ([]int, error) {
	var prns []int
	for _, f := range strings.Split(spec, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("prns: invalid PRN %q: %w", f, err)
		}
		prns = append(prns, v)
	}
	if len(prns) > nChannels {
		prns = prns[:nChannels]
	}
	return prns, nil
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
