// Package telemetry implements the TrackingBank's TelemetrySink collaborator
// (spec.md 9: "the wire-level telemetry transport... abstracted as
// TelemetrySink"): a concrete Hub that records history, fans messages out to
// subscribers, and serves them over HTTP. The pub/sub-over-buffered-channel
// design, the RWMutex-guarded history ring buffer, and the HTTP handler set
// are carried over from the teacher's internal/telemetry.Hub; the payload
// shapes are generalized from acquisition-angle/SNR samples to the two
// fixed-shape tracking messages spec.md 9 names.
package telemetry

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/track"
)

// ChannelState is one channel's entry in a TrackingState message.
type ChannelState struct {
	Channel int         `json:"channel"`
	State   track.State `json:"state"`
	SID     int         `json:"sid"`
	CN0     float64     `json:"cn0"`
}

// TrackingState is the always-emitted, fixed-shape summary across all of a
// bank's channels (spec.md 9).
type TrackingState struct {
	Timestamp time.Time      `json:"timestamp"`
	Channels  []ChannelState `json:"channels"`
}

// TrackingIQ is the optional per-channel correlator dump (spec.md 9,
// emitted per spec.md 4.1.2 step 8 when output_iq && int_ms > 1).
type TrackingIQ struct {
	Timestamp time.Time          `json:"timestamp"`
	Channel   int                `json:"channel"`
	SID       int                `json:"sid"`
	Corrs     [3]track.Correlation `json:"corrs"`
}

// ProcessMetrics captures runtime state for diagnostics, unchanged from the
// teacher's internal/telemetry.ProcessMetrics.
type ProcessMetrics struct {
	StartTime        time.Time     `json:"startTime"`
	LastUpdated      time.Time     `json:"lastUpdated"`
	Uptime           time.Duration `json:"uptime"`
	MemoryAlloc      uint64        `json:"memoryAllocBytes"`
	MemoryTotalAlloc uint64        `json:"memoryTotalAllocBytes"`
	MemorySys        uint64        `json:"memorySysBytes"`
	NumGoroutine     int           `json:"numGoroutine"`
}

// HealthStatus surfaces overall process health.
type HealthStatus struct {
	Status  string         `json:"status"`
	Process ProcessMetrics `json:"process"`
	Reason  string         `json:"reason,omitempty"`
}

const defaultHistoryLimit = 500

// Hub collects TrackingState/TrackingIQ history and fans updates out to
// subscribers. It implements track.Sink.
type Hub struct {
	mu sync.RWMutex

	stateHistory []TrackingState
	iqHistory    []TrackingIQ
	historyLimit int

	stateSubs map[chan TrackingState]struct{}
	iqSubs    map[chan TrackingIQ]struct{}

	logger    logging.Logger
	startTime time.Time
}

// NewHub builds a telemetry hub with the given history limit (<=0 uses the
// default).
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Hub{
		historyLimit: historyLimit,
		stateSubs:    make(map[chan TrackingState]struct{}),
		iqSubs:       make(map[chan TrackingIQ]struct{}),
		logger:       logger.With(logging.Subsystem("telemetry")),
		startTime:    time.Now(),
	}
}

// PublishState implements track.Sink: records and fans out a TrackingState
// snapshot.
func (h *Hub) PublishState(msg track.TrackingStateMsg) {
	sample := TrackingState{Timestamp: time.Now(), Channels: make([]ChannelState, len(msg.Channels))}
	for i, c := range msg.Channels {
		sample.Channels[i] = ChannelState{Channel: i, State: c.State, SID: c.SID, CN0: c.CN0}
	}

	h.mu.Lock()
	h.stateHistory = append(h.stateHistory, sample)
	if len(h.stateHistory) > h.historyLimit {
		h.stateHistory = h.stateHistory[len(h.stateHistory)-h.historyLimit:]
	}
	for ch := range h.stateSubs {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// PublishIQ implements track.Sink: records and fans out one channel's
// correlator dump.
func (h *Hub) PublishIQ(msg track.TrackingIQMsg) {
	sample := TrackingIQ{Timestamp: time.Now(), Channel: msg.Channel, SID: msg.SID, Corrs: msg.Corrs}

	h.mu.Lock()
	h.iqHistory = append(h.iqHistory, sample)
	if len(h.iqHistory) > h.historyLimit {
		h.iqHistory = h.iqHistory[len(h.iqHistory)-h.historyLimit:]
	}
	for ch := range h.iqSubs {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// StateHistory returns a copy of stored TrackingState samples.
func (h *Hub) StateHistory() []TrackingState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TrackingState, len(h.stateHistory))
	copy(out, h.stateHistory)
	return out
}

// IQHistory returns a copy of stored TrackingIQ samples.
func (h *Hub) IQHistory() []TrackingIQ {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TrackingIQ, len(h.iqHistory))
	copy(out, h.iqHistory)
	return out
}

// SubscribeState registers a listener for live TrackingState updates.
func (h *Hub) SubscribeState() (chan TrackingState, func()) {
	ch := make(chan TrackingState, 16)
	h.mu.Lock()
	h.stateSubs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.stateSubs, ch)
		close(ch)
		h.mu.Unlock()
	}
}

// SubscribeIQ registers a listener for live TrackingIQ updates.
func (h *Hub) SubscribeIQ() (chan TrackingIQ, func()) {
	ch := make(chan TrackingIQ, 16)
	h.mu.Lock()
	h.iqSubs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.iqSubs, ch)
		close(ch)
		h.mu.Unlock()
	}
}

func (h *Hub) collectProcessMetrics() ProcessMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ProcessMetrics{
		StartTime:        h.startTime,
		LastUpdated:      time.Now(),
		Uptime:           time.Since(h.startTime),
		MemoryAlloc:      mem.Alloc,
		MemoryTotalAlloc: mem.TotalAlloc,
		MemorySys:        mem.Sys,
		NumGoroutine:     runtime.NumGoroutine(),
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Hub) handleStateHistory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.StateHistory())
}

func (h *Hub) handleIQHistory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.IQHistory())
}

func (h *Hub) handleLiveState(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.SubscribeState()
	defer cancel()

	for _, sample := range h.StateHistory() {
		writeSSE(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Process: h.collectProcessMetrics()})
}

// RegisterHandlers wires the hub's HTTP endpoints into mux, grounded on
// internal/telemetry's handleHistory/handleLive/handleHealth family.
func (h *Hub) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/tracking/state/history", h.handleStateHistory)
	mux.HandleFunc("/api/tracking/iq/history", h.handleIQHistory)
	mux.HandleFunc("/api/tracking/state/live", h.handleLiveState)
	mux.HandleFunc("/api/health", h.handleHealth)
}
