package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/track"
)

func newTestHub() *Hub {
	return NewHub(10, logging.New(logging.Debug, logging.Text, io.Discard))
}

func TestPublishStateRecordsHistory(t *testing.T) {
	hub := newTestHub()
	hub.PublishState(track.TrackingStateMsg{Channels: []track.ChannelStateMsg{
		{State: track.Running, SID: 5, CN0: 42.5},
		{State: track.Disabled, SID: 0, CN0: -1},
	}})

	history := hub.StateHistory()
	if len(history) != 1 {
		t.Fatalf("expected 1 state sample, got %d", len(history))
	}
	if len(history[0].Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(history[0].Channels))
	}
	if history[0].Channels[0].CN0 != 42.5 {
		t.Fatalf("channel 0 cn0 = %v, want 42.5", history[0].Channels[0].CN0)
	}
}

func TestPublishStateCapsHistoryAtLimit(t *testing.T) {
	hub := NewHub(2, nil)
	for i := 0; i < 5; i++ {
		hub.PublishState(track.TrackingStateMsg{})
	}
	if len(hub.StateHistory()) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hub.StateHistory()))
	}
}

func TestPublishIQRecordsHistory(t *testing.T) {
	hub := newTestHub()
	hub.PublishIQ(track.TrackingIQMsg{Channel: 3, SID: 9, Corrs: [3]track.Correlation{{I: 1, Q: 2}, {I: 3, Q: 4}, {I: 5, Q: 6}}})

	history := hub.IQHistory()
	if len(history) != 1 {
		t.Fatalf("expected 1 iq sample, got %d", len(history))
	}
	if history[0].Channel != 3 || history[0].SID != 9 {
		t.Fatalf("unexpected iq sample: %+v", history[0])
	}
}

func TestSubscribeStateReceivesLiveUpdates(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.SubscribeState()
	defer cancel()

	hub.PublishState(track.TrackingStateMsg{Channels: []track.ChannelStateMsg{{SID: 1}}})

	select {
	case sample := <-ch:
		if len(sample.Channels) != 1 {
			t.Fatalf("unexpected sample: %+v", sample)
		}
	default:
		t.Fatal("expected a buffered update on the subscriber channel")
	}
}

func TestHandleStateHistoryReturnsJSON(t *testing.T) {
	hub := newTestHub()
	hub.PublishState(track.TrackingStateMsg{Channels: []track.ChannelStateMsg{{SID: 1, CN0: 40}}})

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/state/history", nil)
	rr := httptest.NewRecorder()
	hub.handleStateHistory(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp []TrackingState
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp))
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	hub := newTestHub()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	hub.handleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
}

func TestHandleHealthMethodNotAllowed(t *testing.T) {
	hub := newTestHub()
	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rr := httptest.NewRecorder()
	hub.handleHealth(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
