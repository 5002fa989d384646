package telemetry

import (
	"github.com/gnsstrack/core/internal/logging"
	"github.com/gnsstrack/core/internal/track"
)

// StdoutSink logs TrackingState/TrackingIQ messages instead of recording
// history, a lightweight track.Sink for command-line tools that don't need
// the full Hub (grounded on the teacher's StdoutReporter).
type StdoutSink struct {
	logger logging.Logger
}

// NewStdoutSink builds a stdout sink with the provided logger.
func NewStdoutSink(logger logging.Logger) StdoutSink {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutSink{logger: logger.With(logging.Subsystem("telemetry"))}
}

// PublishState implements track.Sink.
func (s StdoutSink) PublishState(msg track.TrackingStateMsg) {
	locked := 0
	for _, c := range msg.Channels {
		if c.State == track.Running {
			locked++
		}
	}
	s.logger.Info("tracking state", logging.Field{Key: "channels", Value: len(msg.Channels)}, logging.Field{Key: "running", Value: locked})
}

// PublishIQ implements track.Sink.
func (s StdoutSink) PublishIQ(msg track.TrackingIQMsg) {
	s.logger.Debug("tracking iq",
		logging.Channel(msg.Channel),
		logging.Field{Key: "sid", Value: msg.SID},
		logging.Field{Key: "prompt_i", Value: msg.Corrs[1].I},
		logging.Field{Key: "prompt_q", Value: msg.Corrs[1].Q},
	)
}
