package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rollcall/internal/attendee"
	"rollcall/internal/domain"
	"rollcall/internal/observe"
	"rollcall/internal/ports"
)

// Recorder turns one recognized utterance into an attendee entry. Live
// capture and batch correction share it so both build identical entries.
type Recorder struct {
	normalizer ports.Normalizer
	store      *attendee.Store
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// NewRecorder appends to store. normalizer and metrics may be nil.
func NewRecorder(normalizer ports.Normalizer, store *attendee.Store, logger *slog.Logger, metrics *observe.Metrics) Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return Recorder{normalizer: normalizer, store: store, logger: logger, metrics: metrics}
}

// Record normalizes and parses raw, then appends it. raw is kept as the
// entry's RawInput. Blank utterances are dropped, and a normalizer that
// fails or rewrites to nothing leaves the recognized text in place.
// source labels the captured metric.
func (r Recorder) Record(raw, source string, at time.Time) (domain.Attendee, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Attendee{}, false
	}

	normalized := raw
	if r.normalizer != nil {
		next, err := r.normalizer.Apply(raw)
		if err != nil {
			r.logger.Warn("normalization failed; parsing recognized text", "error", err)
		} else if strings.TrimSpace(next) != "" {
			normalized = next
		}
	}

	name, phone := attendee.ParseEntry(normalized)
	entry, ok := r.store.Append(raw, name, phone, at)
	if !ok {
		return domain.Attendee{}, false
	}

	r.metrics.RecordCaptured(context.Background(), source)
	r.logger.Debug("attendee captured", "id", entry.ID, "source", source, "has_phone", entry.FormattedPhone != "")
	return entry, true
}
