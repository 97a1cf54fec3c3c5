package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Geoprocess names understood by the worker.
const (
	GeoprocessIncomingFile      = "incoming-file-to-cogs"
	GeoprocessSnodasInterpolate = "snodas-interpolate"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// GeoprocessConfig is the payload that accompanies a geoprocess name.
type GeoprocessConfig struct {
	AcquirableSlug string `json:"acquirable_slug,omitempty"`
	Bucket         string `json:"bucket,omitempty"`
	Key            string `json:"key,omitempty"`
	Datetime       string `json:"datetime,omitempty"`
	MaxDistance    int    `json:"max_distance,omitempty"`
}

// GeoprocessMessage is the JSON body of a source topic message.
type GeoprocessMessage struct {
	Geoprocess string           `json:"geoprocess"`
	Config     GeoprocessConfig `json:"geoprocess_config"`
}

// ErrInvalidMessage is returned when a message body cannot be processed.
var ErrInvalidMessage = errors.New("invalid geoprocess message")

// ParseMessage decodes and validates a geoprocess message from a raw event.
func ParseMessage(raw RawEvent) (GeoprocessMessage, error) {
	var msg GeoprocessMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return GeoprocessMessage{}, fmt.Errorf("%w: unmarshal: %w", ErrInvalidMessage, err)
	}

	switch msg.Geoprocess {
	case GeoprocessIncomingFile:
		if msg.Config.AcquirableSlug == "" {
			return GeoprocessMessage{}, fmt.Errorf("%w: acquirable_slug is required", ErrInvalidMessage)
		}
		if msg.Config.Bucket == "" || msg.Config.Key == "" {
			return GeoprocessMessage{}, fmt.Errorf("%w: bucket and key are required", ErrInvalidMessage)
		}
	case GeoprocessSnodasInterpolate:
		if _, err := msg.ValidTime(); err != nil {
			return GeoprocessMessage{}, err
		}
		if msg.Config.MaxDistance < 0 {
			return GeoprocessMessage{}, fmt.Errorf("%w: max_distance must be non-negative", ErrInvalidMessage)
		}
	case "":
		return GeoprocessMessage{}, fmt.Errorf("%w: geoprocess is required", ErrInvalidMessage)
	default:
		return GeoprocessMessage{}, fmt.Errorf("%w: unknown geoprocess %q", ErrInvalidMessage, msg.Geoprocess)
	}

	return msg, nil
}

// ValidTime parses the configured datetime as RFC 3339.
func (m GeoprocessMessage) ValidTime() (time.Time, error) {
	if m.Config.Datetime == "" {
		return time.Time{}, fmt.Errorf("%w: datetime is required", ErrInvalidMessage)
	}
	t, err := time.Parse(time.RFC3339, m.Config.Datetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: datetime %q: %w", ErrInvalidMessage, m.Config.Datetime, err)
	}
	return t.UTC(), nil
}
