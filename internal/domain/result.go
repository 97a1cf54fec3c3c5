package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status summarizes the outcome of one geoprocess message.
type Status string

const (
	StatusPublished    Status = "published"
	StatusEmpty        Status = "empty"
	StatusNotifyFailed Status = "notify_failed"
	StatusFailed       Status = "failed"
)

// CatalogResponse is what the catalog API returned for a notification.
type CatalogResponse struct {
	StatusCode int             `json:"status"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Response is one entry of the publish transcript: either the storage key of
// an uploaded product or the catalog response for the batched notification.
type Response struct {
	Key    string           `json:"key,omitempty"`
	Upload *CatalogResponse `json:"upload,omitempty"`
}

// Result is the record written to the results topic for every processed message.
type Result struct {
	ID             string     `json:"id"`
	Geoprocess     string     `json:"geoprocess"`
	AcquirableSlug string     `json:"acquirable_slug,omitempty"`
	SourceKey      string     `json:"source_key,omitempty"`
	Status         Status     `json:"status"`
	Products       int        `json:"products"`
	Responses      []Response `json:"responses,omitempty"`
	Error          string     `json:"error,omitempty"`
	ProcessedAt    time.Time  `json:"processed_at"`
}

// NewResult starts a result for msg, stamped with a fresh ID and the current time.
func NewResult(msg GeoprocessMessage) Result {
	return Result{
		ID:             uuid.NewString(),
		Geoprocess:     msg.Geoprocess,
		AcquirableSlug: msg.Config.AcquirableSlug,
		SourceKey:      msg.Config.Key,
		ProcessedAt:    clock.Now().UTC(),
	}
}

// Fail marks the result as failed with err.
func (r Result) Fail(err error) Result {
	r.Status = StatusFailed
	r.Error = err.Error()
	return r
}
