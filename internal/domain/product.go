package domain

import (
	"errors"
	"fmt"
	"time"
)

// TimeLayout renders timestamps with a numeric UTC offset, e.g. 2022-08-18T01:00:00+00:00.
const TimeLayout = "2006-01-02T15:04:05-07:00"

// ErrInvalidProduct marks a product record that breaks the catalog contract.
var ErrInvalidProduct = errors.New("invalid product")

// Product describes one converted grid ready for upload and catalog notification.
type Product struct {
	FileType string  `json:"filetype"`
	File     string  `json:"file"`
	Datetime string  `json:"datetime"`
	Version  *string `json:"version"`
}

// FormatTime formats t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NewProduct builds a product valid at the given time. A nil version marks
// the product as unversioned.
func NewProduct(filetype, file string, valid time.Time, version *time.Time) Product {
	p := Product{
		FileType: filetype,
		File:     file,
		Datetime: FormatTime(valid),
	}
	if version != nil {
		v := FormatTime(*version)
		p.Version = &v
	}
	return p
}

// Validate checks that the record can be accepted by the catalog.
func (p Product) Validate() error {
	if p.FileType == "" {
		return fmt.Errorf("%w: filetype is empty", ErrInvalidProduct)
	}
	if p.File == "" {
		return fmt.Errorf("%w: file is empty", ErrInvalidProduct)
	}
	if _, err := time.Parse(time.RFC3339, p.Datetime); err != nil {
		return fmt.Errorf("%w: datetime %q: %w", ErrInvalidProduct, p.Datetime, err)
	}
	if p.Version != nil {
		if _, err := time.Parse(time.RFC3339, *p.Version); err != nil {
			return fmt.Errorf("%w: version %q: %w", ErrInvalidProduct, *p.Version, err)
		}
	}
	return nil
}

// ValidTime returns the parsed datetime field.
func (p Product) ValidTime() (time.Time, error) {
	return time.Parse(time.RFC3339, p.Datetime)
}
