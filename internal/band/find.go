package band

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Source exposes per-band metadata. Bands are numbered from 1.
type Source interface {
	BandCount() int
	BandMetadata(band int) (map[string]string, error)
}

// FindBand returns the lowest band whose metadata satisfies d. A band whose
// metadata cannot be read is logged and skipped.
func FindBand(src Source, d Descriptor, logger *slog.Logger) (int, bool) {
	for b := 1; b <= src.BandCount(); b++ {
		meta, err := src.BandMetadata(b)
		if err != nil {
			logger.Warn("read band metadata failed, skipping band", "band", b, "error", err)
			continue
		}
		if d.Matches(meta) {
			return b, true
		}
	}
	return 0, false
}

// infoDoc is the subset of gdalinfo -json output needed to resolve bands.
type infoDoc struct {
	Bands []struct {
		Band     int                        `json:"band"`
		Metadata map[string]json.RawMessage `json:"metadata"`
	} `json:"bands"`
}

// FindBandInfo resolves a band from a gdalinfo -json document with the same
// semantics as FindBand. Bands whose default-domain keys do not cover the
// descriptor are rejected before any pattern runs.
func FindBandInfo(info []byte, d Descriptor) (int, bool, error) {
	var doc infoDoc
	if err := json.Unmarshal(info, &doc); err != nil {
		return 0, false, fmt.Errorf("decode band info: %w", err)
	}

	for _, b := range doc.Bands {
		meta := decodeDomain(b.Metadata[""])
		if !covers(meta, d) {
			continue
		}
		if d.Matches(meta) {
			return b.Band, true, nil
		}
	}
	return 0, false, nil
}

func covers(meta map[string]string, d Descriptor) bool {
	hits := 0
	for k := range d {
		if _, ok := meta[k]; ok {
			hits++
		}
	}
	return hits == len(d)
}

// decodeDomain reads a metadata domain, keeping string values and rendering
// anything else as its JSON text.
func decodeDomain(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	meta := make(map[string]string, len(values))
	for k, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			meta[k] = s
			continue
		}
		meta[k] = string(v)
	}
	return meta
}
