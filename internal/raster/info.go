package raster

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/USACE/cumulus-geoproc/internal/grid"
)

// Band is the per-band part of a dataset description.
type Band struct {
	Number      int
	Description string
	Type        string
	NoData      *float64
	Metadata    map[string]string
}

// SubDataset names a child dataset of a container such as NetCDF.
type SubDataset struct {
	Name        string
	Description string
}

// Info is the decoded form of gdalinfo -json output.
type Info struct {
	Description  string
	Driver       string
	Size         [2]int
	Metadata     map[string]map[string]string
	Bands        []Band
	GeoTransform *grid.GeoTransform
	Projection   string
}

type jsonInfo struct {
	Description      string                     `json:"description"`
	DriverShortName  string                     `json:"driverShortName"`
	Size             []int                      `json:"size"`
	GeoTransform     []float64                  `json:"geoTransform,omitempty"`
	CoordinateSystem *jsonCRS                   `json:"coordinateSystem,omitempty"`
	Metadata         map[string]json.RawMessage `json:"metadata"`
	Bands            []jsonBand                 `json:"bands"`
}

type jsonCRS struct {
	WKT string `json:"wkt"`
}

type jsonBand struct {
	Band        int                        `json:"band"`
	Description string                     `json:"description,omitempty"`
	Type        string                     `json:"type,omitempty"`
	NoDataValue json.RawMessage            `json:"noDataValue,omitempty"`
	Metadata    map[string]json.RawMessage `json:"metadata"`
}

// ParseInfo decodes gdalinfo -json output. Metadata values that are not
// strings are kept as their JSON text; domains that are not objects are dropped.
func ParseInfo(data []byte) (Info, error) {
	var doc jsonInfo
	if err := json.Unmarshal(data, &doc); err != nil {
		return Info{}, fmt.Errorf("decode gdalinfo: %w", err)
	}

	info := Info{
		Description: doc.Description,
		Driver:      doc.DriverShortName,
		Metadata:    decodeDomains(doc.Metadata),
	}
	if len(doc.Size) == 2 {
		info.Size = [2]int{doc.Size[0], doc.Size[1]}
	}
	if len(doc.GeoTransform) == 6 {
		var gt grid.GeoTransform
		copy(gt[:], doc.GeoTransform)
		info.GeoTransform = &gt
	}
	if doc.CoordinateSystem != nil {
		info.Projection = doc.CoordinateSystem.WKT
	}

	for _, b := range doc.Bands {
		nodata, err := decodeNoData(b.NoDataValue)
		if err != nil {
			return Info{}, fmt.Errorf("band %d: %w", b.Band, err)
		}
		domains := decodeDomains(b.Metadata)
		info.Bands = append(info.Bands, Band{
			Number:      b.Band,
			Description: b.Description,
			Type:        b.Type,
			NoData:      nodata,
			Metadata:    domains[""],
		})
	}
	return info, nil
}

// SubDatasets lists children from the SUBDATASETS metadata domain in index order.
func (i Info) SubDatasets() []SubDataset {
	md := i.Metadata["SUBDATASETS"]
	var subs []SubDataset
	for n := 1; ; n++ {
		name, ok := md[fmt.Sprintf("SUBDATASET_%d_NAME", n)]
		if !ok {
			break
		}
		subs = append(subs, SubDataset{Name: name, Description: md[fmt.Sprintf("SUBDATASET_%d_DESC", n)]})
	}
	return subs
}

// encode renders the Info back into gdalinfo -json shape.
func (i Info) encode() ([]byte, error) {
	doc := jsonInfo{
		Description:     i.Description,
		DriverShortName: i.Driver,
		Size:            []int{i.Size[0], i.Size[1]},
		Metadata:        encodeDomains(i.Metadata),
	}
	if i.GeoTransform != nil {
		doc.GeoTransform = i.GeoTransform[:]
	}
	if i.Projection != "" {
		doc.CoordinateSystem = &jsonCRS{WKT: i.Projection}
	}
	for _, b := range i.Bands {
		jb := jsonBand{
			Band:        b.Number,
			Description: b.Description,
			Type:        b.Type,
			Metadata:    encodeDomains(map[string]map[string]string{"": b.Metadata}),
		}
		if b.NoData != nil {
			jb.NoDataValue = json.RawMessage(formatFloat(*b.NoData))
		}
		doc.Bands = append(doc.Bands, jb)
	}
	return json.Marshal(doc)
}

func decodeDomains(raw map[string]json.RawMessage) map[string]map[string]string {
	out := make(map[string]map[string]string, len(raw))
	for domain, body := range raw {
		var values map[string]json.RawMessage
		if err := json.Unmarshal(body, &values); err != nil {
			continue
		}
		md := make(map[string]string, len(values))
		for k, v := range values {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				md[k] = s
				continue
			}
			md[k] = string(v)
		}
		out[domain] = md
	}
	return out
}

func encodeDomains(domains map[string]map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(domains))
	names := make([]string, 0, len(domains))
	for d := range domains {
		names = append(names, d)
	}
	sort.Strings(names)
	for _, d := range names {
		if domains[d] == nil {
			continue
		}
		body, err := json.Marshal(domains[d])
		if err != nil {
			continue
		}
		out[d] = body
	}
	return out
}

// decodeNoData accepts a number or one of the strings gdalinfo writes for
// non-finite values.
func decodeNoData(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("noDataValue %s: %w", raw, err)
	}
	switch strings.ToLower(s) {
	case "nan":
		f = math.NaN()
	case "inf", "infinity":
		f = math.Inf(1)
	case "-inf", "-infinity":
		f = math.Inf(-1)
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("noDataValue %q: %w", s, err)
		}
		f = v
	}
	return &f, nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return `"nan"`
	case math.IsInf(f, 1):
		return `"inf"`
	case math.IsInf(f, -1):
		return `"-inf"`
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
