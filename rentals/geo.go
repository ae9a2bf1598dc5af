// Package rentals provides the rental price data domain: dataset ingestion,
// zip code geography, and guarded SQL access for the analysis tools.
package rentals

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hometrics/rentbot/foundation/client"
)

// Geo identifies where a zip code is located.
type Geo struct {
	City   string
	County string
	State  string
}

// FetchGeo downloads the zip code geography CSV from the specified url and
// parses it into a lookup table keyed by zip code.
func FetchGeo(ctx context.Context, log client.Logger, url string) (map[string]Geo, error) {
	cln := client.New(log)

	var body string
	if err := cln.Do(ctx, http.MethodGet, url, nil, &body); err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}

	return ParseGeoCSV(strings.NewReader(body))
}

// ParseGeoCSV parses geography data in the scpike/us-state-county-zip CSV
// layout. Columns are located by header name so column order doesn't matter.
func ParseGeoCSV(r io.Reader) (map[string]Geo, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	maxIdx := 0
	for _, required := range []string{"zipcode", "city", "county", "state_abbr"} {
		i, exists := idx[required]
		if !exists {
			return nil, fmt.Errorf("missing column %q in geo data", required)
		}
		maxIdx = max(maxIdx, i)
	}

	geo := make(map[string]Geo)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		if len(record) <= maxIdx {
			continue
		}

		zip := NormalizeZip(record[idx["zipcode"]])
		if zip == "" {
			continue
		}

		geo[zip] = Geo{
			City:   record[idx["city"]],
			County: record[idx["county"]],
			State:  record[idx["state_abbr"]],
		}
	}

	return geo, nil
}

// NormalizeZip restores the leading zeros that get lost when zip codes are
// handled as numbers upstream.
func NormalizeZip(zip string) string {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return ""
	}

	for len(zip) < 5 {
		zip = "0" + zip
	}

	return zip
}
