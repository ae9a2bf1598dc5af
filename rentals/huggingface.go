package rentals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hometrics/rentbot/foundation/client"
)

// Row is a single record from the zillow-viewer rentals dataset. The rent
// fields are pointers because many records carry nulls.
type Row struct {
	Region       string   `json:"Region"`
	RegionType   int      `json:"Region Type"`
	HomeType     int      `json:"Home Type"`
	Date         string   `json:"Date"`
	Rent         *float64 `json:"Rent (Smoothed)"`
	RentAdjusted *float64 `json:"Rent (Smoothed) (Seasonally Adjusted)"`
}

// RowsPage is one page of records from the datasets-server rows API.
type RowsPage struct {
	Rows []struct {
		Row Row `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// DatasetClient reads dataset pages from a HuggingFace datasets-server
// compatible rows API.
type DatasetClient struct {
	cln     *client.Client
	host    string
	dataset string
	config  string
	split   string
}

func NewDatasetClient(log client.Logger, host string, dataset string, config string, split string, options ...func(cln *client.Client)) *DatasetClient {
	return &DatasetClient{
		cln:     client.New(log, options...),
		host:    host,
		dataset: dataset,
		config:  config,
		split:   split,
	}
}

// Rows fetches a single page of dataset records.
func (dc *DatasetClient) Rows(ctx context.Context, offset int, length int) (RowsPage, error) {
	q := make(url.Values)
	q.Set("dataset", dc.dataset)
	q.Set("config", dc.config)
	q.Set("split", dc.split)
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("length", fmt.Sprintf("%d", length))

	endpoint := fmt.Sprintf("%s/rows?%s", dc.host, q.Encode())

	var page RowsPage
	if err := dc.cln.Do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return RowsPage{}, fmt.Errorf("do: %w", err)
	}

	return page, nil
}
