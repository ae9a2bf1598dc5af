// Package chronos provides a client for a hosted Chronos-style time-series
// inference service. The service accepts a numeric history and returns sample
// trajectories which are reduced to quantile series here.
package chronos

import (
	"context"
	"fmt"
	"net/http"

	"github.com/montanaflynn/stats"

	"github.com/hometrics/rentbot/foundation/client"
)

// Forecast holds the quantile series produced from the sampled trajectories.
// Median is the primary answer. Low and High bound the 80% prediction
// interval.
type Forecast struct {
	Median []float64 `json:"median"`
	Low    []float64 `json:"low"`
	High   []float64 `json:"high"`
}

type Chronos struct {
	cln  *client.Client
	host string
}

func New(host string, options ...func(cln *client.Client)) *Chronos {
	return &Chronos{
		cln:  client.New(client.NoopLogger, options...),
		host: host,
	}
}

// Predict asks the inference service for possible futures of the provided
// history and reduces the samples to 10/50/90 percentile series.
func (chr *Chronos) Predict(ctx context.Context, historical []float64, length int) (Forecast, error) {
	if len(historical) == 0 {
		return Forecast{}, fmt.Errorf("historical values are required")
	}

	if length <= 0 {
		return Forecast{}, fmt.Errorf("prediction length must be positive, got %d", length)
	}

	d := client.D{
		"inputs": historical,
		"parameters": client.D{
			"prediction_length": length,
		},
	}

	var resp struct {
		Samples [][]float64 `json:"samples"`
	}

	if err := chr.cln.Do(ctx, http.MethodPost, chr.host, d, &resp); err != nil {
		return Forecast{}, fmt.Errorf("do: %w", err)
	}

	if len(resp.Samples) == 0 {
		return Forecast{}, fmt.Errorf("no samples in response")
	}

	for i, sample := range resp.Samples {
		if len(sample) != length {
			return Forecast{}, fmt.Errorf("sample %d has %d values, want %d", i, len(sample), length)
		}
	}

	return reduce(resp.Samples, length)
}

// reduce computes the per-step quantiles across the sampled trajectories.
func reduce(samples [][]float64, length int) (Forecast, error) {
	fc := Forecast{
		Median: make([]float64, length),
		Low:    make([]float64, length),
		High:   make([]float64, length),
	}

	step := make([]float64, len(samples))

	for i := 0; i < length; i++ {
		for j, sample := range samples {
			step[j] = sample[i]
		}

		low, err := stats.Percentile(step, 10)
		if err != nil {
			return Forecast{}, fmt.Errorf("percentile 10: %w", err)
		}

		median, err := stats.Median(step)
		if err != nil {
			return Forecast{}, fmt.Errorf("median: %w", err)
		}

		high, err := stats.Percentile(step, 90)
		if err != nil {
			return Forecast{}, fmt.Errorf("percentile 90: %w", err)
		}

		fc.Low[i] = low
		fc.Median[i] = median
		fc.High[i] = high
	}

	return fc, nil
}
