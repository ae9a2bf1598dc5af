package tools

import (
	"context"
	"fmt"

	"github.com/hometrics/rentbot/foundation/chronos"
	"github.com/hometrics/rentbot/foundation/client"
)

// Forecaster produces a probabilistic forecast from a numeric history.
type Forecaster interface {
	Predict(ctx context.Context, historical []float64, length int) (chronos.Forecast, error)
}

// Forecast generates future-value predictions from past time series data.
type Forecast struct {
	name       string
	forecaster Forecaster
}

func RegisterForecast(tools map[string]Tool, forecaster Forecaster) client.D {
	fc := Forecast{
		name:       "get_time_series_prediction",
		forecaster: forecaster,
	}
	tools[fc.name] = &fc

	return fc.toolDocument()
}

func (fc *Forecast) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        fc.name,
			"description": "Generate possible future predictions based on past time series data. Provide a list of numbers as 'historical_values', and specify how many future values to predict in 'number_of_values_to_predict'. Returns the predicted median values along with low and high bounds of the 80% prediction interval.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"historical_values": client.D{
						"type":        "array",
						"items":       client.D{"type": "number"},
						"description": "The historical numeric values, oldest first",
					},
					"number_of_values_to_predict": client.D{
						"type":        "integer",
						"description": "How many future values to predict",
					},
				},
				"required": []string{"historical_values", "number_of_values_to_predict"},
			},
		},
	}
}

func (fc *Forecast) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	rawValues := toolCall.Function.Arguments["historical_values"].([]any)

	historical := make([]float64, len(rawValues))
	for i, v := range rawValues {
		historical[i] = v.(float64)
	}

	length := int(toolCall.Function.Arguments["number_of_values_to_predict"].(float64))

	forecast, err := fc.forecaster.Predict(ctx, historical, length)
	if err != nil {
		return ErrorResponse(toolCall.ID, err)
	}

	return SuccessResponse(toolCall.ID,
		"median", forecast.Median,
		"low", forecast.Low,
		"high", forecast.High,
	)
}
