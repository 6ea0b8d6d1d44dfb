package stdlib

import (
	"time"

	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

// DefaultWeatherURL is the open-meteo forecast endpoint.
const DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

var weatherInput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"latitude":  map[string]interface{}{"type": "number", "minimum": -90, "maximum": 90},
		"longitude": map[string]interface{}{"type": "number", "minimum": -180, "maximum": 180},
	},
	"required":             []string{"latitude", "longitude"},
	"additionalProperties": false,
})

var weatherOutput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"current_weather": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"temperature": map[string]interface{}{"type": "number"},
				"windspeed":   map[string]interface{}{"type": "number"},
			},
			"required": []string{"temperature"},
		},
	},
	"required": []string{"current_weather"},
})

// Weather returns the weather tool, an HTTP endpoint served by baseURL.
// Empty baseURL means DefaultWeatherURL.
func Weather(baseURL string) tool.Tool {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return tool.Tool{
		Definition: tool.Definition{
			Name:        "weather",
			Description: "Returns current temperature and wind speed for a latitude and longitude.",
			Version:     "1.0.0",
			Tags:        []string{"weather", "web"},
		},
		Implementation: tool.HTTPEndpoint{
			URL:          baseURL + "?latitude={latitude}&longitude={longitude}&current_weather=true",
			Method:       "GET",
			Timeout:      10 * time.Second,
			InputSchema:  weatherInput,
			OutputSchema: weatherOutput,
		},
	}
}
