package inference

import (
	"math"
	"strconv"
	"strings"
)

// UnknownLabel is used when the response carries no label.
const UnknownLabel = "Unknown"

var labelFields = []string{"predicted_class", "class", "prediction", "disease"}

// Label returns the first non-empty label field, or UnknownLabel.
func (p Prediction) Label() string {
	for _, k := range labelFields {
		if s, ok := p[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return UnknownLabel
}

// Confidence returns the normalized confidence percentage (0 when absent).
func (p Prediction) Confidence() float64 {
	var v float64
	switch c := p["confidence"].(type) {
	case float64:
		v = c
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(c, "%")), 64)
		if err != nil {
			return 0
		}
		v = f
	default:
		return 0
	}
	return ScaleConfidence(v)
}

// ScaleConfidence maps a raw score onto [0,100]. Values at or below 1 are
// read as fractions and multiplied by 100, then rounded to two decimals.
// Values in (1,100] are percentages already. Anything else is clamped.
func ScaleConfidence(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v <= 1 {
		return math.Round(v*100*100) / 100
	}
	if v > 100 {
		return 100
	}
	return v
}
