// Package pricing holds the static per-token rate table used to attach
// monetary cost to provider-reported usage.
package pricing

import "github.com/chatvault/chatvault/internal/models"

// Version identifies the rate snapshot. Bump when rates change.
const Version = "2024-03"

// rate is USD per token for input and output. Providers report a single
// total token count, so cost blends the two assuming roughly 70% input
// and 30% output.
type rate struct {
	input  float64
	output float64
}

var rates = map[models.Platform]map[string]rate{
	models.PlatformOpenAI: {
		"gpt-4-turbo-preview": {input: 0.01 / 1000, output: 0.03 / 1000},
		"gpt-4":               {input: 0.03 / 1000, output: 0.06 / 1000},
		"gpt-3.5-turbo":       {input: 0.0015 / 1000, output: 0.002 / 1000},
	},
	models.PlatformAnthropic: {
		"claude-3-opus-20240229":   {input: 0.015 / 1000, output: 0.075 / 1000},
		"claude-3-sonnet-20240229": {input: 0.003 / 1000, output: 0.015 / 1000},
		"claude-3-haiku-20240307":  {input: 0.00025 / 1000, output: 0.00125 / 1000},
	},
	models.PlatformGoogle: {
		"gemini-pro":       {input: 0.000001, output: 0.000001},
		"gemini-1.5-pro":   {input: 0.000001, output: 0.000001},
		"gemini-1.5-flash": {input: 0.000001, output: 0.000001},
	},
}

const (
	inputShare  = 0.7
	outputShare = 0.3
)

// Cost computes the blended cost for a token count. The second return
// is false when the (platform, model) pair has no entry; the cost is
// then zero so statistics can tell "unknown pricing" from "free".
func Cost(platform models.Platform, model string, tokens int64) (float64, bool) {
	r, ok := rates[platform][model]
	if !ok {
		return 0, false
	}
	t := float64(tokens)
	return t*inputShare*r.input + t*outputShare*r.output, true
}

// Rate returns the blended per-token rate, zero when unknown.
func Rate(platform models.Platform, model string) (float64, bool) {
	r, ok := rates[platform][model]
	if !ok {
		return 0, false
	}
	return inputShare*r.input + outputShare*r.output, true
}
