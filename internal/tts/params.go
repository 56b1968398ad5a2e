package tts

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SynthesisParams are the generation knobs sent with every synthesis request.
// The defaults are tuned for long-form Mandarin narration; deployments can
// override individual values with a yaml profile file.
type SynthesisParams struct {
	EmotionControlMethod    int     `yaml:"emotion_control_method"`
	EmotionWeight           float64 `yaml:"emotion_weight"`
	EmotionRandom           bool    `yaml:"emotion_random"`
	MaxTextTokensPerSegment int     `yaml:"max_text_tokens_per_segment"`
	IntervalSilence         int     `yaml:"interval_silence"`
	DoSample                bool    `yaml:"do_sample"`
	TopP                    float64 `yaml:"top_p"`
	TopK                    int     `yaml:"top_k"`
	Temperature             float64 `yaml:"temperature"`
	LengthPenalty           float64 `yaml:"length_penalty"`
	NumBeams                int     `yaml:"num_beams"`
	RepetitionPenalty       float64 `yaml:"repetition_penalty"`
	MaxMelTokens            int     `yaml:"max_mel_tokens"`
}

func DefaultParams() SynthesisParams {
	return SynthesisParams{
		EmotionControlMethod:    0,
		EmotionWeight:           0.65,
		EmotionRandom:           false,
		MaxTextTokensPerSegment: 120,
		IntervalSilence:         200,
		DoSample:                true,
		TopP:                    0.8,
		TopK:                    30,
		Temperature:             0.8,
		LengthPenalty:           0.0,
		NumBeams:                3,
		RepetitionPenalty:       10.0,
		MaxMelTokens:            1500,
	}
}

// LoadParams returns the default params, overridden by the yaml profile at
// path when one is configured. An empty path means defaults only.
func LoadParams(path string) (SynthesisParams, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("could not read synthesis profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("could not parse synthesis profile %s: %w", path, err)
	}

	return params, nil
}

// FormFields renders the params as multipart form fields. Floats keep their
// shortest representation and booleans are lowercase words, matching what the
// synthesis server's parser expects.
func (p SynthesisParams) FormFields() map[string]string {
	return map[string]string{
		"emotion_control_method":      strconv.Itoa(p.EmotionControlMethod),
		"emotion_weight":              formatFloat(p.EmotionWeight),
		"emotion_random":              strconv.FormatBool(p.EmotionRandom),
		"max_text_tokens_per_segment": strconv.Itoa(p.MaxTextTokensPerSegment),
		"interval_silence":            strconv.Itoa(p.IntervalSilence),
		"do_sample":                   strconv.FormatBool(p.DoSample),
		"top_p":                       formatFloat(p.TopP),
		"top_k":                       strconv.Itoa(p.TopK),
		"temperature":                 formatFloat(p.Temperature),
		"length_penalty":              formatFloat(p.LengthPenalty),
		"num_beams":                   strconv.Itoa(p.NumBeams),
		"repetition_penalty":          formatFloat(p.RepetitionPenalty),
		"max_mel_tokens":              strconv.Itoa(p.MaxMelTokens),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
