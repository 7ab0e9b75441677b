// Package accessory adapts the OCR and speech-synthesis collaborators and
// the audio player used for reading a page aloud.
package accessory

import (
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Voice selects the synthesized voice.
type Voice string

const (
	VoiceFemale Voice = "female"
	VoiceMale   Voice = "male"
)

// Speaking rate presets and bounds.
const (
	RateSlow   = 0.75
	RateNormal = 1.0
	RateFast   = 1.5

	MinRate = RateSlow
	MaxRate = RateFast
)

// VoiceConfig is sent with every synthesis request.
type VoiceConfig struct {
	Voice Voice   `yaml:"voice"`
	Rate  float64 `yaml:"rate"`
}

// DefaultVoice is a female voice at normal speed.
var DefaultVoice = VoiceConfig{Voice: VoiceFemale, Rate: RateNormal}

// Validate validates the voice configuration.
func (c *VoiceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Voice, validation.Required, validation.In(VoiceFemale, VoiceMale)),
		validation.Field(&c.Rate, validation.Required, validation.Min(MinRate), validation.Max(MaxRate)),
	)
}

// ParseRate accepts a preset name (slow, normal, fast) or a multiplier.
func ParseRate(s string) (float64, error) {
	switch s {
	case "slow":
		return RateSlow, nil
	case "normal", "":
		return RateNormal, nil
	case "fast":
		return RateFast, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("accessory: invalid speaking rate %q", s)
	}
	if r < MinRate || r > MaxRate {
		return 0, fmt.Errorf("accessory: speaking rate %.2f out of range [%.2f, %.2f]", r, MinRate, MaxRate)
	}
	return r, nil
}
