package analysis

import (
	"math"
)

// Texture is the perceived surface quality of the signal
type Texture string

const (
	TextureSmooth   Texture = "smooth"
	TextureGritty   Texture = "gritty"
	TextureMetallic Texture = "metallic"
	TextureOrganic  Texture = "organic"
	TextureDigital  Texture = "digital"
)

// Attack describes how quickly energy rises
type Attack string

const (
	AttackFast   Attack = "fast"
	AttackMedium Attack = "medium"
	AttackSlow   Attack = "slow"
)

// Sustain describes how long energy holds
type Sustain string

const (
	SustainShort  Sustain = "short"
	SustainMedium Sustain = "medium"
	SustainLong   Sustain = "long"
)

// Characteristics are perceptual descriptors derived from band energies.
// Scalars are 0-100.
type Characteristics struct {
	Brightness float64 `json:"brightness"`
	Warmth     float64 `json:"warmth"`
	Punch      float64 `json:"punch"`
	Texture    Texture `json:"texture"`
	Attack     Attack  `json:"attack"`
	Sustain    Sustain `json:"sustain"`
	Harmonics  float64 `json:"harmonics"`
}

const (
	attackLookback    = 3
	sustainLookback   = 5
	fastAttackDelta   = 50
	slowAttackDelta   = 20
	longSustainDrift  = 15
	shortSustainDrift = 40
)

// EstimateCharacteristics derives descriptors for the current frame. prior
// holds the frames before the current one, oldest first.
func EstimateCharacteristics(current FrequencyBands, prior []FrequencyBands) Characteristics {
	c := Characteristics{
		Brightness: clampPercent((current.HighMid + current.High) / 2.5),
		Warmth:     clampPercent((current.LowMid + current.Mid) / 2.5),
		Harmonics:  clampPercent((current.Mid + current.HighMid + current.High) / 3),
		Attack:     AttackMedium,
		Sustain:    SustainMedium,
	}

	if n := len(prior); n > 0 {
		c.Punch = clampPercent(math.Abs(current.Mid-prior[n-1].Mid) * 2)
	}

	c.Texture = classifyTexture(current, c)

	if n := len(prior); n >= attackLookback {
		variation := math.Abs(current.Mid - prior[n-attackLookback].Mid)
		switch {
		case variation > fastAttackDelta:
			c.Attack = AttackFast
		case variation < slowAttackDelta:
			c.Attack = AttackSlow
		}
	}

	if n := len(prior); n > 0 {
		recent := prior[max(0, n-sustainLookback):]
		var drift float64
		for _, f := range recent {
			drift += math.Abs(f.Mid - current.Mid)
		}
		stability := drift / float64(len(recent))
		switch {
		case stability < longSustainDrift:
			c.Sustain = SustainLong
		case stability > shortSustainDrift:
			c.Sustain = SustainShort
		}
	}

	return c
}

// classifyTexture applies the texture rules in priority order. A zero mid
// band makes the ratios infinite, which counts as exceeding them.
func classifyTexture(b FrequencyBands, c Characteristics) Texture {
	ratio := b.High / b.Mid
	switch {
	case ratio > 1.5 && b.HighMid > 100:
		return TextureMetallic
	case ratio > 1.2 && b.High > 90:
		return TextureDigital
	case c.Punch > 60 && b.Mid > 100:
		return TextureGritty
	case c.Warmth > 70 && b.LowMid > 80:
		return TextureOrganic
	default:
		return TextureSmooth
	}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
