package analysis

import "testing"

func TestTextureRules(t *testing.T) {
	tests := []struct {
		name     string
		bands    FrequencyBands
		prior    []FrequencyBands
		expected Texture
	}{
		{
			name:     "metallic",
			bands:    FrequencyBands{High: 200, Mid: 50, HighMid: 150},
			expected: TextureMetallic,
		},
		{
			name:     "digital",
			bands:    FrequencyBands{High: 130, Mid: 100, HighMid: 50},
			expected: TextureDigital,
		},
		{
			name:     "gritty",
			bands:    FrequencyBands{Mid: 150, High: 50},
			prior:    []FrequencyBands{{Mid: 100}},
			expected: TextureGritty,
		},
		{
			name:     "organic",
			bands:    FrequencyBands{LowMid: 100, Mid: 100},
			expected: TextureOrganic,
		},
		{
			name:     "smooth default",
			bands:    FrequencyBands{Mid: 20},
			expected: TextureSmooth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := EstimateCharacteristics(tt.bands, tt.prior)
			if c.Texture != tt.expected {
				t.Errorf("Expected texture %s, got %s", tt.expected, c.Texture)
			}
		})
	}
}

func TestScalarCharacteristics(t *testing.T) {
	c := EstimateCharacteristics(FrequencyBands{LowMid: 50, Mid: 100, HighMid: 100, High: 150}, nil)

	if c.Brightness != 100 {
		t.Errorf("Expected brightness clamped to 100, got %f", c.Brightness)
	}
	if c.Warmth != 60 {
		t.Errorf("Expected warmth 60, got %f", c.Warmth)
	}
	if c.Harmonics != 100 {
		t.Errorf("Expected harmonics clamped to 100, got %f", c.Harmonics)
	}
	if c.Punch != 0 {
		t.Errorf("Expected punch 0 without history, got %f", c.Punch)
	}
	if c.Attack != AttackMedium || c.Sustain != SustainMedium {
		t.Errorf("Expected medium attack/sustain without history, got %s/%s", c.Attack, c.Sustain)
	}
}

func TestPunch(t *testing.T) {
	c := EstimateCharacteristics(FrequencyBands{Mid: 80}, []FrequencyBands{{Mid: 60}})
	if c.Punch != 40 {
		t.Errorf("Expected punch 40, got %f", c.Punch)
	}
}

func TestAttack(t *testing.T) {
	tests := []struct {
		name     string
		mid      float64
		expected Attack
	}{
		{"fast", 170, AttackFast},
		{"medium", 130, AttackMedium},
		{"slow", 110, AttackSlow},
	}

	// history[n-3] is the 100 frame
	prior := []FrequencyBands{{Mid: 0}, {Mid: 100}, {Mid: 0}, {Mid: 0}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := EstimateCharacteristics(FrequencyBands{Mid: tt.mid}, prior)
			if c.Attack != tt.expected {
				t.Errorf("Expected attack %s, got %s", tt.expected, c.Attack)
			}
		})
	}
}

func TestSustain(t *testing.T) {
	tests := []struct {
		name     string
		prior    []FrequencyBands
		expected Sustain
	}{
		{"long", []FrequencyBands{{Mid: 100}, {Mid: 105}, {Mid: 95}}, SustainLong},
		{"medium", []FrequencyBands{{Mid: 70}, {Mid: 130}}, SustainMedium},
		{"short", []FrequencyBands{{Mid: 0}, {Mid: 200}, {Mid: 0}}, SustainShort},
		// Only the last five prior frames count
		{"window", []FrequencyBands{{Mid: 0}, {Mid: 0}, {Mid: 100}, {Mid: 100}, {Mid: 100}, {Mid: 100}, {Mid: 100}}, SustainLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := EstimateCharacteristics(FrequencyBands{Mid: 100}, tt.prior)
			if c.Sustain != tt.expected {
				t.Errorf("Expected sustain %s, got %s", tt.expected, c.Sustain)
			}
		})
	}
}

func TestZeroMidDoesNotPanic(t *testing.T) {
	c := EstimateCharacteristics(FrequencyBands{}, nil)
	if c.Texture != TextureSmooth {
		t.Errorf("Expected smooth texture for silence, got %s", c.Texture)
	}
}
