package analysis

import "testing"

func TestEstimateStructure(t *testing.T) {
	tests := []struct {
		duration float64
		expected Structure
	}{
		{120, Structure{Intro: 15, Breakdown: 30, Drop: 60, Outro: 15}},
		{400, Structure{Intro: 16, Breakdown: 32, Drop: 64, Outro: 16}},
		{0, Structure{}},
	}

	for _, tt := range tests {
		got := EstimateStructure(tt.duration)
		if got != tt.expected {
			t.Errorf("Duration %f: expected %+v, got %+v", tt.duration, tt.expected, got)
		}
	}
}

func TestBuildArrangementPlacement(t *testing.T) {
	elements := DetectedElements{
		Synths:       []Element{{Kind: SynthWarmPad}, {Kind: SynthLead}, {Kind: SynthBrightPluck}},
		DrumElements: DrumElements{Kick: true, Hihat: true},
		BassElements: BassElements{SubBass: true},
	}

	arrangement, structure := BuildArrangement(elements, 120)
	if len(arrangement) != 6 {
		t.Fatalf("Expected 6 arrangement entries, got %d", len(arrangement))
	}

	byName := make(map[string]ArrangementElement)
	for _, a := range arrangement {
		byName[a.Name] = a
		if a.Color == "" {
			t.Errorf("%s has no color", a.Name)
		}
	}

	end := 120 - structure.Outro
	checks := []struct {
		name       string
		start, end float64
	}{
		{"Warm Pad", 0, end},
		{"Lead", structure.Intro, end},
		{"Bright Pluck", structure.Intro + structure.Breakdown, end},
		{"Kick", structure.Intro, end},
		{"Hi-Hat", structure.Intro + structure.Breakdown, end},
		{"Sub Bass", 0, end},
	}
	for _, c := range checks {
		a, ok := byName[c.name]
		if !ok {
			t.Errorf("Missing %s", c.name)
			continue
		}
		if a.StartTime != c.start || a.EndTime != c.end {
			t.Errorf("%s: expected [%f, %f], got [%f, %f]", c.name, c.start, c.end, a.StartTime, a.EndTime)
		}
	}

	if byName["Kick"].Category != CategoryDrum {
		t.Errorf("Expected Kick in drum category, got %s", byName["Kick"].Category)
	}
}

func TestBuildArrangementAccentBoundedByDrop(t *testing.T) {
	// Long track: accents end at the end of the drop, before the outro starts
	elements := DetectedElements{DrumElements: DrumElements{Snare: true}}
	arrangement, s := BuildArrangement(elements, 600)

	if len(arrangement) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(arrangement))
	}
	if arrangement[0].EndTime != s.Intro+s.Breakdown+s.Drop {
		t.Errorf("Expected accent to end with the drop at %f, got %f", s.Intro+s.Breakdown+s.Drop, arrangement[0].EndTime)
	}
}

func TestBuildArrangementNoDuration(t *testing.T) {
	arrangement, _ := BuildArrangement(DetectedElements{DrumElements: DrumElements{Kick: true}}, 0)
	if len(arrangement) != 0 {
		t.Errorf("Expected empty arrangement without a duration, got %+v", arrangement)
	}
}

func TestBuildArrangementKeepsFallbackTag(t *testing.T) {
	elements := Classify(FrequencyBands{}, Characteristics{}, TransientHints{})
	arrangement, _ := BuildArrangement(elements, 60)

	for _, a := range arrangement {
		if a.Category == CategorySynth && !a.Fallback {
			t.Errorf("Expected fallback tag on %s", a.Name)
		}
	}
}
