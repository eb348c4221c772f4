package analysis

import "encoding/json"

// Category groups elements for display and arrangement
type Category string

const (
	CategorySynth      Category = "synth"
	CategoryInstrument Category = "instrument"
	CategoryDrum       Category = "drum"
	CategoryBass       Category = "bass"
)

// Role decides where an element sits in the arrangement timeline
type Role int

const (
	// RoleFoundation spans the track up to the outro (pads, sustained beds)
	RoleFoundation Role = iota
	// RoleLead enters after the intro
	RoleLead
	// RoleAccent enters after the breakdown (plucks, percussion)
	RoleAccent
)

// ElementKind identifies a classified musical element
type ElementKind int

const (
	SynthMetallicLead ElementKind = iota
	SynthDigitalLead
	SynthLead
	SynthBellPluck
	SynthBrightPluck
	SynthAtmosphericPad
	SynthWarmPad
	SynthPad
	SynthGeneric
	SynthLeadFallback
	SynthPadFallback

	InstrumentPiano
	InstrumentElectricPiano
	InstrumentOrgan
	InstrumentStrings
	InstrumentGuitar
	InstrumentBrass
	InstrumentVocals
	InstrumentBells
	InstrumentPianoFallback
	InstrumentStringsFallback

	DrumKick
	DrumSnare
	DrumHihat
	DrumCymbals
	DrumPercussion

	BassSub
	BassMid
	BassLine

	numElementKinds
)

type kindInfo struct {
	name     string
	category Category
	role     Role
}

var kinds = [numElementKinds]kindInfo{
	SynthMetallicLead:   {"Metallic Lead", CategorySynth, RoleLead},
	SynthDigitalLead:    {"Digital Lead", CategorySynth, RoleLead},
	SynthLead:           {"Lead", CategorySynth, RoleLead},
	SynthBellPluck:      {"Bell-like Pluck", CategorySynth, RoleAccent},
	SynthBrightPluck:    {"Bright Pluck", CategorySynth, RoleAccent},
	SynthAtmosphericPad: {"Atmospheric Pad", CategorySynth, RoleFoundation},
	SynthWarmPad:        {"Warm Pad", CategorySynth, RoleFoundation},
	SynthPad:            {"Pad", CategorySynth, RoleFoundation},
	SynthGeneric:        {"Synth", CategorySynth, RoleLead},
	SynthLeadFallback:   {"Lead Synth", CategorySynth, RoleLead},
	SynthPadFallback:    {"Pad Synth", CategorySynth, RoleFoundation},

	InstrumentPiano:           {"Piano", CategoryInstrument, RoleLead},
	InstrumentElectricPiano:   {"Electric Piano", CategoryInstrument, RoleLead},
	InstrumentOrgan:           {"Organ", CategoryInstrument, RoleFoundation},
	InstrumentStrings:         {"Strings", CategoryInstrument, RoleFoundation},
	InstrumentGuitar:          {"Guitar", CategoryInstrument, RoleAccent},
	InstrumentBrass:           {"Brass", CategoryInstrument, RoleLead},
	InstrumentVocals:          {"Vocals", CategoryInstrument, RoleLead},
	InstrumentBells:           {"Bells", CategoryInstrument, RoleAccent},
	InstrumentPianoFallback:   {"Piano", CategoryInstrument, RoleLead},
	InstrumentStringsFallback: {"Strings", CategoryInstrument, RoleFoundation},

	DrumKick:       {"Kick", CategoryDrum, RoleLead},
	DrumSnare:      {"Snare", CategoryDrum, RoleAccent},
	DrumHihat:      {"Hi-Hat", CategoryDrum, RoleAccent},
	DrumCymbals:    {"Cymbals", CategoryDrum, RoleAccent},
	DrumPercussion: {"Percussion", CategoryDrum, RoleAccent},

	BassSub:  {"Sub Bass", CategoryBass, RoleFoundation},
	BassMid:  {"Mid Bass", CategoryBass, RoleLead},
	BassLine: {"Bassline", CategoryBass, RoleLead},
}

// String returns the display name
func (k ElementKind) String() string {
	if k < 0 || k >= numElementKinds {
		return "Unknown"
	}
	return kinds[k].name
}

// Category returns the category the kind belongs to
func (k ElementKind) Category() Category {
	return kinds[k].category
}

// Role returns the arrangement role of the kind
func (k ElementKind) Role() Role {
	return kinds[k].role
}

// IsFallback reports whether the kind is a placeholder for "nothing detected"
func (k ElementKind) IsFallback() bool {
	switch k {
	case SynthLeadFallback, SynthPadFallback, InstrumentPianoFallback, InstrumentStringsFallback:
		return true
	}
	return false
}

// MarshalJSON encodes the kind as its display name
func (k ElementKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Element is one named element detected in a tick
type Element struct {
	Kind     ElementKind `json:"name"`
	Fallback bool        `json:"fallback,omitempty"`
}

// Name returns the element's display name
func (e Element) Name() string {
	return e.Kind.String()
}

// DrumElements are per-tick drum detections
type DrumElements struct {
	Kick       bool `json:"kick"`
	Snare      bool `json:"snare"`
	Hihat      bool `json:"hihat"`
	Cymbals    bool `json:"cymbals"`
	Percussion bool `json:"percussion"`
}

// BassElements are per-tick bass detections
type BassElements struct {
	SubBass  bool `json:"subBass"`
	MidBass  bool `json:"midBass"`
	Bassline bool `json:"bassline"`
}

// DetectedElements is the classification of a single tick. Names are unique
// per category and nothing carries over between ticks.
type DetectedElements struct {
	Synths       []Element    `json:"synths"`
	Instruments  []Element    `json:"instruments"`
	DrumElements DrumElements `json:"drumElements"`
	BassElements BassElements `json:"bassElements"`

	// Set when Synths or Instruments hold placeholders instead of detections
	SynthsFallback      bool `json:"synthsFallback"`
	InstrumentsFallback bool `json:"instrumentsFallback"`
}

// signal is everything the taxonomy predicates look at
type signal struct {
	b FrequencyBands
	c Characteristics
	t TransientHints
}

type rule struct {
	kind  ElementKind
	match func(s signal) bool
}

// ruleGroup yields at most one element: the first rule that matches
type ruleGroup []rule

var synthTaxonomy = []ruleGroup{
	// leads
	{
		{SynthMetallicLead, func(s signal) bool {
			return s.c.Texture == TextureMetallic && s.c.Brightness > 60
		}},
		{SynthDigitalLead, func(s signal) bool {
			return s.c.Texture == TextureDigital && s.b.HighMid > 80
		}},
		{SynthLead, func(s signal) bool {
			return s.b.HighMid > 80 && s.b.Mid > 60
		}},
	},
	// plucks
	{
		{SynthBellPluck, func(s signal) bool {
			return s.c.Attack == AttackFast && s.c.Sustain == SustainShort && s.b.HighMid > 120 && s.b.High > 100
		}},
		{SynthBrightPluck, func(s signal) bool {
			return s.c.Attack == AttackFast && s.c.Sustain == SustainShort && s.b.HighMid > 80
		}},
	},
	// pads
	{
		{SynthAtmosphericPad, func(s signal) bool {
			return s.c.Warmth > 60 && s.c.Sustain == SustainLong && s.b.LowMid > 80 && s.b.High > 60
		}},
		{SynthWarmPad, func(s signal) bool {
			return s.c.Warmth > 50 && s.c.Sustain == SustainLong && s.b.LowMid > 60
		}},
		{SynthPad, func(s signal) bool {
			return s.c.Sustain == SustainLong && s.b.Mid > 50
		}},
	},
	{
		{SynthGeneric, func(s signal) bool {
			return s.c.Harmonics > 70 && s.c.Texture == TextureDigital
		}},
	},
}

var instrumentTaxonomy = []ruleGroup{
	// keys
	{
		{InstrumentPiano, func(s signal) bool {
			return s.c.Attack != AttackSlow && s.c.Sustain == SustainMedium && s.b.Mid > 80 &&
				(s.c.Texture == TextureOrganic || s.c.Texture == TextureSmooth) && s.c.Harmonics > 40
		}},
		{InstrumentElectricPiano, func(s signal) bool {
			return s.c.Texture == TextureSmooth && s.c.Warmth > 50 && s.c.Attack == AttackMedium && s.b.Mid > 60
		}},
		{InstrumentOrgan, func(s signal) bool {
			return s.c.Sustain == SustainLong && s.c.Warmth > 70 && s.c.Texture == TextureSmooth
		}},
	},
	// strings
	{
		{InstrumentStrings, func(s signal) bool {
			return s.c.Sustain == SustainLong && s.c.Texture == TextureOrganic && s.c.Warmth > 60 && s.b.LowMid > 70
		}},
		{InstrumentGuitar, func(s signal) bool {
			return s.c.Attack == AttackFast && (s.c.Texture == TextureOrganic || s.c.Texture == TextureGritty) &&
				s.b.Mid > 80 && s.b.HighMid > 60
		}},
	},
	{
		{InstrumentBrass, func(s signal) bool {
			return s.c.Texture == TextureGritty && s.b.Mid > 100 && s.b.HighMid > 80 && s.c.Brightness > 50
		}},
	},
	{
		{InstrumentVocals, func(s signal) bool {
			return s.b.Mid > 90 && s.b.HighMid > 70 && s.c.Texture == TextureOrganic && s.c.Harmonics > 60
		}},
	},
	{
		{InstrumentBells, func(s signal) bool {
			return s.c.Texture == TextureMetallic && s.c.Sustain == SustainLong && s.b.High > 100
		}},
	},
}

var (
	synthFallback      = []ElementKind{SynthLeadFallback, SynthPadFallback}
	instrumentFallback = []ElementKind{InstrumentPianoFallback, InstrumentStringsFallback}
)

// Classify maps one tick's band energies, characteristics and transient
// hints to named elements. Drum and bass presence is band energy OR transient
// hint, since either alone can indicate the element.
func Classify(b FrequencyBands, c Characteristics, t TransientHints) DetectedElements {
	s := signal{b: b, c: c, t: t}
	d := DetectedElements{}

	d.Synths = applyTaxonomy(synthTaxonomy, s)
	if len(d.Synths) == 0 {
		d.Synths = fallbackElements(synthFallback)
		d.SynthsFallback = true
	}

	d.Instruments = applyTaxonomy(instrumentTaxonomy, s)
	if len(d.Instruments) == 0 {
		d.Instruments = fallbackElements(instrumentFallback)
		d.InstrumentsFallback = true
	}

	d.DrumElements = DrumElements{
		Kick:       b.SubBass > 40 || t.Kick,
		Snare:      (b.Mid > 80 && b.HighMid > 60 && c.Punch > 30) || t.Snare,
		Hihat:      (b.High > 80 && b.HighMid > 60) || t.Hihat,
		Cymbals:    b.High > 100,
		Percussion: (c.Punch > 50 && b.HighMid > 70) || (t.Kick && t.Hihat),
	}

	d.BassElements = BassElements{
		SubBass:  b.SubBass > 60,
		MidBass:  b.Bass > 80,
		Bassline: b.Bass > 60 && b.LowMid > 40,
	}

	return d
}

// applyTaxonomy evaluates each group, keeping the first match per group and
// dropping kinds already produced by an earlier group.
func applyTaxonomy(groups []ruleGroup, s signal) []Element {
	var out []Element
	seen := make(map[ElementKind]bool)
	for _, group := range groups {
		for _, r := range group {
			if !r.match(s) {
				continue
			}
			if !seen[r.kind] {
				seen[r.kind] = true
				out = append(out, Element{Kind: r.kind})
			}
			break
		}
	}
	return out
}

func fallbackElements(ks []ElementKind) []Element {
	out := make([]Element, len(ks))
	for i, k := range ks {
		out[i] = Element{Kind: k, Fallback: k.IsFallback()}
	}
	return out
}

// DrumKinds returns the drum elements that are present, in display order
func (d DrumElements) DrumKinds() []ElementKind {
	var out []ElementKind
	if d.Kick {
		out = append(out, DrumKick)
	}
	if d.Snare {
		out = append(out, DrumSnare)
	}
	if d.Hihat {
		out = append(out, DrumHihat)
	}
	if d.Cymbals {
		out = append(out, DrumCymbals)
	}
	if d.Percussion {
		out = append(out, DrumPercussion)
	}
	return out
}

// BassKinds returns the bass elements that are present, in display order
func (b BassElements) BassKinds() []ElementKind {
	var out []ElementKind
	if b.SubBass {
		out = append(out, BassSub)
	}
	if b.MidBass {
		out = append(out, BassMid)
	}
	if b.Bassline {
		out = append(out, BassLine)
	}
	return out
}
