package analysis

import "math"

// Structure holds the durations in seconds of the coarse track sections
type Structure struct {
	Intro     float64 `json:"intro"`
	Breakdown float64 `json:"breakdown"`
	Drop      float64 `json:"drop"`
	Outro     float64 `json:"outro"`
}

// ArrangementElement places one element on the track timeline
type ArrangementElement struct {
	Name      string      `json:"name"`
	Kind      ElementKind `json:"-"`
	Category  Category    `json:"category"`
	StartTime float64     `json:"startTime"`
	EndTime   float64     `json:"endTime"`
	Color     string      `json:"color"`
	Fallback  bool        `json:"fallback,omitempty"`
}

// EstimateStructure splits a track of the given duration into sections
func EstimateStructure(duration float64) Structure {
	if duration <= 0 {
		return Structure{}
	}
	return Structure{
		Intro:     math.Min(16, 0.125*duration),
		Breakdown: math.Min(32, 0.25*duration),
		Drop:      math.Min(64, 0.5*duration),
		Outro:     math.Min(16, 0.125*duration),
	}
}

type colorKey struct {
	category Category
	role     Role
}

var palette = map[colorKey]string{
	{CategorySynth, RoleFoundation}:      "#6366f1",
	{CategorySynth, RoleLead}:            "#a855f7",
	{CategorySynth, RoleAccent}:          "#ec4899",
	{CategoryInstrument, RoleFoundation}: "#14b8a6",
	{CategoryInstrument, RoleLead}:       "#22c55e",
	{CategoryInstrument, RoleAccent}:     "#84cc16",
	{CategoryDrum, RoleFoundation}:       "#b91c1c",
	{CategoryDrum, RoleLead}:             "#ef4444",
	{CategoryDrum, RoleAccent}:           "#f97316",
	{CategoryBass, RoleFoundation}:       "#1d4ed8",
	{CategoryBass, RoleLead}:             "#3b82f6",
	{CategoryBass, RoleAccent}:           "#0ea5e9",
}

// BuildArrangement projects the detected elements onto a coarse timeline.
// Placement follows each element's role within the estimated sections; it is
// a rule-based layout and does not come from onset detection.
func BuildArrangement(elements DetectedElements, duration float64) ([]ArrangementElement, Structure) {
	structure := EstimateStructure(duration)
	if duration <= 0 {
		return nil, structure
	}

	var ordered []Element
	ordered = append(ordered, elements.Synths...)
	ordered = append(ordered, elements.Instruments...)
	for _, k := range elements.DrumElements.DrumKinds() {
		ordered = append(ordered, Element{Kind: k})
	}
	for _, k := range elements.BassElements.BassKinds() {
		ordered = append(ordered, Element{Kind: k})
	}

	out := make([]ArrangementElement, 0, len(ordered))
	for _, e := range ordered {
		start, end := placement(e.Kind.Role(), structure, duration)
		out = append(out, ArrangementElement{
			Name:      e.Name(),
			Kind:      e.Kind,
			Category:  e.Kind.Category(),
			StartTime: start,
			EndTime:   end,
			Color:     palette[colorKey{e.Kind.Category(), e.Kind.Role()}],
			Fallback:  e.Fallback,
		})
	}
	return out, structure
}

func placement(role Role, s Structure, duration float64) (start, end float64) {
	end = duration - s.Outro
	switch role {
	case RoleFoundation:
		start = 0
	case RoleLead:
		start = s.Intro
	case RoleAccent:
		start = s.Intro + s.Breakdown
		end = math.Min(end, start+s.Drop)
	}
	return start, end
}
