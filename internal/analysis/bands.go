package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// peakWeight is how much of a band's loudest bin counts against its mean.
// Short percussive hits light up a few bins; a flat mean would bury them.
const peakWeight = 0.3

// Band is a named frequency range in Hz
type Band struct {
	Name  string
	MinHz float64
	MaxHz float64
}

// Bands lists the six ranges in FrequencyBands order
var Bands = [6]Band{
	{Name: "subBass", MinHz: 20, MaxHz: 60},
	{Name: "bass", MinHz: 60, MaxHz: 250},
	{Name: "lowMid", MinHz: 250, MaxHz: 500},
	{Name: "mid", MinHz: 500, MaxHz: 2000},
	{Name: "highMid", MinHz: 2000, MaxHz: 4000},
	{Name: "high", MinHz: 4000, MaxHz: 20000},
}

// FrequencyBands holds the aggregated energy of each band on the 0-255 scale
// of the sampler's byte frequency data.
type FrequencyBands struct {
	SubBass float64 `json:"subBass"`
	Bass    float64 `json:"bass"`
	LowMid  float64 `json:"lowMid"`
	Mid     float64 `json:"mid"`
	HighMid float64 `json:"highMid"`
	High    float64 `json:"high"`
}

// Total returns the summed energy of all bands
func (b FrequencyBands) Total() float64 {
	return b.SubBass + b.Bass + b.LowMid + b.Mid + b.HighMid + b.High
}

// AggregateBands reduces a frequency-magnitude snapshot to six band energies.
// magnitudes covers 0..sampleRate/2 in len(magnitudes) equal bins.
func AggregateBands(magnitudes []uint8, sampleRate int) FrequencyBands {
	if len(magnitudes) == 0 || sampleRate <= 0 {
		return FrequencyBands{}
	}

	values := make([]float64, len(magnitudes))
	for i, m := range magnitudes {
		values[i] = float64(m)
	}
	binWidth := float64(sampleRate) / 2 / float64(len(values))

	var out [6]float64
	for i, band := range Bands {
		out[i] = bandValue(values, binWidth, band.MinHz, band.MaxHz)
	}

	return FrequencyBands{
		SubBass: out[0],
		Bass:    out[1],
		LowMid:  out[2],
		Mid:     out[3],
		HighMid: out[4],
		High:    out[5],
	}
}

// bandValue is max(mean, 0.3*peak) over the inclusive bin range of [minHz, maxHz]
func bandValue(values []float64, binWidth, minHz, maxHz float64) float64 {
	start := int(math.Floor(minHz / binWidth))
	end := int(math.Floor(maxHz / binWidth))
	if end >= len(values) {
		end = len(values) - 1
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		return 0
	}

	bins := values[start : end+1]
	mean := floats.Sum(bins) / float64(len(bins))
	peak := floats.Max(bins)
	return math.Max(mean, peakWeight*peak)
}
