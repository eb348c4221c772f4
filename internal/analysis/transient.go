package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// Time-domain bytes are centered on this value (silence)
	waveformCenter = 128

	// A sample is a peak candidate above mean + thresholdDeviations*stddev
	thresholdDeviations = 1.5
	// High peaks exceed highPeakFactor*threshold
	highPeakFactor = 1.5

	// PeakHistorySize is the number of per-frame peak counts kept
	PeakHistorySize = 20
)

// TransientHints are rhythmic-event hints for a single frame. They are
// combined with band energy by the classifier and are not final detections.
type TransientHints struct {
	Kick  bool `json:"kick"`
	Snare bool `json:"snare"`
	Hihat bool `json:"hihat"`

	PeakCount     int     `json:"peakCount"`
	HighPeakCount int     `json:"highPeakCount"`
	Mean          float64 `json:"mean"`
	Variance      float64 `json:"variance"`
	StdDev        float64 `json:"stdDev"`
	Threshold     float64 `json:"threshold"`
	AvgPeaks      float64 `json:"avgPeaks"`
}

// TransientDetector finds statistical peaks in time-domain frames and keeps
// a short history of peak counts for rhythmic stability.
type TransientDetector struct {
	history *Ring[int]
}

// NewTransientDetector creates a detector with the given peak history size
func NewTransientDetector(historySize int) *TransientDetector {
	if historySize <= 0 {
		historySize = PeakHistorySize
	}
	return &TransientDetector{history: NewRing[int](historySize)}
}

// Detect analyzes one waveform frame and records its peak count
func (d *TransientDetector) Detect(waveform []uint8) TransientHints {
	hints := TransientHints{}
	if len(waveform) == 0 {
		d.history.Push(0)
		return hints
	}

	deviations := make([]float64, len(waveform))
	for i, v := range waveform {
		deviations[i] = math.Abs(float64(v) - waveformCenter)
	}

	mean, variance := stat.PopMeanVariance(deviations, nil)
	stdDev := math.Sqrt(variance)
	threshold := mean + thresholdDeviations*stdDev

	for i := 1; i < len(deviations)-1; i++ {
		v := deviations[i]
		if v > threshold && v > deviations[i-1] && v > deviations[i+1] {
			hints.PeakCount++
			if v > highPeakFactor*threshold {
				hints.HighPeakCount++
			}
		}
	}

	d.history.Push(hints.PeakCount)
	var total int
	for _, c := range d.history.Items() {
		total += c
	}
	avgPeaks := float64(total) / float64(d.history.Len())

	hints.Mean = mean
	hints.Variance = variance
	hints.StdDev = stdDev
	hints.Threshold = threshold
	hints.AvgPeaks = avgPeaks

	hints.Kick = hints.HighPeakCount > 2 && mean > 20
	hints.Snare = hints.PeakCount > 5 && avgPeaks > 3 && variance > 100
	hints.Hihat = hints.PeakCount > 10 && stdDev > 15

	return hints
}

// HistoryLen returns the number of recorded frames
func (d *TransientDetector) HistoryLen() int {
	return d.history.Len()
}

// Reset clears the peak history
func (d *TransientDetector) Reset() {
	d.history.Clear()
}
