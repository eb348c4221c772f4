package analysis

import (
	"math"
	"testing"
)

const (
	testSampleRate = 44100
	testBins       = 1024
)

// binRange mirrors the aggregator's inclusive bin range for a band
func binRange(b Band) (int, int) {
	width := float64(testSampleRate) / 2 / testBins
	start := int(math.Floor(b.MinHz / width))
	end := int(math.Floor(b.MaxHz / width))
	if end > testBins-1 {
		end = testBins - 1
	}
	return start, end
}

func TestAggregateBandsZeros(t *testing.T) {
	bands := AggregateBands(make([]uint8, testBins), testSampleRate)

	if bands != (FrequencyBands{}) {
		t.Errorf("Expected all-zero bands, got %+v", bands)
	}
	if bands.Total() != 0 {
		t.Errorf("Expected zero total, got %f", bands.Total())
	}
}

func TestAggregateBandsFlat(t *testing.T) {
	mags := make([]uint8, testBins)
	for i := range mags {
		mags[i] = 100
	}

	bands := AggregateBands(mags, testSampleRate)
	values := []float64{bands.SubBass, bands.Bass, bands.LowMid, bands.Mid, bands.HighMid, bands.High}
	for i, v := range values {
		if v != 100 {
			t.Errorf("Band %s: expected 100, got %f", Bands[i].Name, v)
		}
	}
}

func TestAggregateBandsPeakWeighted(t *testing.T) {
	mags := make([]uint8, testBins)
	start, end := binRange(Bands[5])
	mags[start+10] = 200

	bands := AggregateBands(mags, testSampleRate)

	mean := 200.0 / float64(end-start+1)
	expected := math.Max(mean, 0.3*200)
	if math.Abs(bands.High-expected) > 1e-9 {
		t.Errorf("Expected high %f, got %f", expected, bands.High)
	}
	if bands.SubBass != 0 || bands.Mid != 0 {
		t.Errorf("Expected untouched bands to stay zero, got %+v", bands)
	}
}

func TestAggregateBandsBounded(t *testing.T) {
	mags := make([]uint8, testBins)
	for i := range mags {
		mags[i] = uint8((i * 37) % 256)
	}

	bands := AggregateBands(mags, testSampleRate)
	values := []float64{bands.SubBass, bands.Bass, bands.LowMid, bands.Mid, bands.HighMid, bands.High}
	for i, v := range values {
		start, end := binRange(Bands[i])
		var sum, peak float64
		for _, m := range mags[start : end+1] {
			sum += float64(m)
			peak = math.Max(peak, float64(m))
		}
		mean := sum / float64(end-start+1)

		if v < 0 {
			t.Errorf("Band %s: negative value %f", Bands[i].Name, v)
		}
		if v < mean || v < 0.3*peak || v > peak {
			t.Errorf("Band %s: %f outside [max(mean, 0.3*peak), peak] = [%f, %f]",
				Bands[i].Name, v, math.Max(mean, 0.3*peak), peak)
		}
	}
}

func TestAggregateBandsInvalidInput(t *testing.T) {
	if b := AggregateBands(nil, testSampleRate); b != (FrequencyBands{}) {
		t.Errorf("Expected zero bands for empty input, got %+v", b)
	}
	if b := AggregateBands([]uint8{255, 255}, 0); b != (FrequencyBands{}) {
		t.Errorf("Expected zero bands for zero sample rate, got %+v", b)
	}
}
