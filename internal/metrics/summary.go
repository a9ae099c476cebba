package metrics

import "math"

// Summarize reduces a spectrum to the figures stored per measurement.
// wavelengths and spectrum are indexed by pixel; extra entries in either are
// ignored. Pixels counts every pixel, while Min, Max, Mean and PeakWavelength
// are taken over finite intensities only and stay zero when there are none.
func Summarize(wavelengths, spectrum []float64) SpectrumMetrics {
	n := min(len(wavelengths), len(spectrum))
	s := SpectrumMetrics{Pixels: n}

	var sum float64
	finite := 0
	for px := 0; px < n; px++ {
		v := spectrum[px]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if finite == 0 || v < s.Min {
			s.Min = v
		}
		if finite == 0 || v > s.Max {
			s.Max = v
			s.PeakWavelength = wavelengths[px]
		}
		sum += v
		finite++
	}
	if finite > 0 {
		s.Mean = sum / float64(finite)
	}

	return s
}
