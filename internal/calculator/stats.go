package calculator

import "math"

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleCovariance uses the n-1 denominator. Callers guarantee len >= 2
// and equal lengths.
func sampleCovariance(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	sum := 0.0
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs)-1)
}

func sampleVariance(xs []float64) float64 {
	return sampleCovariance(xs, xs)
}

func sampleStdDev(xs []float64) float64 {
	return math.Sqrt(sampleVariance(xs))
}
