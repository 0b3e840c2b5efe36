package util

// MetricsBucketsQuery covers single store operations and node lookups, 500µs to 8s.
var MetricsBucketsQuery = []float64{
	0.5e-3, 1e-3, 2e-3, 4e-3, 8e-3, 16e-3, 32e-3, 64e-3, 128e-3, 256e-3, 512e-3, 1, 2, 4, 8,
}

// MetricsBucketsBlock covers fetching and applying a whole block, 10ms to about 10 minutes.
var MetricsBucketsBlock = []float64{
	10e-3, 40e-3, 160e-3, 640e-3, 2.56, 10.24, 40.96, 163.84, 655.36,
}
