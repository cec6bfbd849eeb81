//go:build !linux

package coordinator

// loadAverage is unavailable off Linux; the load gate becomes a no-op.
func loadAverage() (float64, bool) {
	return 0, false
}
