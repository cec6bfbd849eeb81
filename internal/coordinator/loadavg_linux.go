//go:build linux

package coordinator

import "golang.org/x/sys/unix"

// loadAverage returns the 1-minute system load average.
func loadAverage() (float64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	// Loads are fixed-point with SI_LOAD_SHIFT (16) fractional bits.
	return float64(info.Loads[0]) / 65536.0, true
}
