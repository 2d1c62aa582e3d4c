package engine

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// hasSIMD stands in for the browser's WASM-SIMD feature probe: the
// native analog is a vectorized instruction set being available on the
// host CPU. Required for the WASM-class engine (spec §4.3).
func hasSIMD() bool {
	return cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD
}

// threadCount implements spec §4.3's multi-threaded-build formula:
// min(8, max(2, floor(0.75*hardwareConcurrency))).
func threadCount() int {
	n := int(0.75 * float64(runtime.NumCPU()))
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// classifyTier maps a probed storage-buffer-size-equivalent (bytes) to a
// device tier per spec §4.3's thresholds (<0.8GB, <2GB, >=2GB).
func classifyTier(bufferBytes int64) Tier {
	const gb = 1 << 30
	switch {
	case bufferBytes < int64(0.8*gb):
		return TierMobile
	case bufferBytes < 2*gb:
		return TierIntegrated
	default:
		return TierDiscrete
	}
}
