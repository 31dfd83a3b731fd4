package logger

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

const defaultDebugEvery = 50

// debugSampler lets one in Every high-volume debug lines through. It is
// replaced once by InitLogger.
var debugSampler atomic.Pointer[rate.Sometimes]

func init() {
	setDebugEvery(defaultDebugEvery)
}

// setDebugEvery configures the sampler; n <= 1 lets every line through.
func setDebugEvery(n int) {
	if n < 1 {
		n = 1
	}
	debugSampler.Store(&rate.Sometimes{Every: n})
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written now. TRACE=1 in the environment disables sampling.
func ShouldSampleDebug() bool {
	if traceOverride.Load() {
		return true
	}
	allowed := false
	debugSampler.Load().Do(func() { allowed = true })
	return allowed
}
