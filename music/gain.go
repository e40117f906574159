package music

import (
	"github.com/cwbudde/algo-dsp/dsp/core"
)

// SilenceDB is what AmplitudeToDB reports for zero or negative amplitude
const SilenceDB = -1000.0

// AmplitudeToDB converts linear amplitude to dBFS (20*log10).
// amp <= 0 maps to SilenceDB rather than -Inf or NaN.
func AmplitudeToDB(amp float64) float64 {
	if !(amp > 0) {
		return SilenceDB
	}
	return core.LinearToDB(amp)
}

// DBToAmplitude converts dBFS to linear amplitude
func DBToAmplitude(db float64) float64 {
	return core.DBToLinear(db)
}
