package consts

const (
	GND = -1 // Ground reference for single-port stamps

	DefaultTolerance     = 1e-8 // Infinity-norm of the mismatch vector (p.u.)
	DefaultMaxIterations = 10
	DefaultQLimitRounds  = 10

	DefaultSBaseMVA = 100.0 // System base power (MVA)
	DefaultFreqHz   = 50.0  // Nominal frequency (Hz)
)
