package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)
)

const (
	NominalTemp = KELVIN + 27.0 // Device evaluation temperature (K)
	Gmin        = 1e-12         // Minimum junction conductance (S)

	DiodeIs = 1e-14 // Default saturation current (A)
	DiodeN  = 1.0   // Default emission coefficient

	// Junction exponent above which the diode current continues linearly.
	MaxExpArg = 40.0
)
