package t4

import "fmt"

// CoreClockHz is the frequency of the controller's extended-feature
// clock source. Pulse rate is CoreClockHz / roll / divisor.
const CoreClockHz = 80_000_000

// Shared clock and DIO configuration registers.
const (
	RegClockEnable  = "DIO_EF_CLOCK0_ENABLE"
	RegClockRoll    = "DIO_EF_CLOCK0_ROLL_VALUE"
	RegClockDivisor = "DIO_EF_CLOCK0_DIVISOR"

	// RegDirection is the DIO output-enable bitmask: a set bit makes
	// that pin an output.
	RegDirection = "DIO_DIRECTION"
	// RegAnalogEnable selects analog mode per pin. Writing 0x0F forces
	// DIO4..DIO7 digital on a T4.
	RegAnalogEnable = "DIO_ANALOG_ENABLE"
)

// PulseOutIndex is the extended-feature index selecting pulse output.
const PulseOutIndex = 2

// Pin returns the level register for DIO pin n.
func Pin(n int) string { return fmt.Sprintf("DIO%d", n) }

// EFEnable returns the extended-feature enable register for pin n.
func EFEnable(n int) string { return fmt.Sprintf("DIO%d_EF_ENABLE", n) }

// EFIndex returns the extended-feature selector register for pin n.
func EFIndex(n int) string { return fmt.Sprintf("DIO%d_EF_INDEX", n) }

// EFConfigA returns the config register holding the high-to-low
// transition point of each pulse.
func EFConfigA(n int) string { return fmt.Sprintf("DIO%d_EF_CONFIG_A", n) }

// EFConfigB returns the config register holding the low-to-high
// transition point of each pulse.
func EFConfigB(n int) string { return fmt.Sprintf("DIO%d_EF_CONFIG_B", n) }

// EFConfigC returns the pulse-count register for pin n. Writing it while
// the feature is enabled emits a pulse train.
func EFConfigC(n int) string { return fmt.Sprintf("DIO%d_EF_CONFIG_C", n) }
