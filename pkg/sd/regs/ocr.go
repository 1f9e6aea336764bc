package regs

// OCR is the operation conditions register.
type OCR uint32

// OCR bits.
const (
	OCRLowVoltage OCR = 1 << 7
	OCR27to28     OCR = 1 << 15
	OCR28to29     OCR = 1 << 16
	OCR29to30     OCR = 1 << 17
	OCR30to31     OCR = 1 << 18
	OCR31to32     OCR = 1 << 19
	OCR32to33     OCR = 1 << 20
	OCR33to34     OCR = 1 << 21
	OCR34to35     OCR = 1 << 22
	OCR35to36     OCR = 1 << 23
	OCRCapacity   OCR = 1 << 30
	OCRPowerUp    OCR = 1 << 31

	OCRVoltageMask OCR = 0x00ff8000
)

// Ready reports whether the card finished its power up routine.
// The bit is low while the card is busy.
func (o OCR) Ready() bool {
	return o&OCRPowerUp != 0
}

// HighCapacity reports the card capacity status (CCS) bit,
// only valid when Ready.
func (o OCR) HighCapacity() bool {
	return o&OCRCapacity != 0
}

// VoltageWindow returns the supported voltage window bits.
func (o OCR) VoltageWindow() OCR {
	return o & OCRVoltageMask
}
