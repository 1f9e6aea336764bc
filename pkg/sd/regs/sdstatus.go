package regs

// SDStatusBytes is the size of the SD status data block.
const SDStatusBytes = 64

// SD status fields.
var (
	SSRBusWidth        = Bits(511, 510)
	SSRSecuredMode     = Bit(509)
	SSRCardType        = Bits(495, 480)
	SSRProtectedSize   = Bits(479, 448)
	SSRSpeedClass      = Bits(447, 440)
	SSRPerformanceMove = Bits(439, 432)
	SSRAUSize          = Bits(431, 428)
	SSREraseSize       = Bits(423, 408)
	SSREraseTimeout    = Bits(407, 402)
	SSREraseOffset     = Bits(401, 400)
	SSRUHSSpeedGrade   = Bits(399, 396)
	SSRUHSAUSize       = Bits(395, 392)
)

// SDStatus is the decoded 512-bit SD status.
type SDStatus struct {
	BusWidth        uint8
	SecuredMode     bool
	CardType        uint16
	ProtectedSize   uint32
	SpeedClass      uint8
	PerformanceMove uint8
	AUSize          uint8
	EraseSize       uint16
	EraseTimeout    uint8
	EraseOffset     uint8
	UHSSpeedGrade   uint8
	UHSAUSize       uint8
}

// DecodeSDStatus decodes the SD status from a 16-word register.
func DecodeSDStatus(r Register) SDStatus {
	return SDStatus{
		BusWidth:        uint8(r.Field(SSRBusWidth)),
		SecuredMode:     r.Flag(SSRSecuredMode),
		CardType:        uint16(r.Field(SSRCardType)),
		ProtectedSize:   r.Field(SSRProtectedSize),
		SpeedClass:      uint8(r.Field(SSRSpeedClass)),
		PerformanceMove: uint8(r.Field(SSRPerformanceMove)),
		AUSize:          uint8(r.Field(SSRAUSize)),
		EraseSize:       uint16(r.Field(SSREraseSize)),
		EraseTimeout:    uint8(r.Field(SSREraseTimeout)),
		EraseOffset:     uint8(r.Field(SSREraseOffset)),
		UHSSpeedGrade:   uint8(r.Field(SSRUHSSpeedGrade)),
		UHSAUSize:       uint8(r.Field(SSRUHSAUSize)),
	}
}

// DecodeSDStatusBytes decodes the SD status from the 64-byte data block.
func DecodeSDStatusBytes(b []byte) (SDStatus, error) {
	if len(b) != SDStatusBytes {
		return SDStatus{}, ErrBadLength
	}
	words, err := WordsFromBytes(b)
	if err != nil {
		return SDStatus{}, err
	}
	return DecodeSDStatus(Register{Words: words}), nil
}

// SpeedClassValue maps SPEED_CLASS to the class number (0, 2, 4, 6, 10).
func (s SDStatus) SpeedClassValue() int {
	switch s.SpeedClass {
	case 1:
		return 2
	case 2:
		return 4
	case 3:
		return 6
	case 4:
		return 10
	}
	return 0
}

// BusWidthBits returns the current bus width in bits.
func (s SDStatus) BusWidthBits() int {
	if s.BusWidth == 2 {
		return 4
	}
	return 1
}

// EncodeSDStatus builds the 64-byte data block, used by card emulation.
func EncodeSDStatus(s SDStatus) []byte {
	words := make([]uint32, SDStatusBytes/4)
	Put(words, SSRBusWidth, uint32(s.BusWidth))
	if s.SecuredMode {
		Put(words, SSRSecuredMode, 1)
	}
	Put(words, SSRCardType, uint32(s.CardType))
	Put(words, SSRProtectedSize, s.ProtectedSize)
	Put(words, SSRSpeedClass, uint32(s.SpeedClass))
	Put(words, SSRPerformanceMove, uint32(s.PerformanceMove))
	Put(words, SSRAUSize, uint32(s.AUSize))
	Put(words, SSREraseSize, uint32(s.EraseSize))
	Put(words, SSREraseTimeout, uint32(s.EraseTimeout))
	Put(words, SSREraseOffset, uint32(s.EraseOffset))
	Put(words, SSRUHSSpeedGrade, uint32(s.UHSSpeedGrade))
	Put(words, SSRUHSAUSize, uint32(s.UHSAUSize))
	return BytesFromWords(words)
}
