package regs

// SCR fields.
var (
	SCRStructure          = Bits(63, 60)
	SCRSDSpec             = Bits(59, 56)
	SCRDataStatAfterErase = Bit(55)
	SCRSDSecurity         = Bits(54, 52)
	SCRSDBusWidths        = Bits(51, 48)
	SCRSDSpec3            = Bit(47)
	SCRExSecurity         = Bits(46, 43)
	SCRSDSpec4            = Bit(42)
	SCRCmdSupport         = Bits(33, 32)
)

// SD_BUS_WIDTHS bits.
const (
	BusWidth1Bit uint8 = 1 << 0
	BusWidth4Bit uint8 = 1 << 2
)

// SCR is the decoded SD configuration register.
type SCR struct {
	Structure          uint8
	SDSpec             uint8
	DataStatAfterErase bool
	SDSecurity         uint8
	SDBusWidths        uint8
	SDSpec3            bool
	ExSecurity         uint8
	SDSpec4            bool
	CmdSupport         uint8
}

// DecodeSCR decodes the SCR register.
func DecodeSCR(r Register) SCR {
	return SCR{
		Structure:          uint8(r.Field(SCRStructure)),
		SDSpec:             uint8(r.Field(SCRSDSpec)),
		DataStatAfterErase: r.Flag(SCRDataStatAfterErase),
		SDSecurity:         uint8(r.Field(SCRSDSecurity)),
		SDBusWidths:        uint8(r.Field(SCRSDBusWidths)),
		SDSpec3:            r.Flag(SCRSDSpec3),
		ExSecurity:         uint8(r.Field(SCRExSecurity)),
		SDSpec4:            r.Flag(SCRSDSpec4),
		CmdSupport:         uint8(r.Field(SCRCmdSupport)),
	}
}

// Supports4Bit reports whether the card supports the 4-bit data bus.
func (s SCR) Supports4Bit() bool {
	return s.SDBusWidths&BusWidth4Bit != 0
}

// SpecVersion returns the physical layer version string.
func (s SCR) SpecVersion() string {
	switch {
	case s.SDSpec == 0:
		return "1.0"
	case s.SDSpec == 1:
		return "1.10"
	case s.SDSpec == 2 && !s.SDSpec3:
		return "2.00"
	case s.SDSpec == 2 && !s.SDSpec4:
		return "3.0x"
	case s.SDSpec == 2:
		return "4.xx"
	}
	return "unknown"
}

// EncodeSCR builds the raw register, used by card emulation.
func EncodeSCR(s SCR) [2]uint32 {
	var words [2]uint32
	w := words[:]
	Put(w, SCRStructure, uint32(s.Structure))
	Put(w, SCRSDSpec, uint32(s.SDSpec))
	if s.DataStatAfterErase {
		Put(w, SCRDataStatAfterErase, 1)
	}
	Put(w, SCRSDSecurity, uint32(s.SDSecurity))
	Put(w, SCRSDBusWidths, uint32(s.SDBusWidths))
	if s.SDSpec3 {
		Put(w, SCRSDSpec3, 1)
	}
	Put(w, SCRExSecurity, uint32(s.ExSecurity))
	if s.SDSpec4 {
		Put(w, SCRSDSpec4, 1)
	}
	Put(w, SCRCmdSupport, uint32(s.CmdSupport))
	return words
}
