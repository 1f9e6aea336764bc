package sd

import (
	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// Acquired is the set of card registers read so far.
type Acquired uint8

// Acquired flags.
const (
	AcquiredOCR Acquired = 1 << iota
	AcquiredCID
	AcquiredRCA
	AcquiredCSD
	AcquiredSCR
	AcquiredStatus
	AcquiredSDStatus
)

// Card is the per-card record filled during initialization.
type Card struct {
	OCR      regs.OCR
	CID      [4]uint32
	RCA      uint16
	CSD      [4]uint32
	SCR      [2]uint32
	Status   uint32
	SDStatus []byte
	// CRCStripped tells CID and CSD lack the CRC7 and end bit.
	CRCStripped bool
	Acquired    Acquired
}

// Has tells if all flags in a are acquired.
func (c *Card) Has(a Acquired) bool {
	return c.Acquired&a == a
}

func (c *Card) r2Offset() uint {
	if c.CRCStripped {
		return regs.CRCTrailerBits
	}
	return 0
}

// CIDRegister returns the CID as a Register.
func (c *Card) CIDRegister() (regs.Register, error) {
	if !c.Has(AcquiredCID) {
		return regs.Register{}, ErrNotAcquired
	}
	return regs.Register{Words: c.CID[:], Offset: c.r2Offset()}, nil
}

// CSDRegister returns the CSD as a Register.
func (c *Card) CSDRegister() (regs.Register, error) {
	if !c.Has(AcquiredCSD) {
		return regs.Register{}, ErrNotAcquired
	}
	return regs.Register{Words: c.CSD[:], Offset: c.r2Offset()}, nil
}

// SCRRegister returns the SCR as a Register.
func (c *Card) SCRRegister() (regs.Register, error) {
	if !c.Has(AcquiredSCR) {
		return regs.Register{}, ErrNotAcquired
	}
	return regs.Register{Words: c.SCR[:]}, nil
}

// DecodedCID decodes the CID.
func (c *Card) DecodedCID() (regs.CID, error) {
	r, err := c.CIDRegister()
	if err != nil {
		return regs.CID{}, err
	}
	return regs.DecodeCID(r), nil
}

// DecodedSCR decodes the SCR.
func (c *Card) DecodedSCR() (regs.SCR, error) {
	r, err := c.SCRRegister()
	if err != nil {
		return regs.SCR{}, err
	}
	return regs.DecodeSCR(r), nil
}

// DecodedStatus decodes the last card status.
func (c *Card) DecodedStatus() (regs.CardStatus, error) {
	if !c.Has(AcquiredStatus) {
		return regs.CardStatus{}, ErrNotAcquired
	}
	return regs.DecodeCardStatus(c.Status), nil
}

// DecodedSDStatus decodes the SD status.
func (c *Card) DecodedSDStatus() (regs.SDStatus, error) {
	if !c.Has(AcquiredSDStatus) {
		return regs.SDStatus{}, ErrNotAcquired
	}
	return regs.DecodeSDStatusBytes(c.SDStatus)
}

// HighCapacity tells if the card uses block addressing.
func (c *Card) HighCapacity() bool {
	return c.Has(AcquiredOCR) && c.OCR.HighCapacity()
}

// ReadBlLen returns READ_BL_LEN, 0 when CSD isn't acquired.
func (c *Card) ReadBlLen() uint32 {
	r, err := c.CSDRegister()
	if err != nil {
		return 0
	}
	return r.Field(regs.CSDReadBlLen)
}
