package regs

import "fmt"

// CID fields.
var (
	CIDManufacturerID = Bits(127, 120)
	CIDOEMID          = Bits(119, 104)
	CIDProductNameHi  = Bits(103, 96)
	CIDProductNameLo  = Bits(95, 64)
	CIDRevision       = Bits(63, 56)
	CIDSerialNumber   = Bits(55, 24)
	CIDManufactureDt  = Bits(19, 8)
	CIDCRC            = Bits(7, 1)
)

// CID is the decoded card identification register.
type CID struct {
	ManufacturerID uint8
	OEMID          string
	ProductName    string
	Revision       uint8
	SerialNumber   uint32
	Year           int
	Month          int
	CRC            uint8
}

// DecodeCID decodes the CID register.
func DecodeCID(r Register) CID {
	oid := r.Field(CIDOEMID)
	hi, lo := r.Field(CIDProductNameHi), r.Field(CIDProductNameLo)
	pnm := []byte{byte(hi), byte(lo >> 24), byte(lo >> 16), byte(lo >> 8), byte(lo)}
	mdt := r.Field(CIDManufactureDt)
	return CID{
		ManufacturerID: uint8(r.Field(CIDManufacturerID)),
		OEMID:          string([]byte{byte(oid >> 8), byte(oid)}),
		ProductName:    string(pnm),
		Revision:       uint8(r.Field(CIDRevision)),
		SerialNumber:   r.Field(CIDSerialNumber),
		Year:           2000 + int(mdt>>4),
		Month:          int(mdt & 0xf),
		CRC:            uint8(r.Field(CIDCRC)),
	}
}

// RevisionString formats PRV as "n.m".
func (c CID) RevisionString() string {
	return fmt.Sprintf("%d.%d", c.Revision>>4, c.Revision&0xf)
}

// EncodeCID builds the raw register, used by card emulation.
func EncodeCID(c CID) [4]uint32 {
	var words [4]uint32
	w := words[:]
	Put(w, CIDManufacturerID, uint32(c.ManufacturerID))
	Put(w, CIDOEMID, uint32(nameByte(c.OEMID, 0))<<8|uint32(nameByte(c.OEMID, 1)))
	Put(w, CIDProductNameHi, uint32(nameByte(c.ProductName, 0)))
	var lo uint32
	for i := 1; i < 5; i++ {
		lo = lo<<8 | uint32(nameByte(c.ProductName, i))
	}
	Put(w, CIDProductNameLo, lo)
	Put(w, CIDRevision, uint32(c.Revision))
	Put(w, CIDSerialNumber, c.SerialNumber)
	Put(w, CIDManufactureDt, uint32(c.Year-2000)<<4|uint32(c.Month&0xf))
	Put(w, CIDCRC, uint32(c.CRC))
	Put(w, Bit(0), 1)
	return words
}

func nameByte(s string, n int) byte {
	if n < len(s) {
		return s[n]
	}
	return ' '
}
