package regs

import "errors"

// ErrUnsupportedCSD indicates a CSD structure version other than 1.0.
var ErrUnsupportedCSD = errors.New("unsupported CSD structure")

// CSD (version 1.0) fields.
var (
	CSDStructure        = Bits(127, 126)
	CSDTAAC             = Bits(119, 112)
	CSDNSAC             = Bits(111, 104)
	CSDTranSpeed        = Bits(103, 96)
	CSDCCC              = Bits(95, 84)
	CSDReadBlLen        = Bits(83, 80)
	CSDReadBlPartial    = Bit(79)
	CSDWriteBlkMisalign = Bit(78)
	CSDReadBlkMisalign  = Bit(77)
	CSDDSRImp           = Bit(76)
	CSDCSize            = Bits(73, 62)
	CSDVddRCurrMin      = Bits(61, 59)
	CSDVddRCurrMax      = Bits(58, 56)
	CSDVddWCurrMin      = Bits(55, 53)
	CSDVddWCurrMax      = Bits(52, 50)
	CSDCSizeMult        = Bits(49, 47)
	CSDEraseBlkEn       = Bit(46)
	CSDSectorSize       = Bits(45, 39)
	CSDWPGrpSize        = Bits(38, 32)
	CSDWPGrpEnable      = Bit(31)
	CSDR2WFactor        = Bits(28, 26)
	CSDWriteBlLen       = Bits(25, 22)
	CSDWriteBlPartial   = Bit(21)
	CSDFileFormatGrp    = Bit(15)
	CSDCopy             = Bit(14)
	CSDPermWriteProtect = Bit(13)
	CSDTmpWriteProtect  = Bit(12)
	CSDFileFormat       = Bits(11, 10)
	CSDCRC              = Bits(7, 1)
)

// CSD structure versions, as the raw CSD_STRUCTURE value.
const (
	CSDVersion1 uint32 = 0
	CSDVersion2 uint32 = 1
)

// DecodeCSDField extracts a single CSD field.
func DecodeCSDField(csd Register, f Field) uint32 {
	return csd.Field(f)
}

func checkCSDVersion(csd Register) error {
	if csd.Field(CSDStructure) != CSDVersion1 {
		return ErrUnsupportedCSD
	}
	return nil
}

// BlockCount returns the number of READ_BL_LEN sized blocks.
func BlockCount(csd Register) (uint64, error) {
	if err := checkCSDVersion(csd); err != nil {
		return 0, err
	}
	cSize := uint64(csd.Field(CSDCSize))
	mult := uint64(1) << (csd.Field(CSDCSizeMult) + 2)
	return (cSize + 1) * mult, nil
}

// CapacityBytes calculates the user area capacity of a version 1.0 CSD.
func CapacityBytes(csd Register) (uint64, error) {
	count, err := BlockCount(csd)
	if err != nil {
		return 0, err
	}
	return count * (uint64(1) << csd.Field(CSDReadBlLen)), nil
}

// MaxReadBlockLength returns 2^READ_BL_LEN.
func MaxReadBlockLength(csd Register) (uint16, error) {
	if err := checkCSDVersion(csd); err != nil {
		return 0, err
	}
	return uint16(1) << csd.Field(CSDReadBlLen), nil
}

// MaxWriteBlockLength returns 2^WRITE_BL_LEN.
func MaxWriteBlockLength(csd Register) (uint16, error) {
	if err := checkCSDVersion(csd); err != nil {
		return 0, err
	}
	return uint16(1) << csd.Field(CSDWriteBlLen), nil
}

// FileFormat is the file format indicated by the CSD.
type FileFormat int

// File formats.
const (
	// FileFormatHardcoded is a hard disk-like file system with partition table.
	FileFormatHardcoded FileFormat = iota
	// FileFormatUserModified is a DOS FAT (floppy-like) boot sector only.
	FileFormatUserModified
	// FileFormatUniversal is the universal file format.
	FileFormatUniversal
	// FileFormatReserved covers "others/unknown" and the reserved group.
	FileFormatReserved
)

var fileFormatNames = [...]string{"hardcoded", "user-modified", "universal", "reserved"}

// String implements fmt.Stringer.
func (f FileFormat) String() string {
	if f >= 0 && int(f) < len(fileFormatNames) {
		return fileFormatNames[f]
	}
	return "invalid"
}

// DecodeFileFormat decodes FILE_FORMAT_GRP and FILE_FORMAT.
func DecodeFileFormat(csd Register) (FileFormat, error) {
	if err := checkCSDVersion(csd); err != nil {
		return FileFormatReserved, err
	}
	if csd.Flag(CSDFileFormatGrp) {
		return FileFormatReserved, nil
	}
	return FileFormat(csd.Field(CSDFileFormat)), nil
}

// CSDGeometry is the set of CSD fields describing the card geometry.
type CSDGeometry struct {
	ReadBlLen  uint32
	WriteBlLen uint32
	CSize      uint32
	CSizeMult  uint32
	FileFormat FileFormat
}

// GeometryFor finds the geometry with the largest capacity not
// exceeding size, preferring 512-byte blocks.
func GeometryFor(size uint64) (CSDGeometry, bool) {
	var best CSDGeometry
	var bestCap uint64
	for blLen := uint32(9); blLen <= 11; blLen++ {
		for mult := uint32(0); mult <= 7; mult++ {
			unit := uint64(1) << (blLen + mult + 2)
			n := size / unit
			if n == 0 {
				continue
			}
			if n > 4096 {
				n = 4096
			}
			if c := n * unit; c > bestCap {
				bestCap = c
				best = CSDGeometry{ReadBlLen: blLen, WriteBlLen: 9, CSize: uint32(n - 1), CSizeMult: mult}
			}
		}
	}
	return best, bestCap > 0
}

// EncodeCSD builds a version 1.0 CSD register, used by card emulation.
func EncodeCSD(g CSDGeometry) [4]uint32 {
	var words [4]uint32
	w := words[:]
	Put(w, CSDStructure, CSDVersion1)
	Put(w, CSDTAAC, 0x26)
	Put(w, CSDTranSpeed, 0x32)
	Put(w, CSDCCC, 0x5b5)
	Put(w, CSDReadBlLen, g.ReadBlLen)
	Put(w, CSDCSize, g.CSize)
	Put(w, CSDVddRCurrMin, 7)
	Put(w, CSDVddRCurrMax, 7)
	Put(w, CSDVddWCurrMin, 7)
	Put(w, CSDVddWCurrMax, 7)
	Put(w, CSDCSizeMult, g.CSizeMult)
	Put(w, CSDEraseBlkEn, 1)
	Put(w, CSDSectorSize, 0x7f)
	Put(w, CSDR2WFactor, 4)
	Put(w, CSDWriteBlLen, g.WriteBlLen)
	if g.FileFormat == FileFormatReserved {
		Put(w, CSDFileFormat, 3)
	} else {
		Put(w, CSDFileFormat, uint32(g.FileFormat))
	}
	Put(w, Bit(0), 1)
	return words
}
