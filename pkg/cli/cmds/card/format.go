package card

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// CSDFields is the JSON form of the interesting CSD fields.
type CSDFields struct {
	Raw         string `json:"raw"`
	Structure   uint32 `json:"structure"`
	ReadBlLen   uint32 `json:"read_bl_len"`
	WriteBlLen  uint32 `json:"write_bl_len"`
	CSize       uint32 `json:"c_size"`
	CSizeMult   uint32 `json:"c_size_mult"`
	FileFormat  uint32 `json:"file_format"`
	FileFmtGrp  bool   `json:"file_format_grp"`
	PermProtect bool   `json:"perm_write_protect"`
	TmpProtect  bool   `json:"tmp_write_protect"`
}

func hexWords(words []uint32) string {
	return fmt.Sprintf("%x", regs.BytesFromWords(words))
}

// DecodeCSDFields extracts CSD fields from the card record.
func DecodeCSDFields(card sd.Card) (CSDFields, error) {
	r, err := card.CSDRegister()
	if err != nil {
		return CSDFields{}, err
	}
	return CSDFields{
		Raw:         hexWords(card.CSD[:]),
		Structure:   r.Field(regs.CSDStructure),
		ReadBlLen:   r.Field(regs.CSDReadBlLen),
		WriteBlLen:  r.Field(regs.CSDWriteBlLen),
		CSize:       r.Field(regs.CSDCSize),
		CSizeMult:   r.Field(regs.CSDCSizeMult),
		FileFormat:  r.Field(regs.CSDFileFormat),
		FileFmtGrp:  r.Flag(regs.CSDFileFormatGrp),
		PermProtect: r.Flag(regs.CSDPermWriteProtect),
		TmpProtect:  r.Flag(regs.CSDTmpWriteProtect),
	}, nil
}

// FormatInfo prints CardInfo for display.
func FormatInfo(info *msgs.CardInfo) []string {
	lines := []string{
		fmt.Sprintf("RCA:        %04x", info.RCA),
		fmt.Sprintf("Product:    %s rev %s (OEM %s, MID %02x)", info.ProductName, info.Revision, info.OEMID, info.ManufacturerID),
		fmt.Sprintf("Serial:     %08x", info.SerialNumber),
		fmt.Sprintf("Date:       %s", info.ManufactureDate),
	}
	if info.CapacityBytes > 0 {
		lines = append(lines,
			fmt.Sprintf("Capacity:   %s (%d bytes)", FormatSize(info.CapacityBytes), info.CapacityBytes),
			fmt.Sprintf("Block len:  read %d, write %d", info.MaxReadBlockLength, info.MaxWriteBlockLength),
			fmt.Sprintf("Format:     %s", info.FileFormat))
	} else {
		lines = append(lines, "Capacity:   unsupported CSD")
	}
	return append(lines,
		fmt.Sprintf("Spec:       %s", info.SpecVersion),
		fmt.Sprintf("Bus width:  %d", info.BusWidth),
		fmt.Sprintf("Speed:      class %d", info.SpeedClass),
		fmt.Sprintf("Addressing: %s", addressing(info.HighCapacity)))
}

func addressing(highCapacity bool) string {
	if highCapacity {
		return "block"
	}
	return "byte"
}

// FormatStatus prints the card status.
func FormatStatus(st regs.CardStatus) []string {
	lines := []string{
		fmt.Sprintf("Status:     %08x", st.Raw),
		fmt.Sprintf("State:      %s", st.CurrentState),
		fmt.Sprintf("Ready:      %v", st.ReadyForData),
	}
	if errs := st.Errors(); errs != 0 {
		lines = append(lines, fmt.Sprintf("Errors:     %08x", errs))
	}
	return lines
}

// FormatCID prints the CID.
func FormatCID(cid regs.CID) []string {
	return []string{
		fmt.Sprintf("MID:        %02x", cid.ManufacturerID),
		fmt.Sprintf("OID:        %s", cid.OEMID),
		fmt.Sprintf("PNM:        %s", cid.ProductName),
		fmt.Sprintf("PRV:        %s", cid.RevisionString()),
		fmt.Sprintf("PSN:        %08x", cid.SerialNumber),
		fmt.Sprintf("MDT:        %04d-%02d", cid.Year, cid.Month),
	}
}

// FormatCSD prints CSD fields.
func FormatCSD(f CSDFields) []string {
	return []string{
		fmt.Sprintf("Raw:          %s", f.Raw),
		fmt.Sprintf("CSD_STRUCT:   %d", f.Structure),
		fmt.Sprintf("READ_BL_LEN:  %d", f.ReadBlLen),
		fmt.Sprintf("WRITE_BL_LEN: %d", f.WriteBlLen),
		fmt.Sprintf("C_SIZE:       %d", f.CSize),
		fmt.Sprintf("C_SIZE_MULT:  %d", f.CSizeMult),
		fmt.Sprintf("FILE_FORMAT:  %d (group %v)", f.FileFormat, f.FileFmtGrp),
		fmt.Sprintf("WP:           perm %v, tmp %v", f.PermProtect, f.TmpProtect),
	}
}

// FormatSCR prints the SCR.
func FormatSCR(scr regs.SCR) []string {
	return []string{
		fmt.Sprintf("Spec:       %s", scr.SpecVersion()),
		fmt.Sprintf("Bus widths: %04b", scr.SDBusWidths),
		fmt.Sprintf("4-bit:      %v", scr.Supports4Bit()),
		fmt.Sprintf("Security:   %d", scr.SDSecurity),
	}
}

// FormatSDStatus prints the SD status.
func FormatSDStatus(st regs.SDStatus) []string {
	return []string{
		fmt.Sprintf("Bus width:  %d", st.BusWidthBits()),
		fmt.Sprintf("Secured:    %v", st.SecuredMode),
		fmt.Sprintf("Card type:  %04x", st.CardType),
		fmt.Sprintf("Protected:  %d bytes", st.ProtectedSize),
		fmt.Sprintf("Speed:      class %d", st.SpeedClassValue()),
		fmt.Sprintf("AU size:    %d", st.AUSize),
	}
}

// FormatSize prints size in binary units.
func FormatSize(size uint64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	n, unit := float64(size), 0
	for n >= 1024 && unit+1 < len(units) {
		n /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", size)
	}
	return strconv.FormatFloat(n, 'f', -1, 64) + " " + units[unit]
}

// ParseBlocks parses ADDR [COUNT] arguments.
func ParseBlocks(args []string) (addr, count uint32, err error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, 0, errors.New("ADDR [COUNT] expected")
	}
	a, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid block address")
	}
	count = 1
	if len(args) > 1 {
		c, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil || c == 0 {
			return 0, 0, errors.Errorf("invalid block count %q", args[1])
		}
		count = uint32(c)
	}
	return uint32(a), count, nil
}
