package sim

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

var (
	// ErrNoResponse indicates the card didn't respond, like a command timeout.
	ErrNoResponse = errors.New("no response")
	// ErrUnsupportedSize indicates the medium is too small or too large.
	ErrUnsupportedSize = errors.New("unsupported medium size")
	// ErrDataLength indicates the data buffer doesn't match the transfer.
	ErrDataLength = errors.New("data length mismatch")

	errIllegal = errors.New("illegal command")
)

// StatusError is a data command rejected by the card.
type StatusError struct {
	Cmd    uint8
	Status uint32
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("CMD%d rejected with status %08x", e.Cmd, e.Status)
}

func statusBit(f regs.Field) uint32 {
	return uint32(1) << f.Start
}

// cardVoltageWindow is 2.7-3.6V.
const cardVoltageWindow = regs.OCRVoltageMask

// CSD version 2.0 C_SIZE.
var csdCSizeV2 = regs.Bits(69, 48)

type fault struct {
	cmd uint8
	app bool
}

// Card is an emulated SD card.
type Card struct {
	medium   Medium
	conf     Config
	blocks   uint64
	cid      regs.CID
	csd      [4]uint32
	scr      regs.SCR
	sdStatus regs.SDStatus

	lock        sync.Mutex
	state       regs.CardState
	ocr         regs.OCR
	rca         uint16
	appCmd      bool
	busWidth    uint8
	blockLen    uint32
	errs        uint32
	opCondPolls int
	writeBusy   int
	faults      map[fault]error
	history     []string
}

// NewCard creates a card on the medium. The card capacity is the
// largest one expressible in CSD not exceeding the medium size.
func NewCard(medium Medium, conf *Config) (*Card, error) {
	if conf == nil {
		conf = Default()
	}
	c := &Card{
		medium: medium,
		conf:   *conf,
		cid: regs.CID{
			ManufacturerID: 0x1b,
			OEMID:          "SM",
			ProductName:    "EMUSD",
			Revision:       0x10,
			SerialNumber:   uint32(medium.Size()>>9) ^ 0x5d0c4a11,
			Year:           2020,
			Month:          1,
		},
		scr: regs.SCR{
			SDSpec:      2,
			SDSecurity:  2,
			SDBusWidths: regs.BusWidth1Bit | regs.BusWidth4Bit,
			SDSpec3:     true,
		},
		sdStatus: regs.SDStatus{
			SpeedClass:      2,
			PerformanceMove: 1,
			AUSize:          9,
			EraseSize:       1,
			EraseTimeout:    1,
		},
		faults: make(map[fault]error),
	}
	if conf.HighCapacity {
		units := uint64(medium.Size()) / (512 << 10)
		if units == 0 || units > 1<<22 {
			return nil, ErrUnsupportedSize
		}
		c.blocks = units << 10
		c.csd = encodeCSDv2(uint32(units - 1))
		c.scr.SDSecurity = 3
	} else {
		g, ok := regs.GeometryFor(uint64(medium.Size()))
		if !ok {
			return nil, ErrUnsupportedSize
		}
		c.csd = regs.EncodeCSD(g)
		capacity, err := regs.CapacityBytes(regs.Register{Words: c.csd[:]})
		if err != nil {
			return nil, err
		}
		c.blocks = capacity / sd.BlockSize
	}
	c.powerUp()
	return c, nil
}

func encodeCSDv2(cSize uint32) [4]uint32 {
	var words [4]uint32
	w := words[:]
	regs.Put(w, regs.CSDStructure, regs.CSDVersion2)
	regs.Put(w, regs.CSDTAAC, 0x0e)
	regs.Put(w, regs.CSDTranSpeed, 0x32)
	regs.Put(w, regs.CSDCCC, 0x5b5)
	regs.Put(w, regs.CSDReadBlLen, 9)
	regs.Put(w, csdCSizeV2, cSize)
	regs.Put(w, regs.CSDEraseBlkEn, 1)
	regs.Put(w, regs.CSDSectorSize, 0x7f)
	regs.Put(w, regs.CSDR2WFactor, 2)
	regs.Put(w, regs.CSDWriteBlLen, 9)
	regs.Put(w, regs.Bit(0), 1)
	return words
}

// Blocks returns the number of addressable 512-byte blocks.
func (c *Card) Blocks() uint64 {
	return c.blocks
}

// Medium returns the storage of the card.
func (c *Card) Medium() Medium {
	return c.medium
}

// CID returns the identification of the card.
func (c *Card) CID() regs.CID {
	return c.cid
}

// RCA returns the published relative address, 0 before CMD3.
func (c *Card) RCA() uint16 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rca
}

// State returns the current card state.
func (c *Card) State() regs.CardState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// History returns the names of received commands.
func (c *Card) History() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.history...)
}

// ClearHistory forgets received commands.
func (c *Card) ClearHistory() {
	c.lock.Lock()
	c.history = nil
	c.lock.Unlock()
}

// FailOn makes the command fail with err until faults are cleared.
func (c *Card) FailOn(cmd uint8, err error) {
	c.lock.Lock()
	c.faults[fault{cmd: cmd}] = err
	c.lock.Unlock()
}

// FailOnApp makes the application command fail with err.
func (c *Card) FailOnApp(cmd uint8, err error) {
	c.lock.Lock()
	c.faults[fault{cmd: cmd, app: true}] = err
	c.lock.Unlock()
}

// ClearFaults removes all injected faults.
func (c *Card) ClearFaults() {
	c.lock.Lock()
	c.faults = make(map[fault]error)
	c.lock.Unlock()
}

func (c *Card) powerUp() {
	c.state = regs.StateIdle
	c.ocr = 0
	c.rca = 0
	c.appCmd = false
	c.busWidth = 0
	c.blockLen = sd.BlockSize
	c.errs = 0
	c.opCondPolls = 0
	c.writeBusy = 0
}

func isAppCommand(index uint8) bool {
	switch index {
	case sd.ACmdSetBusWidth, sd.ACmdSDStatus, sd.ACmdSendOpCond, sd.ACmdSendSCR:
		return true
	}
	return false
}

// Execute processes a command with the optional data phase.
func (c *Card) Execute(cmd *sd.Command, data *sd.Data) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	app := c.appCmd && isAppCommand(cmd.Index)
	c.appCmd = false
	name := fmt.Sprintf("CMD%d", cmd.Index)
	if app {
		name = "A" + name
	}
	c.history = append(c.history, name)
	if err, ok := c.faults[fault{cmd: cmd.Index, app: app}]; ok {
		glog.V(3).Infof("sim: %s injected fault: %v", name, err)
		return err
	}

	var err error
	if app {
		err = c.execApp(cmd, data)
	} else {
		err = c.exec(cmd, data)
	}
	if err == errIllegal {
		glog.V(3).Infof("sim: %s illegal in state %s", name, c.state)
		c.errs |= statusBit(regs.StatusIllegalCommand)
		return ErrNoResponse
	}
	glog.V(4).Infof("sim: %s arg=%08x resp=%08x state=%s", name, cmd.Argument, cmd.Response[0], c.state)
	return err
}

func (c *Card) status(state regs.CardState, app bool) uint32 {
	errs := c.errs
	c.errs = 0
	return regs.EncodeCardStatus(state, c.writeBusy == 0, app, errs)
}

func (c *Card) addressed(arg uint32) bool {
	return uint16(arg>>16) == c.rca
}

func (c *Card) exec(cmd *sd.Command, data *sd.Data) error {
	switch cmd.Index {
	case sd.CmdGoIdleState:
		c.powerUp()
		return nil
	case sd.CmdSendIfCond:
		if c.state != regs.StateIdle {
			return errIllegal
		}
		cmd.Response[0] = cmd.Argument & 0xfff
		return nil
	case sd.CmdAppCmd:
		if c.state > regs.StateReady && !c.addressed(cmd.Argument) {
			return ErrNoResponse
		}
		c.appCmd = true
		cmd.Response[0] = c.status(c.state, true)
		return nil
	case sd.CmdAllSendCID:
		if c.state != regs.StateReady {
			return errIllegal
		}
		c.state = regs.StateIdent
		cmd.Response = regs.EncodeCID(c.cid)
		return nil
	case sd.CmdSendRelativeAddr:
		if c.state != regs.StateIdent && c.state != regs.StateStby {
			return errIllegal
		}
		st := c.status(c.state, false)
		c.state = regs.StateStby
		c.rca = c.conf.RCA
		cmd.Response[0] = uint32(c.rca)<<16 | r6Status(st)
		return nil
	case sd.CmdSendCSD:
		if c.state != regs.StateStby {
			return errIllegal
		}
		if !c.addressed(cmd.Argument) {
			return ErrNoResponse
		}
		cmd.Response = c.csd
		return nil
	case sd.CmdSelectCard:
		return c.selectCard(cmd)
	case sd.CmdSendStatus:
		if c.state < regs.StateStby || c.state > regs.StatePrg {
			return errIllegal
		}
		if !c.addressed(cmd.Argument) {
			return ErrNoResponse
		}
		errs := c.errs
		c.errs = 0
		ready := c.writeBusy == 0
		if !ready {
			c.writeBusy--
		}
		cmd.Response[0] = regs.EncodeCardStatus(c.state, ready, false, errs)
		return nil
	case sd.CmdSetBlockLen:
		if c.state != regs.StateTran {
			return errIllegal
		}
		if cmd.Argument == 0 || cmd.Argument > sd.BlockSize {
			c.errs |= statusBit(regs.StatusBlockLenError)
		} else {
			c.blockLen = cmd.Argument
		}
		cmd.Response[0] = c.status(c.state, false)
		return nil
	case sd.CmdStopTransmission:
		if c.state != regs.StateData && c.state != regs.StateRcv {
			return errIllegal
		}
		cmd.Response[0] = c.status(c.state, false)
		c.state = regs.StateTran
		return nil
	case sd.CmdReadSingleBlock, sd.CmdReadMultipleBlock:
		return c.transfer(cmd, data, false)
	case sd.CmdWriteBlock, sd.CmdWriteMultiple:
		return c.transfer(cmd, data, true)
	}
	return errIllegal
}

func r6Status(st uint32) uint32 {
	return st&0x1fff |
		(st>>8)&(1<<15) |
		(st>>8)&(1<<14) |
		(st>>6)&(1<<13)
}

func (c *Card) selectCard(cmd *sd.Command) error {
	if cmd.Argument>>16 == 0 || !c.addressed(cmd.Argument) {
		// deselected cards don't respond.
		if c.state >= regs.StateTran && c.state <= regs.StatePrg {
			c.state = regs.StateStby
		}
		return nil
	}
	switch c.state {
	case regs.StateStby:
		cmd.Response[0] = c.status(c.state, false)
		c.state = regs.StateTran
	case regs.StateTran:
		cmd.Response[0] = c.status(c.state, false)
	default:
		return errIllegal
	}
	return nil
}

func (c *Card) transfer(cmd *sd.Command, data *sd.Data, write bool) error {
	if c.state != regs.StateTran {
		return errIllegal
	}
	multiple := cmd.Index == sd.CmdReadMultipleBlock || cmd.Index == sd.CmdWriteMultiple
	if data == nil || data.Write != write || data.BlockSize != c.blockLen {
		return ErrDataLength
	}
	count := uint64(1)
	if multiple {
		count = uint64(data.BlockCount)
	} else if data.BlockCount != 1 {
		return ErrDataLength
	}
	size := count * uint64(data.BlockSize)
	if uint64(len(data.Buffer)) < size {
		return ErrDataLength
	}

	off := uint64(cmd.Argument)
	if c.ocr.HighCapacity() {
		off *= sd.BlockSize
	} else if off%uint64(c.blockLen) != 0 {
		c.errs |= statusBit(regs.StatusAddressError)
	}
	if off+size > c.blocks*sd.BlockSize {
		c.errs |= statusBit(regs.StatusOutOfRange)
	}
	if c.errs&regs.StatusErrorMask != 0 {
		st := c.status(c.state, false)
		cmd.Response[0] = st
		return &StatusError{Cmd: cmd.Index, Status: st}
	}
	cmd.Response[0] = c.status(c.state, false)

	buf := data.Buffer[:size]
	if write {
		if _, err := c.medium.WriteAt(buf, int64(off)); err != nil {
			return err
		}
		c.writeBusy = c.conf.WriteBusyPolls
	} else if _, err := c.medium.ReadAt(buf, int64(off)); err != nil && err != io.EOF {
		return err
	}
	if multiple && !data.AutoStop {
		c.state = regs.StateData
		if write {
			c.state = regs.StateRcv
		}
	}
	return nil
}

func (c *Card) execApp(cmd *sd.Command, data *sd.Data) error {
	switch cmd.Index {
	case sd.ACmdSendOpCond:
		return c.sendOpCond(cmd)
	case sd.ACmdSendSCR:
		if c.state != regs.StateTran {
			return errIllegal
		}
		words := regs.EncodeSCR(c.scr)
		return c.sendData(cmd, data, regs.BytesFromWords(words[:]))
	case sd.ACmdSetBusWidth:
		if c.state != regs.StateTran {
			return errIllegal
		}
		switch cmd.Argument & 3 {
		case 0:
			c.busWidth = 0
		case 2:
			c.busWidth = 2
		default:
			c.errs |= statusBit(regs.StatusError)
		}
		cmd.Response[0] = c.status(c.state, true)
		return nil
	case sd.ACmdSDStatus:
		if c.state != regs.StateTran {
			return errIllegal
		}
		st := c.sdStatus
		st.BusWidth = c.busWidth
		return c.sendData(cmd, data, regs.EncodeSDStatus(st))
	}
	return errIllegal
}

func (c *Card) sendOpCond(cmd *sd.Command) error {
	if c.state != regs.StateIdle && c.state != regs.StateReady {
		return errIllegal
	}
	if cmd.Argument&uint32(cardVoltageWindow) == 0 {
		// voltage mismatch makes the card inactive.
		return ErrNoResponse
	}
	c.opCondPolls++
	hcs := cmd.Argument&uint32(regs.OCRCapacity) != 0
	ocr := cardVoltageWindow
	// high capacity cards stay busy unless the host supports them.
	if c.opCondPolls > c.conf.BusyPolls && (!c.conf.HighCapacity || hcs) {
		ocr |= regs.OCRPowerUp
		if c.conf.HighCapacity {
			ocr |= regs.OCRCapacity
		}
		c.state = regs.StateReady
		c.ocr = ocr
	}
	cmd.Response[0] = uint32(ocr)
	return nil
}

func (c *Card) sendData(cmd *sd.Command, data *sd.Data, b []byte) error {
	if data == nil || data.Write || data.BlockCount != 1 || int(data.BlockSize) != len(b) || len(data.Buffer) < len(b) {
		return ErrDataLength
	}
	copy(data.Buffer, b)
	cmd.Response[0] = c.status(c.state, true)
	return nil
}
