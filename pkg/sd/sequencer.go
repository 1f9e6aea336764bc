package sd

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

type initStep struct {
	name string
	run  func(d *Driver, ctx context.Context) error
}

// initSteps is the card identification and setup sequence, in order.
var initSteps = []initStep{
	{"go idle", (*Driver).goIdle},
	{"interface condition", (*Driver).sendIfCond},
	{"voltage negotiation", (*Driver).negotiateVoltage},
	{"card identification", (*Driver).readCID},
	{"relative address", (*Driver).readRCA},
	{"card specific data", (*Driver).readCSD},
	{"select card", (*Driver).selectCard},
	{"configuration register", (*Driver).readSCR},
	{"bus width", (*Driver).setBusWidth},
	{"block length", (*Driver).setBlockLen},
	{"card status", (*Driver).readStatus},
	{"sd status", (*Driver).readSDStatus},
}

// InitSteps returns the names of initialization steps, in order.
func InitSteps() []string {
	names := make([]string, len(initSteps))
	for n, s := range initSteps {
		names[n] = s.name
	}
	return names
}

// InitCard runs the initialization sequence. It stops at the first
// failing step, and returns the error wrapped with the step name.
// The card is ready only when every step succeeds.
func (d *Driver) InitCard(ctx context.Context) error {
	d.ready = false
	d.card.Acquired = 0
	d.card.CRCStripped = d.transport.R2CRCStripped()
	for _, step := range initSteps {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "init %s", step.name)
		}
		glog.V(2).Infof("init step: %s", step.name)
		if err := step.run(d, ctx); err != nil {
			glog.Warningf("init step %s failed (%s): %v", step.name, ErrorKind(err), err)
			return errors.Wrapf(err, "init %s", step.name)
		}
	}
	d.ready = true
	glog.Infof("card %04x ready", d.card.RCA)
	return nil
}

func (d *Driver) goIdle(ctx context.Context) error {
	if err := d.transport.Reset(ResetCommand); err != nil {
		return &TransportError{Cmd: CmdGoIdleState, Err: err}
	}
	if err := d.transport.SendInitializationClocks(); err != nil {
		return &TransportError{Cmd: CmdGoIdleState, Err: err}
	}
	_, err := d.command(CmdGoIdleState, 0, ResponseNone, nil)
	return err
}

func (d *Driver) sendIfCond(ctx context.Context) error {
	cmd, err := d.command(CmdSendIfCond, ifCondVoltage|checkPattern, ResponseR7, nil)
	if err != nil {
		return err
	}
	if echo := cmd.Response[0] & 0xff; echo != checkPattern {
		return &ProtocolError{Cmd: CmdSendIfCond, Reason: fmt.Sprintf("check pattern %02x, expect %02x", echo, checkPattern)}
	}
	return nil
}

func (d *Driver) negotiateVoltage(ctx context.Context) error {
	arg := uint32(ocrVoltageWindow)
	if d.conf.HighCapacity {
		arg |= uint32(regs.OCRCapacity)
	}
	for attempt := 1; attempt <= d.conf.VoltageRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := d.appCommand(ACmdSendOpCond, arg, ResponseR3, nil)
		if err != nil {
			glog.V(4).Infof("ACMD41 attempt %d: %v", attempt, err)
			continue
		}
		if ocr := regs.OCR(cmd.Response[0]); ocr.Ready() {
			d.card.OCR = ocr
			d.card.Acquired |= AcquiredOCR
			glog.V(2).Infof("OCR %08x after %d attempts", uint32(ocr), attempt)
			return nil
		}
	}
	return ErrRetryExhausted
}

func (d *Driver) readCID(ctx context.Context) error {
	cmd, err := d.command(CmdAllSendCID, 0, ResponseR2, nil)
	if err != nil {
		return err
	}
	d.card.CID = cmd.Response
	d.card.Acquired |= AcquiredCID
	return nil
}

func (d *Driver) readRCA(ctx context.Context) error {
	cmd, err := d.command(CmdSendRelativeAddr, 0, ResponseR6, nil)
	if err != nil {
		return err
	}
	d.card.RCA = uint16(cmd.Response[0] >> 16)
	d.card.Acquired |= AcquiredRCA
	return nil
}

func (d *Driver) readCSD(ctx context.Context) error {
	cmd, err := d.command(CmdSendCSD, d.rcaArg(), ResponseR2, nil)
	if err != nil {
		return err
	}
	d.card.CSD = cmd.Response
	d.card.Acquired |= AcquiredCSD
	return nil
}

func (d *Driver) selectCard(ctx context.Context) error {
	cmd, err := d.command(CmdSelectCard, d.rcaArg(), ResponseR1b, nil)
	if err != nil {
		return err
	}
	// the status is sampled before the transition to tran.
	if st := regs.DecodeCardStatus(cmd.Response[0]); st.CurrentState != regs.StateStby {
		return &ProtocolError{Cmd: CmdSelectCard, Reason: fmt.Sprintf("card in state %s, expect stby", st.CurrentState)}
	}
	if err := d.transport.SetClock(ClockDefault); err != nil {
		return &TransportError{Cmd: CmdSelectCard, Err: err}
	}
	return nil
}

func (d *Driver) readSCR(ctx context.Context) error {
	buf := make([]byte, 8)
	_, err := d.appCommand(ACmdSendSCR, 0, ResponseR1, &Data{BlockSize: 8, BlockCount: 1, Buffer: buf})
	if err != nil {
		return err
	}
	words, err := regs.WordsFromBytes(buf)
	if err != nil {
		return err
	}
	copy(d.card.SCR[:], words)
	d.card.Acquired |= AcquiredSCR
	return nil
}

func (d *Driver) setBusWidth(ctx context.Context) error {
	if _, err := d.appCommand(ACmdSetBusWidth, busWidth4Arg, ResponseR1, nil); err != nil {
		return err
	}
	if err := d.transport.SetBusWidth(BusWidth4); err != nil {
		return &TransportError{Cmd: ACmdSetBusWidth, App: true, Err: err}
	}
	return nil
}

func (d *Driver) setBlockLen(ctx context.Context) error {
	_, err := d.command(CmdSetBlockLen, BlockSize, ResponseR1, nil)
	return err
}

func (d *Driver) readStatus(ctx context.Context) error {
	st, err := d.sendStatus()
	if err != nil {
		return err
	}
	if !st.ReadyForData {
		return &ProtocolError{Cmd: CmdSendStatus, Reason: "card not ready for data"}
	}
	return nil
}

func (d *Driver) readSDStatus(ctx context.Context) error {
	buf := make([]byte, regs.SDStatusBytes)
	_, err := d.appCommand(ACmdSDStatus, 0, ResponseR1, &Data{BlockSize: regs.SDStatusBytes, BlockCount: 1, Buffer: buf})
	if err != nil {
		return err
	}
	d.card.SDStatus = buf
	d.card.Acquired |= AcquiredSDStatus
	return nil
}

func (d *Driver) sendStatus() (regs.CardStatus, error) {
	cmd, err := d.command(CmdSendStatus, d.rcaArg(), ResponseR1, nil)
	if err != nil {
		return regs.CardStatus{}, err
	}
	d.card.Status = cmd.Response[0]
	d.card.Acquired |= AcquiredStatus
	return regs.DecodeCardStatus(cmd.Response[0]), nil
}

// Status queries the current card status.
func (d *Driver) Status() (regs.CardStatus, error) {
	if !d.ready {
		return regs.CardStatus{}, ErrNotInitialized
	}
	return d.sendStatus()
}
