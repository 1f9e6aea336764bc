package sd

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// Driver drives a single card through a Transport.
// It's not safe for concurrent use.
type Driver struct {
	conf      Config
	transport Transport

	transportReady bool
	ready          bool
	card           Card
}

// NewDriver creates a Driver. A nil conf uses the default config.
func NewDriver(t Transport, conf *Config) *Driver {
	if conf == nil {
		conf = Default()
	}
	return &Driver{conf: *conf, transport: t}
}

// Config returns the config in use.
func (d *Driver) Config() Config {
	return d.conf
}

// Transport returns the underlying transport.
func (d *Driver) Transport() Transport {
	return d.transport
}

// InitTransport configures the host once, subsequent calls are no-op.
func (d *Driver) InitTransport() error {
	if d.transportReady {
		return nil
	}
	err := d.transport.Configure(TransportConfig{
		Frequency:           d.conf.InitFrequency,
		ReadWatermarkLevel:  d.conf.ReadWatermark,
		WriteWatermarkLevel: d.conf.WriteWatermark,
	})
	if err != nil {
		return errors.Wrap(err, "configure transport")
	}
	d.transportReady = true
	glog.V(2).Infof("transport configured at %d Hz", d.conf.InitFrequency)
	return nil
}

// Ready tells if the card completed initialization.
func (d *Driver) Ready() bool {
	return d.ready
}

// Card returns a snapshot of the card record.
func (d *Driver) Card() Card {
	c := d.card
	if c.SDStatus != nil {
		c.SDStatus = append([]byte(nil), c.SDStatus...)
	}
	return c
}

// Eject forgets the initialized card.
func (d *Driver) Eject() {
	d.ready = false
	d.card.Acquired = 0
}

// IsCardInserted tells if a card is in the slot.
func (d *Driver) IsCardInserted() bool {
	return d.transport.IsCardInserted()
}

// AddPresenceListener registers a card presence listener on the transport.
func (d *Driver) AddPresenceListener(l PresenceListener) {
	d.transport.AddPresenceListener(l)
}

// OnCardInserted registers a callback for card insertion.
func (d *Driver) OnCardInserted(fn func()) {
	d.transport.AddPresenceListener(PresenceFuncs{Inserted: fn})
}

// OnCardRemoved registers a callback for card removal.
func (d *Driver) OnCardRemoved(fn func()) {
	d.transport.AddPresenceListener(PresenceFuncs{Removed: fn})
}

func (d *Driver) csd() (regs.Register, error) {
	r, err := d.card.CSDRegister()
	if err != nil {
		return r, err
	}
	if regs.DecodeCSDField(r, regs.CSDStructure) != regs.CSDVersion1 {
		return r, ErrUnsupportedCard
	}
	return r, nil
}

// CapacityBytes returns the card capacity from CSD.
func (d *Driver) CapacityBytes() (uint64, error) {
	r, err := d.csd()
	if err != nil {
		return 0, err
	}
	return regs.CapacityBytes(r)
}

// BlockCount returns the number of 512-byte blocks.
func (d *Driver) BlockCount() (uint64, error) {
	c, err := d.CapacityBytes()
	if err != nil {
		return 0, err
	}
	return c / BlockSize, nil
}

// MaxReadBlockLength returns 2^READ_BL_LEN.
func (d *Driver) MaxReadBlockLength() (uint16, error) {
	r, err := d.csd()
	if err != nil {
		return 0, err
	}
	return regs.MaxReadBlockLength(r)
}

// MaxWriteBlockLength returns 2^WRITE_BL_LEN.
func (d *Driver) MaxWriteBlockLength() (uint16, error) {
	r, err := d.csd()
	if err != nil {
		return 0, err
	}
	return regs.MaxWriteBlockLength(r)
}

// FileFormat returns the file format declared in CSD.
func (d *Driver) FileFormat() (regs.FileFormat, error) {
	r, err := d.csd()
	if err != nil {
		return regs.FileFormatReserved, err
	}
	return regs.DecodeFileFormat(r)
}

func (d *Driver) rcaArg() uint32 {
	if !d.card.Has(AcquiredRCA) {
		return 0
	}
	return uint32(d.card.RCA) << 16
}

func (d *Driver) command(index uint8, arg uint32, rt ResponseType, data *Data) (*Command, error) {
	cmd := &Command{Index: index, Argument: arg, Type: CommandNormal, ResponseType: rt}
	glog.V(4).Infof("CMD%d arg=%08x %s", index, arg, rt)
	if err := d.transport.Transfer(cmd, data); err != nil {
		return cmd, &TransportError{Cmd: index, Err: err}
	}
	return cmd, nil
}

func (d *Driver) appCommand(index uint8, arg uint32, rt ResponseType, data *Data) (*Command, error) {
	cmd, err := d.command(CmdAppCmd, d.rcaArg(), ResponseR1, nil)
	if err != nil {
		return cmd, err
	}
	if !regs.DecodeCardStatus(cmd.Response[0]).AppCmd {
		return cmd, &ProtocolError{Cmd: CmdAppCmd, Reason: "APP_CMD not acknowledged"}
	}
	cmd = &Command{Index: index, Argument: arg, Type: CommandNormal, ResponseType: rt}
	glog.V(4).Infof("ACMD%d arg=%08x %s", index, arg, rt)
	if err := d.transport.Transfer(cmd, data); err != nil {
		return cmd, &TransportError{Cmd: index, App: true, Err: err}
	}
	return cmd, nil
}
