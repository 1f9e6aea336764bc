package sim

import (
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/sdcard.go/pkg/sd"
)

var (
	// ErrNoCard indicates the slot is empty.
	ErrNoCard = errors.New("no card in slot")
	// ErrTransferSize indicates the block count exceeds the host limit.
	ErrTransferSize = errors.New("transfer size exceeds host limit")
)

// Host is an emulated host controller slot implementing sd.Transport.
type Host struct {
	conf Config

	lock       sync.Mutex
	card       *Card
	listeners  []sd.PresenceListener
	configured []sd.TransportConfig
	clock      sd.ClockTier
	width      sd.BusWidth
	initClocks int
}

// NewHost creates an empty slot.
func NewHost(conf *Config) *Host {
	if conf == nil {
		conf = Default()
	}
	return &Host{conf: *conf, width: sd.BusWidth1}
}

// Insert puts the card into the slot and notifies listeners.
func (h *Host) Insert(card *Card) {
	h.lock.Lock()
	h.card = card
	card.lock.Lock()
	card.powerUp()
	card.lock.Unlock()
	h.clock, h.width = sd.ClockIdentification, sd.BusWidth1
	listeners := append([]sd.PresenceListener(nil), h.listeners...)
	h.lock.Unlock()
	glog.V(2).Info("sim: card inserted")
	for _, l := range listeners {
		l.CardInserted()
	}
}

// Remove takes the card out of the slot and notifies listeners.
func (h *Host) Remove() *Card {
	h.lock.Lock()
	card := h.card
	h.card = nil
	listeners := append([]sd.PresenceListener(nil), h.listeners...)
	h.lock.Unlock()
	if card == nil {
		return nil
	}
	glog.V(2).Info("sim: card removed")
	for _, l := range listeners {
		l.CardRemoved()
	}
	return card
}

// Card returns the inserted card, nil when empty.
func (h *Host) Card() *Card {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.card
}

// Transfer implements sd.Transport.
func (h *Host) Transfer(cmd *sd.Command, data *sd.Data) error {
	card := h.Card()
	if card == nil {
		return ErrNoCard
	}
	if data != nil {
		if data.BlockCount == 0 || data.BlockCount > h.MaxBlocksPerTransfer() {
			return ErrTransferSize
		}
		if len(data.Buffer) < data.Len() {
			return ErrDataLength
		}
	}
	if err := card.Execute(cmd, data); err != nil {
		return err
	}
	if cmd.ResponseType == sd.ResponseR2 && h.conf.CRCStripped {
		cmd.Response = stripCRC(cmd.Response)
	}
	return nil
}

// stripCRC drops the low 8 bits, as hosts not storing CRC7 and end bit do.
func stripCRC(w [4]uint32) [4]uint32 {
	return [4]uint32{
		w[0] >> 8,
		w[0]<<24 | w[1]>>8,
		w[1]<<24 | w[2]>>8,
		w[2]<<24 | w[3]>>8,
	}
}

// Configure implements sd.Transport.
func (h *Host) Configure(conf sd.TransportConfig) error {
	h.lock.Lock()
	h.configured = append(h.configured, conf)
	h.lock.Unlock()
	return nil
}

// Configured returns all configurations applied.
func (h *Host) Configured() []sd.TransportConfig {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]sd.TransportConfig(nil), h.configured...)
}

// SetClock implements sd.Transport.
func (h *Host) SetClock(c sd.ClockTier) error {
	h.lock.Lock()
	h.clock = c
	h.lock.Unlock()
	glog.V(3).Infof("sim: clock %d Hz", c.Frequency())
	return nil
}

// Clock returns the current clock tier.
func (h *Host) Clock() sd.ClockTier {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.clock
}

// SetBusWidth implements sd.Transport.
func (h *Host) SetBusWidth(w sd.BusWidth) error {
	if w != sd.BusWidth1 && w != sd.BusWidth4 {
		return errors.New("unsupported bus width")
	}
	h.lock.Lock()
	h.width = w
	h.lock.Unlock()
	return nil
}

// BusWidth returns the current bus width.
func (h *Host) BusWidth() sd.BusWidth {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.width
}

// Reset implements sd.Transport.
func (h *Host) Reset(mode sd.ResetMode) error {
	if mode == sd.ResetAll {
		h.lock.Lock()
		h.clock, h.width = sd.ClockIdentification, sd.BusWidth1
		h.lock.Unlock()
	}
	return nil
}

// SendInitializationClocks implements sd.Transport.
func (h *Host) SendInitializationClocks() error {
	h.lock.Lock()
	h.initClocks++
	h.lock.Unlock()
	return nil
}

// MaxBlocksPerTransfer implements sd.Transport.
func (h *Host) MaxBlocksPerTransfer() uint32 {
	if h.conf.MaxBlocks == 0 {
		return 1
	}
	return h.conf.MaxBlocks
}

// R2CRCStripped implements sd.Transport.
func (h *Host) R2CRCStripped() bool {
	return h.conf.CRCStripped
}

// IsCardInserted implements sd.Transport.
func (h *Host) IsCardInserted() bool {
	return h.Card() != nil
}

// AddPresenceListener implements sd.Transport.
func (h *Host) AddPresenceListener(l sd.PresenceListener) {
	h.lock.Lock()
	h.listeners = append(h.listeners, l)
	h.lock.Unlock()
}
