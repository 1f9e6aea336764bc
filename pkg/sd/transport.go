package sd

// Command indices.
const (
	CmdGoIdleState       uint8 = 0
	CmdAllSendCID        uint8 = 2
	CmdSendRelativeAddr  uint8 = 3
	CmdSelectCard        uint8 = 7
	CmdSendIfCond        uint8 = 8
	CmdSendCSD           uint8 = 9
	CmdStopTransmission  uint8 = 12
	CmdSendStatus        uint8 = 13
	CmdSetBlockLen       uint8 = 16
	CmdReadSingleBlock   uint8 = 17
	CmdReadMultipleBlock uint8 = 18
	CmdWriteBlock        uint8 = 24
	CmdWriteMultiple     uint8 = 25
	CmdAppCmd            uint8 = 55
)

// Application command indices, sent after CmdAppCmd.
const (
	ACmdSetBusWidth uint8 = 6
	ACmdSDStatus    uint8 = 13
	ACmdSendOpCond  uint8 = 41
	ACmdSendSCR     uint8 = 51
)

// CommandType classifies the command for the host controller.
type CommandType int

// Command types.
const (
	CommandNormal CommandType = iota
	CommandSuspend
	CommandResume
	CommandAbort
)

// ResponseType is the expected response format.
type ResponseType int

// Response types.
const (
	ResponseNone ResponseType = iota
	ResponseR1
	ResponseR1b
	ResponseR2
	ResponseR3
	ResponseR6
	ResponseR7
)

var responseTypeNames = [...]string{"none", "R1", "R1b", "R2", "R3", "R6", "R7"}

// String implements fmt.Stringer.
func (t ResponseType) String() string {
	if t >= 0 && int(t) < len(responseTypeNames) {
		return responseTypeNames[t]
	}
	return "unknown"
}

// Command is a single command issued through a Transport.
type Command struct {
	Index        uint8
	Argument     uint32
	Type         CommandType
	ResponseType ResponseType
	// Response is filled by the Transport. For 48-bit responses Response[0]
	// holds the 32-bit payload. For R2, Response[0] is the most
	// significant word.
	Response [4]uint32
}

// Data describes the data phase of a command.
type Data struct {
	BlockSize  uint32
	BlockCount uint32
	// Buffer receives read data, or holds the data to write.
	Buffer []byte
	Write  bool
	// AutoStop asks the host to issue STOP_TRANSMISSION after
	// a multiple block transfer.
	AutoStop bool
}

// Len returns the number of bytes of the data phase.
func (d *Data) Len() int {
	return int(d.BlockSize * d.BlockCount)
}

// ClockTier selects the bus clock frequency.
type ClockTier int

// Clock tiers.
const (
	// ClockIdentification is used during card identification (≤400 kHz).
	ClockIdentification ClockTier = iota
	// ClockDefault is the default speed mode (≤25 MHz).
	ClockDefault
	// ClockHighSpeed is the high speed mode (≤50 MHz).
	ClockHighSpeed
)

// Frequency returns the nominal frequency in Hz.
func (c ClockTier) Frequency() uint32 {
	switch c {
	case ClockDefault:
		return 25000000
	case ClockHighSpeed:
		return 50000000
	}
	return 400000
}

// BusWidth is the number of data lines.
type BusWidth int

// Bus widths.
const (
	BusWidth1 BusWidth = 1
	BusWidth4 BusWidth = 4
	BusWidth8 BusWidth = 8
)

// ResetMode selects which part of the host controller to reset.
type ResetMode int

// Reset modes.
const (
	ResetAll ResetMode = iota
	ResetCommand
	ResetData
)

// TransportConfig is the one-time host controller setup.
type TransportConfig struct {
	Frequency           uint32
	ReadWatermarkLevel  uint32
	WriteWatermarkLevel uint32
}

// PresenceListener is notified about card insertion and removal.
// It's called outside of any blocking transport call, possibly
// from another goroutine, and must not block or issue commands.
type PresenceListener interface {
	CardInserted()
	CardRemoved()
}

// Transport is the blocking command/response primitive of a host
// controller slot.
type Transport interface {
	// Transfer sends the command and performs the optional data phase,
	// blocking until completion or failure.
	Transfer(cmd *Command, data *Data) error
	// Configure performs the one-time host setup.
	Configure(TransportConfig) error
	SetClock(ClockTier) error
	SetBusWidth(BusWidth) error
	Reset(ResetMode) error
	// SendInitializationClocks sends the 80 clock power up sequence.
	SendInitializationClocks() error
	// MaxBlocksPerTransfer is the largest BlockCount of a single Transfer.
	MaxBlocksPerTransfer() uint32
	// R2CRCStripped reports R2 responses lack the CRC7 and end bit, so
	// register bits are shifted by regs.CRCTrailerBits.
	R2CRCStripped() bool

	IsCardInserted() bool
	AddPresenceListener(PresenceListener)
}

// PresenceFuncs is the func form of PresenceListener.
type PresenceFuncs struct {
	Inserted func()
	Removed  func()
}

// CardInserted implements PresenceListener.
func (f PresenceFuncs) CardInserted() {
	if f.Inserted != nil {
		f.Inserted()
	}
}

// CardRemoved implements PresenceListener.
func (f PresenceFuncs) CardRemoved() {
	if f.Removed != nil {
		f.Removed()
	}
}

// PresenceEvent is a card presence change.
type PresenceEvent struct {
	Inserted bool
}

// PresenceChan pushes presence changes into a channel.
// Events are dropped when the channel is full.
type PresenceChan chan PresenceEvent

// CardInserted implements PresenceListener.
func (c PresenceChan) CardInserted() {
	c.push(PresenceEvent{Inserted: true})
}

// CardRemoved implements PresenceListener.
func (c PresenceChan) CardRemoved() {
	c.push(PresenceEvent{})
}

func (c PresenceChan) push(ev PresenceEvent) {
	select {
	case c <- ev:
	default:
	}
}
