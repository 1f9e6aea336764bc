package regs

// CardState is the current_state field reported in the card status.
type CardState uint8

// Card states.
const (
	StateIdle CardState = iota
	StateReady
	StateIdent
	StateStby
	StateTran
	StateData
	StateRcv
	StatePrg
	StateDis
)

var cardStateNames = [...]string{
	"idle", "ready", "ident", "stby", "tran", "data", "rcv", "prg", "dis",
}

// String implements fmt.Stringer.
func (s CardState) String() string {
	if int(s) < len(cardStateNames) {
		return cardStateNames[s]
	}
	return "reserved"
}

// Card status (R1) fields.
var (
	StatusOutOfRange       = Bit(31)
	StatusAddressError     = Bit(30)
	StatusBlockLenError    = Bit(29)
	StatusEraseSeqError    = Bit(28)
	StatusEraseParam       = Bit(27)
	StatusWPViolation      = Bit(26)
	StatusCardIsLocked     = Bit(25)
	StatusLockUnlockFailed = Bit(24)
	StatusComCRCError      = Bit(23)
	StatusIllegalCommand   = Bit(22)
	StatusCardECCFailed    = Bit(21)
	StatusCCError          = Bit(20)
	StatusError            = Bit(19)
	StatusCurrentState     = Bits(12, 9)
	StatusReadyForData     = Bit(8)
	StatusAppCmd           = Bit(5)
)

// StatusErrorMask covers all error bits of the card status.
// CARD_IS_LOCKED reports a state, not an error, and is left out.
const StatusErrorMask uint32 = 0xfff80000 &^ (1 << 25)

// CardStatus is the decoded 32-bit card status.
type CardStatus struct {
	Raw           uint32
	AppCmd        bool
	ReadyForData  bool
	BlockLenError bool
	CurrentState  CardState
}

// DecodeCardStatus decodes the card status from an R1/R1b response word.
func DecodeCardStatus(word uint32) CardStatus {
	r := Register{Words: []uint32{word}}
	return CardStatus{
		Raw:           word,
		AppCmd:        r.Flag(StatusAppCmd),
		ReadyForData:  r.Flag(StatusReadyForData),
		BlockLenError: r.Flag(StatusBlockLenError),
		CurrentState:  CardState(r.Field(StatusCurrentState)),
	}
}

// Errors returns the error bits reported in the status.
// CARD_IS_LOCKED is a state flag and not included.
func (s CardStatus) Errors() uint32 {
	return s.Raw & StatusErrorMask
}

// Locked reports CARD_IS_LOCKED.
func (s CardStatus) Locked() bool {
	return s.Raw&(1<<StatusCardIsLocked.Start) != 0
}

// EncodeCardStatus builds a status word, used by card emulation.
func EncodeCardStatus(state CardState, readyForData, appCmd bool, errs uint32) uint32 {
	words := []uint32{errs & StatusErrorMask}
	Put(words, StatusCurrentState, uint32(state))
	if readyForData {
		Put(words, StatusReadyForData, 1)
	}
	if appCmd {
		Put(words, StatusAppCmd, 1)
	}
	return words[0]
}
