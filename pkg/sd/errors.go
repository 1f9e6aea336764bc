package sd

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

var (
	// ErrRetryExhausted indicates the card never reported ready during
	// voltage negotiation.
	ErrRetryExhausted = errors.New("voltage negotiation retries exhausted")
	// ErrUnsupportedCard indicates the card uses an unsupported CSD structure.
	ErrUnsupportedCard = pkgerrors.Wrap(regs.ErrUnsupportedCSD, "unsupported card")
	// ErrNotInitialized indicates the card hasn't been initialized.
	ErrNotInitialized = errors.New("card not initialized")
	// ErrNotAcquired indicates the register wasn't read from the card.
	ErrNotAcquired = errors.New("register not acquired")
	// ErrNotReady indicates the card didn't become ready for data.
	ErrNotReady = errors.New("card not ready for data")
	// ErrShortBuffer indicates the buffer can't hold the requested blocks.
	ErrShortBuffer = errors.New("buffer too small")
	// ErrOutOfRange indicates blocks beyond the card capacity or the
	// addressable range.
	ErrOutOfRange = errors.New("block address out of range")
	// ErrUnaligned indicates the offset or length isn't block aligned.
	ErrUnaligned = errors.New("unaligned access")
	// ErrNoCard indicates no card is inserted.
	ErrNoCard = errors.New("no card")
)

// TransportError wraps a failure of the underlying transport.
type TransportError struct {
	Cmd uint8
	App bool
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", cmdName(e.Cmd, e.App), e.Err)
}

// Unwrap returns the transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates a response failing a semantic check.
type ProtocolError struct {
	Cmd    uint8
	App    bool
	Reason string
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol violation: %s", cmdName(e.Cmd, e.App), e.Reason)
}

func cmdName(cmd uint8, app bool) string {
	if app {
		return fmt.Sprintf("ACMD%d", cmd)
	}
	return fmt.Sprintf("CMD%d", cmd)
}

// IsTransportError tells if err is caused by the transport.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsProtocolError tells if err is a protocol violation.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// IsRetryExhausted tells if err is ErrRetryExhausted.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// IsUnsupportedCard tells if err is ErrUnsupportedCard.
func IsUnsupportedCard(err error) bool {
	return errors.Is(err, ErrUnsupportedCard)
}

// ErrorKind names the class of an error for reporting.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTransportError(err):
		return "transport"
	case IsProtocolError(err):
		return "protocol"
	case IsRetryExhausted(err):
		return "retry-exhausted"
	case IsUnsupportedCard(err):
		return "unsupported-card"
	}
	return "other"
}
