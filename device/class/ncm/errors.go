package ncm

import (
	"fmt"

	"github.com/ardnew/usbncm/pkg"
)

// ProtocolError reports a malformed NTB. The rest of the offending NTB is
// dropped; the Receiver remains usable.
type ProtocolError struct {
	Reason string // What was wrong
	Offset int    // Byte offset in the NTB where it was detected
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ncm: malformed NTB: %s at offset %d", e.Reason, e.Offset)
}

// Unwrap lets errors.Is(err, pkg.ErrProtocol) match.
func (e *ProtocolError) Unwrap() error {
	return pkg.ErrProtocol
}

func protocolError(reason string, offset int) error {
	return &ProtocolError{Reason: reason, Offset: offset}
}
