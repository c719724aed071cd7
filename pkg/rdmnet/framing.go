package rdmnet

import (
	"fmt"
	"io"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// readRootLayerFrame reads exactly one root-layer PDU off a TCP stream:
// the 3-byte flags+length header, then the remainder the header
// declares. UnmarshalRootLayerPDU expects a single complete PDU per
// call, so the transport is responsible for this framing (spec.md
// §4.1).
func readRootLayerFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, acn.RootLayerHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length, err := wire.GetFlagsLength(header)
	if err != nil {
		return nil, fmt.Errorf("rdmnet: framing: %w", err)
	}
	if int(length) < acn.RootLayerHeaderSize {
		return nil, fmt.Errorf("rdmnet: framing: PDU length %d shorter than header", length)
	}

	frame := make([]byte, length)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[acn.RootLayerHeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
