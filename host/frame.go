package host

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opd-ai/netplay/limits"
)

// Stream frame kinds. A connection carries exactly one bidirectional stream
// which starts with a hello from the client and a welcome from the server.
const (
	frameHello   byte = 1
	frameWelcome byte = 2
	frameData    byte = 3
)

// frameHeaderSize is kind(1) + channel(1) + body length(4).
const frameHeaderSize = 6

// appendFrame appends an encoded stream frame to dst.
func appendFrame(dst []byte, kind, channel byte, body []byte) []byte {
	dst = append(dst, kind, channel)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...)
}

// readFrame reads one stream frame. The returned body is freshly allocated.
func readFrame(r io.Reader) (kind, channel byte, body []byte, err error) {
	var hdr [frameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[2:])
	if n > limits.MaxFrameBody {
		return 0, 0, nil, fmt.Errorf("%w: frame body %d exceeds limit %d", ErrPacketTooLarge, n, limits.MaxFrameBody)
	}
	body = make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, 0, nil, err
	}
	return hdr[0], hdr[1], body, nil
}

func encodeHandshake(data uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, data)
}

func decodeHandshake(body []byte) (uint32, error) {
	if len(body) != 4 {
		return 0, fmt.Errorf("%w: handshake body of %d bytes", ErrUnexpectedFrame, len(body))
	}
	return binary.BigEndian.Uint32(body), nil
}
