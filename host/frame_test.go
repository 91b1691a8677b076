package host

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/netplay/limits"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(appendFrame(nil, frameData, 1, []byte{7, 0xAA}))
	buf.Write(appendFrame(nil, frameData, 0, nil))

	kind, channel, body, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameData, kind)
	assert.Equal(t, byte(1), channel)
	assert.Equal(t, []byte{7, 0xAA}, body)

	_, _, body, err = readFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, body)

	_, _, _, err = readFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedBody(t *testing.T) {
	hdr := []byte{frameData, 0}
	hdr = binary.BigEndian.AppendUint32(hdr, limits.MaxFrameBody+1)
	_, _, _, err := readFrame(bytes.NewReader(hdr))
	assert.True(t, errors.Is(err, ErrPacketTooLarge))
}

func TestReadFrameTruncated(t *testing.T) {
	frame := appendFrame(nil, frameData, 0, []byte("hello"))
	_, _, _, err := readFrame(bytes.NewReader(frame[:len(frame)-2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestHandshakeEncoding(t *testing.T) {
	v, err := decodeHandshake(encodeHandshake(0xDEADBEEF))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)

	_, err = decodeHandshake([]byte{1, 2})
	assert.ErrorIs(t, err, ErrUnexpectedFrame)
}
