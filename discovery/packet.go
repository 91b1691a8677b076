package discovery

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/cryptobyte"

	"github.com/opd-ai/netplay/limits"
)

// Signature starts every discovery packet.
const Signature uint64 = 0x2095A59FF0BFBBEF

// MessageType identifies a discovery packet.
type MessageType uint8

const (
	MessageRequest  MessageType = 1
	MessageResponse MessageType = 2
)

// headerSize is the signature plus the message type.
const headerSize = 9

// Feature flags carried in a response.
const (
	flagPassword  = 1 << 0
	flagWhitelist = 1 << 1
)

var (
	// ErrBadSignature indicates a packet that does not start with Signature
	ErrBadSignature = errors.New("bad discovery signature")

	// ErrUnknownMessage indicates an unknown message type
	ErrUnknownMessage = errors.New("unknown discovery message")

	// ErrTruncated indicates a packet shorter than its declared fields
	ErrTruncated = errors.New("truncated discovery packet")

	// ErrFieldTooLong indicates a field that does not fit its encoding
	ErrFieldTooLong = errors.New("discovery field too long")
)

// Response is the body of a discovery response.
type Response struct {
	Port           uint16
	ServerID       uuid.UUID
	Name           string
	HasPassword    bool
	HasWhitelist   bool
	GameMode       uint8
	CurrentPlayers uint32
	MaxPlayers     uint32
	LevelName      string
	// Version is the advertised build version, see PackVersion.
	Version uint64
}

// MarshalRequest returns an encoded discovery request.
func MarshalRequest() []byte {
	b := cryptobyte.NewBuilder(make([]byte, 0, headerSize))
	b.AddUint64(Signature)
	b.AddUint8(uint8(MessageRequest))
	return b.BytesOrPanic()
}

// MarshalResponse encodes r. Names longer than limits.MaxNameLength are rejected.
func MarshalResponse(r Response) ([]byte, error) {
	if err := limits.ValidateName(r.Name); err != nil {
		return nil, fmt.Errorf("%w: server name: %v", ErrFieldTooLong, err)
	}
	if err := limits.ValidateName(r.LevelName); err != nil {
		return nil, fmt.Errorf("%w: level name: %v", ErrFieldTooLong, err)
	}

	var flags uint64
	if r.HasPassword {
		flags |= flagPassword
	}
	if r.HasWhitelist {
		flags |= flagWhitelist
	}

	b := cryptobyte.NewBuilder(make([]byte, 0, 64+len(r.Name)+len(r.LevelName)))
	b.AddUint64(Signature)
	b.AddUint8(uint8(MessageResponse))
	b.AddUint16(r.Port)
	b.AddBytes(r.ServerID[:])
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(r.Name))
	})
	addUvarint(b, flags)
	b.AddUint8(r.GameMode)
	addUvarint(b, uint64(r.CurrentPlayers))
	addUvarint(b, uint64(r.MaxPlayers))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(r.LevelName))
	})
	b.AddUint64(r.Version)

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateDiscovery(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ParseHeader validates the signature and returns the message type and the
// remaining body.
func ParseHeader(data []byte) (MessageType, []byte, error) {
	if err := limits.ValidateDiscovery(data); err != nil {
		return 0, nil, err
	}
	s := cryptobyte.String(data)
	var sig uint64
	var typ uint8
	if !s.ReadUint64(&sig) || !s.ReadUint8(&typ) {
		return 0, nil, ErrTruncated
	}
	if sig != Signature {
		return 0, nil, ErrBadSignature
	}
	switch MessageType(typ) {
	case MessageRequest, MessageResponse:
		return MessageType(typ), []byte(s), nil
	default:
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownMessage, typ)
	}
}

// ParseResponse decodes a complete discovery response packet.
//
// The trailing version field is optional; responses without it report
// version 0.
func ParseResponse(data []byte) (Response, error) {
	typ, body, err := ParseHeader(data)
	if err != nil {
		return Response{}, err
	}
	if typ != MessageResponse {
		return Response{}, fmt.Errorf("%w: expected response, got %d", ErrUnknownMessage, typ)
	}

	var (
		r          Response
		s          = cryptobyte.String(body)
		id         []byte
		name       cryptobyte.String
		level      cryptobyte.String
		flags      uint64
		cur, maxPl uint64
	)
	if !s.ReadUint16(&r.Port) ||
		!s.ReadBytes(&id, len(r.ServerID)) ||
		!s.ReadUint8LengthPrefixed(&name) ||
		!readUvarint(&s, &flags) ||
		!s.ReadUint8(&r.GameMode) ||
		!readUvarint(&s, &cur) ||
		!readUvarint(&s, &maxPl) ||
		!s.ReadUint8LengthPrefixed(&level) {
		return Response{}, ErrTruncated
	}
	if cur > uint64(^uint32(0)) || maxPl > uint64(^uint32(0)) {
		return Response{}, fmt.Errorf("%w: player count", ErrFieldTooLong)
	}
	if !s.Empty() && !s.ReadUint64(&r.Version) {
		return Response{}, ErrTruncated
	}

	copy(r.ServerID[:], id)
	r.Name = string(name)
	r.LevelName = string(level)
	r.HasPassword = flags&flagPassword != 0
	r.HasWhitelist = flags&flagWhitelist != 0
	r.CurrentPlayers = uint32(cur)
	r.MaxPlayers = uint32(maxPl)
	return r, nil
}

func addUvarint(b *cryptobyte.Builder, v uint64) {
	b.AddBytes(binary.AppendUvarint(nil, v))
}

func readUvarint(s *cryptobyte.String, out *uint64) bool {
	v, n := binary.Uvarint(*s)
	if n <= 0 {
		return false
	}
	*out = v
	return s.Skip(n)
}
