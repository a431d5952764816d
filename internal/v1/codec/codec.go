// Package codec implements the SOOP chat wire format.
//
// Every packet is a framed byte string: a two byte starter sequence, a four
// digit message type code, a six digit zero padded decimal payload length
// (counted in bytes, not runes), a reserved "00" field, and the payload.
// Payload fields are separated by a control character; consumers address
// them positionally and treat missing positions as empty strings.
package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// Control characters used by the framing layer. ElementStart, ElementEnd,
// and Space appear in some server payloads but are never parsed here.
const (
	Separator    byte = 0x0c
	ElementStart byte = 0x11
	ElementEnd   byte = 0x12
	Space        byte = 0x06
)

// starter prefixes every packet in both directions.
var starter = []byte{0x1b, 0x09}

const (
	typeCodeLen = 4
	lengthLen   = 6
	// headerLen covers starter, type code, length, and the reserved "00".
	headerLen = 2 + typeCodeLen + lengthLen + 2
)

// Message type codes. Outbound traffic only ever uses the first three;
// the rest identify inbound server messages.
const (
	TypePing              = "0000"
	TypeConnect           = "0001"
	TypeEnterChatRoom     = "0002"
	TypeExit              = "0004"
	TypeChat              = "0005"
	TypeDisconnect        = "0007"
	TypeEnterInfo         = "0012"
	TypeTextDonation      = "0018"
	TypeAdBalloonDonation = "0087"
	TypeSubscribe         = "0093"
	TypeNotification      = "0104"
	TypeVideoDonation     = "0105"
	TypeEmoticon          = "0109"
	TypeViewer            = "0127"
)

// ErrFrameFormat reports a packet that does not satisfy the frame grammar.
// Decode failures are per packet and never fatal to a session.
var ErrFrameFormat = errors.New("codec: malformed frame")

// Frame is a decoded inbound packet.
type Frame struct {
	// TypeCode is the four digit message type, e.g. "0005" for chat.
	TypeCode string
	// Payload is everything after the fixed header.
	Payload []byte
	// Segments is Payload split on Separator. Server payloads start with
	// a separator, so meaningful fields begin at index 1.
	Segments []string
}

// Segment returns the payload segment at index i, or the empty string when
// the frame carries no such segment.
func (f *Frame) Segment(i int) string {
	if i < 0 || i >= len(f.Segments) {
		return ""
	}
	return f.Segments[i]
}

// Encode frames a payload under the given type code.
func Encode(typeCode string, payload []byte) []byte {
	buf := make([]byte, 0, headerLen+len(payload))
	buf = append(buf, starter...)
	buf = append(buf, typeCode...)
	buf = append(buf, fmt.Sprintf("%0*d", lengthLen, len(payload))...)
	buf = append(buf, "00"...)
	buf = append(buf, payload...)
	return buf
}

// Decode parses an inbound packet. Packets shorter than the header or not
// beginning with the starter sequence fail with ErrFrameFormat.
func Decode(packet []byte) (*Frame, error) {
	if !bytes.HasPrefix(packet, starter) {
		return nil, fmt.Errorf("%w: missing starter prefix", ErrFrameFormat)
	}
	if len(packet) < headerLen {
		return nil, fmt.Errorf("%w: %d byte packet is shorter than the %d byte header", ErrFrameFormat, len(packet), headerLen)
	}
	f := &Frame{
		TypeCode: string(packet[2 : 2+typeCodeLen]),
		Payload:  packet[headerLen:],
	}
	parts := bytes.Split(f.Payload, []byte{Separator})
	f.Segments = make([]string, len(parts))
	for i, p := range parts {
		f.Segments[i] = string(p)
	}
	return f, nil
}

// Connect builds the handshake packet sent immediately after the WebSocket
// is established.
func Connect() []byte {
	return Encode(TypeConnect, []byte{Separator, Separator, Separator, '1', '6', Separator})
}

// Join builds the room join packet. chatNo is the opaque chat room number
// from the resolved live detail, not the streamer id.
func Join(chatNo string) []byte {
	payload := make([]byte, 0, len(chatNo)+6)
	payload = append(payload, Separator)
	payload = append(payload, chatNo...)
	payload = append(payload, Separator, Separator, Separator, Separator, Separator)
	return Encode(TypeEnterChatRoom, payload)
}

// Ping builds the keepalive packet.
func Ping() []byte {
	return Encode(TypePing, []byte{Separator})
}
