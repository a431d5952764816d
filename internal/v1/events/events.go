package events

import (
	"time"

	"github.com/injooinjoo/streaming-agent/internal/v1/codec"
)

// Event is a decoded chat occurrence. Concrete variants carry the fields of
// their kind; consumers type switch on the variant or route by Kind().
type Event interface {
	Kind() Kind
	ReceivedAt() time.Time
}

// Meta carries the fields every event shares.
type Meta struct {
	At time.Time `json:"at"`
}

// ReceivedAt returns the local receive time of the underlying packet.
func (m Meta) ReceivedAt() time.Time { return m.At }

// Raw wraps the unmodified packet bytes. One Raw is emitted for every
// inbound packet, before its decoded counterpart.
type Raw struct {
	Meta
	Bytes []byte `json:"bytes"`
}

func (Raw) Kind() Kind { return KindRaw }

// Connect acknowledges the session handshake.
type Connect struct {
	Meta
	StreamerID string `json:"streamerId"`
	Username   string `json:"username"`
	Syn        string `json:"syn"`
}

func (Connect) Kind() Kind { return KindConnect }

// EnterChatRoom acknowledges the room join.
type EnterChatRoom struct {
	Meta
	StreamerID string `json:"streamerId"`
	SynAck     string `json:"synAck"`
}

func (EnterChatRoom) Kind() Kind { return KindEnterChatRoom }

// Disconnect is the final event of a session, emitted exactly once after
// the socket and keepalive have been torn down. ErrorKind is empty for a
// clean shutdown.
type Disconnect struct {
	Meta
	StreamerID string `json:"streamerId"`
	Reason     string `json:"reason"`
	ErrorKind  string `json:"errorKind,omitempty"`
}

func (Disconnect) Kind() Kind { return KindDisconnect }

// Chat is a viewer chat line.
type Chat struct {
	Meta
	Comment  string `json:"comment"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (Chat) Kind() Kind { return KindChat }

// Notification is a room-wide announcement.
type Notification struct {
	Meta
	Text string `json:"text"`
}

func (Notification) Kind() Kind { return KindNotification }

// Donation covers the three donation kinds: text, video, and ad balloon.
// Amount is the platform's opaque count string; its unit differs per kind
// and is not interpreted here.
type Donation struct {
	Meta
	kind       Kind
	Recipient  string `json:"recipient"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Amount     string `json:"amount"`
}

func (d Donation) Kind() Kind { return d.kind }

// Emoticon is an emoticon usage in chat.
type Emoticon struct {
	Meta
	EmoticonID string `json:"emoticonId"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
}

func (Emoticon) Kind() Kind { return KindEmoticon }

// Generic covers kinds the protocol names but does not further decode:
// exit, enter_info, subscribe, and viewer. Consumers that care inspect the
// raw segments.
type Generic struct {
	Meta
	kind     Kind
	Segments []string `json:"segments"`
}

func (g Generic) Kind() Kind { return g.kind }

// Unknown carries a packet whose type code is not in the kind table.
type Unknown struct {
	Meta
	TypeCode string   `json:"typeCode"`
	Segments []string `json:"segments"`
}

func (Unknown) Kind() Kind { return KindUnknown }

// FromFrame decodes a frame into its typed event. streamerID is stamped
// onto handshake acknowledgements, matching what the wire omits. Missing
// payload segments decode to empty strings, never errors.
//
// The disconnect control frame returns nil: the session synthesizes its own
// Disconnect once teardown finishes, so the frame itself carries no event.
func FromFrame(f *codec.Frame, streamerID string, at time.Time) Event {
	meta := Meta{At: at}
	switch KindForType(f.TypeCode) {
	case KindConnect:
		return &Connect{Meta: meta, StreamerID: streamerID, Username: f.Segment(1), Syn: f.Segment(2)}
	case KindEnterChatRoom:
		return &EnterChatRoom{Meta: meta, StreamerID: f.Segment(2), SynAck: f.Segment(7)}
	case KindChat:
		return &Chat{Meta: meta, Comment: f.Segment(1), UserID: f.Segment(2), Username: f.Segment(6)}
	case KindNotification:
		return &Notification{Meta: meta, Text: f.Segment(4)}
	case KindTextDonation, KindVideoDonation, KindAdBalloonDonation:
		return &Donation{
			Meta:       meta,
			kind:       KindForType(f.TypeCode),
			Recipient:  f.Segment(2),
			SenderID:   f.Segment(3),
			SenderName: f.Segment(4),
			Amount:     f.Segment(5),
		}
	case KindEmoticon:
		return &Emoticon{Meta: meta, EmoticonID: f.Segment(3), UserID: f.Segment(6), Username: f.Segment(7)}
	case KindExit, KindEnterInfo, KindSubscribe, KindViewer:
		return &Generic{Meta: meta, kind: KindForType(f.TypeCode), Segments: f.Segments}
	case KindDisconnect:
		return nil
	default:
		return &Unknown{Meta: meta, TypeCode: f.TypeCode, Segments: f.Segments}
	}
}
