package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/injooinjoo/streaming-agent/internal/v1/codec"
)

// buildFrame encodes then decodes a packet whose payload fields start at
// segment index 1, the way server payloads arrive.
func buildFrame(t *testing.T, typeCode string, fields ...string) *codec.Frame {
	t.Helper()
	var payload []byte
	for _, f := range fields {
		payload = append(payload, codec.Separator)
		payload = append(payload, f...)
	}
	frame, err := codec.Decode(codec.Encode(typeCode, payload))
	require.NoError(t, err)
	return frame
}

func TestKindForType(t *testing.T) {
	cases := map[string]Kind{
		codec.TypeConnect:           KindConnect,
		codec.TypeEnterChatRoom:     KindEnterChatRoom,
		codec.TypeExit:              KindExit,
		codec.TypeChat:              KindChat,
		codec.TypeDisconnect:        KindDisconnect,
		codec.TypeEnterInfo:         KindEnterInfo,
		codec.TypeTextDonation:      KindTextDonation,
		codec.TypeAdBalloonDonation: KindAdBalloonDonation,
		codec.TypeSubscribe:         KindSubscribe,
		codec.TypeNotification:      KindNotification,
		codec.TypeVideoDonation:     KindVideoDonation,
		codec.TypeEmoticon:          KindEmoticon,
		codec.TypeViewer:            KindViewer,
		"0042":                      KindUnknown,
		"9999":                      KindUnknown,
		"":                          KindUnknown,
	}

	for code, want := range cases {
		assert.Equal(t, want, KindForType(code), "type code %q", code)
	}
}

func TestFromFrame(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("chat", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeChat, "hello world", "user123", "", "", "", "Nickname")

		ev := FromFrame(frame, "streamer1", at)

		chat, ok := ev.(*Chat)
		require.True(t, ok)
		assert.Equal(t, KindChat, chat.Kind())
		assert.Equal(t, "hello world", chat.Comment)
		assert.Equal(t, "user123", chat.UserID)
		assert.Equal(t, "Nickname", chat.Username)
		assert.Equal(t, at, chat.ReceivedAt())
	})

	t.Run("chat with missing segments", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeChat, "only a comment")

		ev := FromFrame(frame, "streamer1", at)

		chat, ok := ev.(*Chat)
		require.True(t, ok)
		assert.Equal(t, "only a comment", chat.Comment)
		assert.Equal(t, "", chat.UserID)
		assert.Equal(t, "", chat.Username)
	})

	t.Run("connect ack carries the local streamer id", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeConnect, "Nick", "syn42")

		ev := FromFrame(frame, "streamer1", at)

		connect, ok := ev.(*Connect)
		require.True(t, ok)
		assert.Equal(t, "streamer1", connect.StreamerID)
		assert.Equal(t, "Nick", connect.Username)
		assert.Equal(t, "syn42", connect.Syn)
	})

	t.Run("enter chat room ack", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeEnterChatRoom, "", "streamer1", "", "", "", "", "ack9")

		ev := FromFrame(frame, "ignored", at)

		enter, ok := ev.(*EnterChatRoom)
		require.True(t, ok)
		assert.Equal(t, "streamer1", enter.StreamerID)
		assert.Equal(t, "ack9", enter.SynAck)
	})

	t.Run("notification", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeNotification, "", "", "", "server notice")

		ev := FromFrame(frame, "streamer1", at)

		notif, ok := ev.(*Notification)
		require.True(t, ok)
		assert.Equal(t, "server notice", notif.Text)
	})

	t.Run("donations share one layout across three kinds", func(t *testing.T) {
		for code, want := range map[string]Kind{
			codec.TypeTextDonation:      KindTextDonation,
			codec.TypeVideoDonation:     KindVideoDonation,
			codec.TypeAdBalloonDonation: KindAdBalloonDonation,
		} {
			frame := buildFrame(t, code, "", "streamer1", "fan99", "Big Fan", "500")

			ev := FromFrame(frame, "streamer1", at)

			donation, ok := ev.(*Donation)
			require.True(t, ok, "type code %q", code)
			assert.Equal(t, want, donation.Kind())
			assert.Equal(t, "streamer1", donation.Recipient)
			assert.Equal(t, "fan99", donation.SenderID)
			assert.Equal(t, "Big Fan", donation.SenderName)
			assert.Equal(t, "500", donation.Amount)
		}
	})

	t.Run("emoticon", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeEmoticon, "", "", "emo42", "", "", "user123", "Nickname")

		ev := FromFrame(frame, "streamer1", at)

		emoticon, ok := ev.(*Emoticon)
		require.True(t, ok)
		assert.Equal(t, "emo42", emoticon.EmoticonID)
		assert.Equal(t, "user123", emoticon.UserID)
		assert.Equal(t, "Nickname", emoticon.Username)
	})

	t.Run("named but undecoded kinds keep their segments", func(t *testing.T) {
		for _, code := range []string{codec.TypeExit, codec.TypeEnterInfo, codec.TypeSubscribe, codec.TypeViewer} {
			frame := buildFrame(t, code, "a", "b")

			ev := FromFrame(frame, "streamer1", at)

			generic, ok := ev.(*Generic)
			require.True(t, ok, "type code %q", code)
			assert.Equal(t, KindForType(code), generic.Kind())
			assert.Equal(t, []string{"", "a", "b"}, generic.Segments)
		}
	})

	t.Run("unmapped type code decodes as unknown", func(t *testing.T) {
		frame := buildFrame(t, "0042", "whatever")

		ev := FromFrame(frame, "streamer1", at)

		unknown, ok := ev.(*Unknown)
		require.True(t, ok)
		assert.Equal(t, KindUnknown, unknown.Kind())
		assert.Equal(t, "0042", unknown.TypeCode)
		assert.Equal(t, []string{"", "whatever"}, unknown.Segments)
	})

	t.Run("disconnect control frame carries no event", func(t *testing.T) {
		frame := buildFrame(t, codec.TypeDisconnect)

		assert.Nil(t, FromFrame(frame, "streamer1", at))
	})
}
