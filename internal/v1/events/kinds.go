// Package events defines the typed event vocabulary of a chat session and
// the dispatcher that fans events out to subscribers.
package events

import (
	"github.com/injooinjoo/streaming-agent/internal/v1/codec"
)

// Kind identifies an event category. The set is closed; wire messages with
// an unmapped type code surface as KindUnknown rather than an error.
type Kind string

const (
	KindRaw               Kind = "raw"
	KindConnect           Kind = "connect"
	KindDisconnect        Kind = "disconnect"
	KindEnterChatRoom     Kind = "enter_chat_room"
	KindChat              Kind = "chat"
	KindNotification      Kind = "notification"
	KindTextDonation      Kind = "text_donation"
	KindVideoDonation     Kind = "video_donation"
	KindAdBalloonDonation Kind = "ad_balloon_donation"
	KindSubscribe         Kind = "subscribe"
	KindEmoticon          Kind = "emoticon"
	KindViewer            Kind = "viewer"
	KindExit              Kind = "exit"
	KindEnterInfo         Kind = "enter_info"
	KindUnknown           Kind = "unknown"
)

var kindByType = map[string]Kind{
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
}

// KindForType maps a wire type code to its event kind.
func KindForType(typeCode string) Kind {
	if k, ok := kindByType[typeCode]; ok {
		return k
	}
	return KindUnknown
}

// Kinds returns every kind, including the synthetic raw and unknown.
func Kinds() []Kind {
	return []Kind{
		KindRaw, KindConnect, KindDisconnect, KindEnterChatRoom, KindChat,
		KindNotification, KindTextDonation, KindVideoDonation,
		KindAdBalloonDonation, KindSubscribe, KindEmoticon, KindViewer,
		KindExit, KindEnterInfo, KindUnknown,
	}
}
