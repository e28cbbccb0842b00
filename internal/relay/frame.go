package relay

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
	EventJoined         = "joined"
	EventRemoved        = "removed"
	EventError          = "error"
)

// Frame 双向通用的消息信封
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ChatMessage struct {
	CommunityID uint64    `json:"communityId"`
	Message     string    `json:"message"`
	Sender      string    `json:"sender"`
	SenderID    uint64    `json:"senderId"`
	SentAt      time.Time `json:"sentAt"`
}

type sendMessageData struct {
	CommunityID json.RawMessage `json:"communityId"`
	Message     string          `json:"message"`
	Sender      string          `json:"sender"`
}

var errBadCommunityID = errors.New("invalid community id")

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

func errorFrame(message string) []byte {
	b, _ := encode(EventError, map[string]string{"message": message})
	return b
}

func removedFrame(communityID uint64) []byte {
	b, _ := encode(EventRemoved, map[string]uint64{"communityId": communityID})
	return b
}

// parseCommunityID 接受 12、"12" 或 {"communityId": 12}
func parseCommunityID(raw json.RawMessage) (uint64, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return 0, errBadCommunityID
	}
	switch raw[0] {
	case '{':
		var obj struct {
			CommunityID json.RawMessage `json:"communityId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.CommunityID == nil || obj.CommunityID[0] == '{' {
			return 0, errBadCommunityID
		}
		return parseCommunityID(obj.CommunityID)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errBadCommunityID
		}
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil || id == 0 {
			return 0, errBadCommunityID
		}
		return id, nil
	default:
		var id uint64
		if err := json.Unmarshal(raw, &id); err != nil || id == 0 {
			return 0, errBadCommunityID
		}
		return id, nil
	}
}
