package store

// MessageType is the kind of a chat message.
type MessageType string

const (
	TypeText       MessageType = "text"
	TypeVoice      MessageType = "voice"
	TypeImage      MessageType = "image"
	TypeVideoCall  MessageType = "video_call"
	TypeAudioCall  MessageType = "audio_call"
	TypeMissedCall MessageType = "missed_call"
)

// IsCall reports whether t is a call receipt or a missed call.
func (t MessageType) IsCall() bool {
	return t == TypeVideoCall || t == TypeAudioCall || t == TypeMissedCall
}

// Message is a chat message between two users. Timestamps are unix millis.
type Message struct {
	ID         int64       `json:"id"`
	ChatID     string      `json:"chatId"`
	MsgID      string      `json:"msgId"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content,omitempty"`
	Duration   int         `json:"duration,omitempty"` // seconds, call receipts only
	IsRead     bool        `json:"isRead"`
	Timestamp  int64       `json:"timestamp"`
}
