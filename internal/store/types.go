package store

// Message statuses. A message only moves forward along
// sending -> sent -> delivered -> read, or diverts to failed; upserts
// never regress the status (see statusRank).
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
	TypeAudio = "audio"
	TypeVideo = "video"
)

// Send request states. Success is terminal and removes the record; fail is
// terminal and keeps it for inspection.
const (
	RequestPending  = "pending"
	RequestInFlight = "in_flight"
	RequestFail     = "fail"
)

// User presence statuses.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceAway    = "away"
)

// Content variant kinds stored in message_contents.
const (
	ContentText  = "text"
	ContentMedia = "media"
	ContentFile  = "file"
)

// Entity names used as sync_state keys.
const (
	EntityMessages      = "messages"
	EntityConversations = "conversations"
	EntityUsers         = "users"
)

// Message represents a cached message. Content lives in a separate
// message_contents row keyed by ID, joined at read time.
type Message struct {
	ID              string `json:"id"`
	ConversationID  string `json:"conversation_id"`
	SenderID        string `json:"sender_id"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Timestamp       int64  `json:"timestamp"`
	Version         int64  `json:"version"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// Conversation represents a cached conversation. LastMessageAt is the
// denormalized max timestamp over its locally known messages and the sort
// key for the conversation list.
type Conversation struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	LastMessageAt int64  `json:"last_message_at"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// User represents a cached user.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Status    string `json:"status"`
	LastSeen  int64  `json:"last_seen"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// MessageContent is the tagged-variant content row for a message. Kind
// decides which fields are meaningful: text uses Body, media uses
// URL/ThumbnailURL/dimensions/Duration, file uses URL/FileName/FileSize.
type MessageContent struct {
	MessageID    string `json:"message_id"`
	Kind         string `json:"kind"`
	Body         string `json:"body,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Duration     int64  `json:"duration,omitempty"`
	Width        int64  `json:"width,omitempty"`
	Height       int64  `json:"height,omitempty"`
}

// Reaction represents a per-user reaction on a message.
type Reaction struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction"`
	Timestamp int64  `json:"timestamp"`
}

// SendRequest tracks delivery progress of one outgoing message. Its key is
// the message id; exactly one live request exists per outgoing message
// until it reaches a terminal state.
type SendRequest struct {
	MessageID  string `json:"message_id"`
	Status     string `json:"status"`
	FailCount  int    `json:"fail_count"`
	LastSentAt int64  `json:"last_sent_at"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}
