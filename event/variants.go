package event

// PostType is the top-level discriminator carried by every gateway
// payload.
type PostType string

const (
	PostTypeMessage   PostType = "message"
	PostTypeNotice    PostType = "notice"
	PostTypeRequest   PostType = "request"
	PostTypeMetaEvent PostType = "meta_event"
)

// MessageType distinguishes the two MessageEvent shapes.
type MessageType string

const (
	MessageTypePrivate MessageType = "private"
	MessageTypeGroup   MessageType = "group"
)

// NoticeType distinguishes the NoticeEvent shapes, excluding the
// notify-subtype family which is keyed on SubType instead.
type NoticeType string

const (
	NoticeTypeGroupUpload  NoticeType = "group_upload"
	NoticeTypeGroupAdmin   NoticeType = "group_admin"
	NoticeTypeGroupDecr    NoticeType = "group_decrease"
	NoticeTypeGroupIncr    NoticeType = "group_increase"
	NoticeTypeGroupBan     NoticeType = "group_ban"
	NoticeTypeFriendAdd    NoticeType = "friend_add"
	NoticeTypeGroupRecall  NoticeType = "group_recall"
	NoticeTypeFriendRecall NoticeType = "friend_recall"
	NoticeTypeNotify       NoticeType = "notify"
)

// NotifySubType further discriminates NoticeTypeNotify events.
type NotifySubType string

const (
	NotifySubTypePoke      NotifySubType = "poke"
	NotifySubTypeLuckyKing NotifySubType = "lucky_king"
	NotifySubTypeHonor     NotifySubType = "honor"
)

// RequestType distinguishes the RequestEvent shapes.
type RequestType string

const (
	RequestTypeFriend RequestType = "friend"
	RequestTypeGroup  RequestType = "group"
)

// MetaEventType distinguishes the MetaEvent shapes.
type MetaEventType string

const (
	MetaEventTypeLifecycle MetaEventType = "lifecycle"
	MetaEventTypeHeartbeat MetaEventType = "heartbeat"
)

// Base carries the fields every variant shares.
type Base struct {
	Time     int64    `json:"time"`
	SelfID   string   `json:"self_id"`
	PostType PostType `json:"post_type"`
}

// MessageEvent covers both private and group messages.
type MessageEvent struct {
	Base
	MessageType MessageType `json:"message_type"`
	MessageID   string      `json:"message_id"`
	UserID      string      `json:"user_id"`
	GroupID     string      `json:"group_id,omitempty"`
	RawMessage  string      `json:"raw_message"`
	Message     []MessageSegment `json:"message"`
}

// MessageSegment is one element of a OneBot-style message array.
type MessageSegment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// NoticeEvent covers every NoticeType variant, including the notify
// family (Poke/LuckyKing/Honor), which carries SubType instead of a
// second NoticeType-specific struct.
type NoticeEvent struct {
	Base
	NoticeType NoticeType    `json:"notice_type"`
	SubType    NotifySubType `json:"sub_type,omitempty"`
	UserID     string        `json:"user_id,omitempty"`
	GroupID    string        `json:"group_id,omitempty"`
	OperatorID string        `json:"operator_id,omitempty"`
	TargetID   string        `json:"target_id,omitempty"`
	MessageID  string        `json:"message_id,omitempty"`
	File       *NoticeFile   `json:"file,omitempty"`
}

// NoticeFile is the payload of a group_upload notice.
type NoticeFile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Busid int64  `json:"busid"`
}

// RequestEvent covers both friend and group requests.
type RequestEvent struct {
	Base
	RequestType RequestType `json:"request_type"`
	UserID      string      `json:"user_id"`
	GroupID     string      `json:"group_id,omitempty"`
	Comment     string      `json:"comment"`
	Flag        string      `json:"flag"`
}

// MetaEvent covers lifecycle and heartbeat events.
type MetaEvent struct {
	Base
	MetaEventType MetaEventType `json:"meta_event_type"`
	SubType       string        `json:"sub_type,omitempty"`
	Status        map[string]any `json:"status,omitempty"`
	Interval      int64          `json:"interval,omitempty"`
}

// Canonical event type strings published on the bus. Subscribers select
// finer granularity via prefix or regex subscriptions; the loader never
// publishes the sub-variant name directly.
const (
	TypeMessageEvent     = "ncatbot.message_event"
	TypeMessageSentEvent = "ncatbot.message_sent_event"
	TypeNoticeEvent      = "ncatbot.notice_event"
	TypeRequestEvent     = "ncatbot.request_event"
	TypeMetaEvent        = "ncatbot.meta_event"
	TypePluginLoad        = "ncatbot.plugin_load"
	TypePluginUnload      = "ncatbot.plugin_unload"
)
