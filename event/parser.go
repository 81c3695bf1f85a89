package event

import (
	"encoding/json"
	"fmt"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// idFields are normalized to strings before a variant is instantiated,
// since the gateway is free to send them as either JSON integers or
// strings depending on NapCat version and action.
var idFields = []string{
	"user_id", "group_id", "message_id", "operator_id", "target_id", "self_id",
}

// ErrUnknownEvent is returned by Parse for a (post_type, sub_key)
// combination with no registered variant. Callers are expected to log
// and drop rather than propagate this as a fatal error.
var ErrUnknownEvent = errors.New("event: unknown post_type/sub_key combination")

// ErrMissingPostType is returned when a payload carries no post_type at
// all.
var ErrMissingPostType = errors.New("event: payload missing post_type")

// Parse normalizes a raw gateway payload into a typed Event, binds api
// onto it, and returns it published under its canonical type string
// (one of the five post_type-level constants plus plugin_load/unload,
// which do not flow through Parse). Unknown combinations return
// ErrUnknownEvent; callers must log and drop rather than crash dispatch.
func Parse(raw map[string]any, api API) (*Event, error) {
	postType, _ := raw["post_type"].(string)
	if postType == "" {
		return nil, ErrMissingPostType
	}

	subKey := secondaryKey(PostType(postType), raw)
	normalizeIDs(raw)

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "event: re-marshal payload for %s/%s", postType, subKey)
	}

	data, canonical, err := instantiate(PostType(postType), subKey, payload)
	if err != nil {
		return nil, err
	}

	ev := New(canonical, data)
	ev.BindAPI(api)
	return ev, nil
}

// secondaryKey computes the discriminator used alongside post_type to
// pick a concrete variant, following the fixed rule in the data model:
// message -> message_type, request -> request_type, meta_event ->
// meta_event_type, notice -> notice_type (or sub_type when
// notice_type == notify).
func secondaryKey(postType PostType, raw map[string]any) string {
	switch postType {
	case PostTypeMessage:
		return stringField(raw, "message_type")
	case PostTypeRequest:
		return stringField(raw, "request_type")
	case PostTypeMetaEvent:
		return stringField(raw, "meta_event_type")
	case PostTypeNotice:
		noticeType := stringField(raw, "notice_type")
		if noticeType == string(NoticeTypeNotify) {
			return stringField(raw, "sub_type")
		}
		return noticeType
	default:
		return ""
	}
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// normalizeIDs coerces every identifier field present as a JSON number
// into its string form, in place.
func normalizeIDs(raw map[string]any) {
	for _, key := range idFields {
		switch v := raw[key].(type) {
		case float64:
			raw[key] = formatID(v)
		}
	}
}

func formatID(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%v", v)
}

// instantiate looks up the constructor for (postType, subKey) and
// decodes payload into it, returning the canonical published type
// string alongside the decoded value.
func instantiate(postType PostType, subKey string, payload []byte) (any, string, error) {
	switch postType {
	case PostTypeMessage:
		var ev MessageEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, "", errors.Wrap(err, "event: decode message event")
		}
		switch MessageType(subKey) {
		case MessageTypePrivate, MessageTypeGroup:
			return &ev, TypeMessageEvent, nil
		}
	case PostTypeRequest:
		switch RequestType(subKey) {
		case RequestTypeFriend, RequestTypeGroup:
			var ev RequestEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, "", errors.Wrap(err, "event: decode request event")
			}
			return &ev, TypeRequestEvent, nil
		}
	case PostTypeMetaEvent:
		switch MetaEventType(subKey) {
		case MetaEventTypeLifecycle, MetaEventTypeHeartbeat:
			var ev MetaEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, "", errors.Wrap(err, "event: decode meta event")
			}
			return &ev, TypeMetaEvent, nil
		}
	case PostTypeNotice:
		var ev NoticeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, "", errors.Wrap(err, "event: decode notice event")
		}
		switch NoticeType(subKey) {
		case NoticeTypeGroupUpload, NoticeTypeGroupAdmin, NoticeTypeGroupDecr,
			NoticeTypeGroupIncr, NoticeTypeGroupBan, NoticeTypeFriendAdd,
			NoticeTypeGroupRecall, NoticeTypeFriendRecall:
			return &ev, TypeNoticeEvent, nil
		}
		switch NotifySubType(subKey) {
		case NotifySubTypePoke, NotifySubTypeLuckyKing, NotifySubTypeHonor:
			return &ev, TypeNoticeEvent, nil
		}
	}

	logger.Warnw("event: unknown post_type/sub_key combination, dropping",
		"post_type", postType, "sub_key", subKey)
	return nil, "", errors.Wrapf(ErrUnknownEvent, "%s/%s", postType, subKey)
}
