package gateway

import (
	"context"
	"time"

	"github.com/ncatbot/ncatbot-go/errors"
)

// DefaultActionTimeout bounds how long an API call waits for a
// correlated response before failing with ErrTimeout.
const DefaultActionTimeout = 30 * time.Second

// API is the outbound action facade plugins call through. It implements
// event.API so Event.Reply works, and additionally exposes the broader
// OneBot-style action surface the source generates a large thin wrapper
// for; only the actions with observable behavior in this kernel are
// implemented by hand; the rest route through the general Call method.
type API struct {
	client  *Client
	timeout time.Duration
}

// NewAPI wraps client in the action facade.
func NewAPI(client *Client) *API {
	return &API{client: client, timeout: DefaultActionTimeout}
}

// Call issues an arbitrary named action with the given parameters,
// blocking for the default timeout.
func (a *API) Call(ctx context.Context, action string, params map[string]any) (*InboundFrame, error) {
	return a.client.Send(ctx, action, params, a.timeout)
}

// SendGroupMessage sends text to a group. Implements event.API.
func (a *API) SendGroupMessage(groupID, text string) error {
	_, err := a.client.Send(context.Background(), "send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  text,
	}, a.timeout)
	if err != nil {
		return errors.Wrapf(err, "gateway: send group message to %s", groupID)
	}
	return nil
}

// SendPrivateMessage sends text to a user. Implements event.API.
func (a *API) SendPrivateMessage(userID, text string) error {
	_, err := a.client.Send(context.Background(), "send_private_msg", map[string]any{
		"user_id": userID,
		"message": text,
	}, a.timeout)
	if err != nil {
		return errors.Wrapf(err, "gateway: send private message to %s", userID)
	}
	return nil
}

// GetGroupMemberList queries a group's roster.
func (a *API) GetGroupMemberList(ctx context.Context, groupID string) (*InboundFrame, error) {
	return a.Call(ctx, "get_group_member_list", map[string]any{"group_id": groupID})
}

// SetGroupKick removes a member from a group.
func (a *API) SetGroupKick(ctx context.Context, groupID, userID string, rejectAddRequest bool) error {
	_, err := a.Call(ctx, "set_group_kick", map[string]any{
		"group_id":           groupID,
		"user_id":            userID,
		"reject_add_request": rejectAddRequest,
	})
	return err
}

// SetGroupBan mutes a member for durationSeconds (0 lifts the ban).
func (a *API) SetGroupBan(ctx context.Context, groupID, userID string, durationSeconds int) error {
	_, err := a.Call(ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": durationSeconds,
	})
	return err
}

// UploadGroupFile uploads a server-resolved file path to a group.
func (a *API) UploadGroupFile(ctx context.Context, groupID, file, name string) error {
	_, err := a.Call(ctx, "upload_group_file", map[string]any{
		"group_id": groupID,
		"file":     file,
		"name":     name,
	})
	return err
}
