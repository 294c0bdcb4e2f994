package api

import (
	"context"
	"net/http"

	"refind/internal/model"
)

// NotificationSummary fetches the unread message count.
func (c *Client) NotificationSummary(ctx context.Context) (model.NotificationSummary, error) {
	var out model.NotificationSummary
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: "/notifications/summary/"}, &out)
	return out, err
}

// Notifications lists notifications. With includeRead false the server
// returns only unread entries and marks them read as a side effect; there is
// no separate mark-read call.
func (c *Client) Notifications(ctx context.Context, includeRead bool) ([]model.Notification, error) {
	path := "/notifications/"
	if includeRead {
		path += "?include_read=true"
	}
	var out []model.Notification
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: path}, &out)
	return out, err
}
