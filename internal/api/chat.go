package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"refind/internal/model"
)

// Conversation fetches the message history of one thread in server order.
// Fetching marks the counterpart's messages as read on the server, so the
// unread count drops on the next summary poll without a separate call.
func (c *Client) Conversation(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	if err := key.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	var out []model.Message
	err := c.do(ctx, reqSpec{
		method: http.MethodGet,
		path:   fmt.Sprintf("/chat/?item_id=%d&receiver_id=%d", key.ItemID, key.CounterpartID),
	}, &out)
	return out, err
}

// SendMessage posts one message into a thread and returns the stored record.
func (c *Client) SendMessage(ctx context.Context, key model.ConversationKey, body string) (model.Message, error) {
	if err := key.Validate(); err != nil {
		return model.Message{}, &Error{Kind: KindValidation, Message: err.Error()}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Message{}, &Error{Kind: KindValidation, Message: "message body is empty"}
	}
	payload := struct {
		Receiver int64  `json:"receiver"`
		Item     int64  `json:"item"`
		Message  string `json:"message"`
	}{Receiver: key.CounterpartID, Item: key.ItemID, Message: body}
	var out model.Message
	err := c.do(ctx, reqSpec{method: http.MethodPost, path: "/messages/", jsonBody: payload}, &out)
	return out, err
}
