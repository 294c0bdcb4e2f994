package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"refind/internal/model"
)

// Item fetches a single item, including its claim status. For items the
// current user does not own the server masks title, description and location.
func (c *Client) Item(ctx context.Context, id int64) (model.Item, error) {
	var out model.Item
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: fmt.Sprintf("/view-item/%d/", id)}, &out)
	return out, err
}

// MyItems lists the current user's reports.
func (c *Client) MyItems(ctx context.Context) ([]model.Item, error) {
	var out []model.Item
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: "/my-items/"}, &out)
	return out, err
}

// Categories lists selectable item categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: "/categories/"}, &out)
	return out, err
}

// ReportItem submits a new lost or found report as multipart form data. The
// image part is only attached when ImageName is set.
func (c *Client) ReportItem(ctx context.Context, p model.ReportItemPayload) (model.Item, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":        p.Title,
		"description":  p.Description,
		"location":     p.Location,
		"status":       p.Status,
		"category":     strconv.FormatInt(p.CategoryID, 10),
		"private_note": p.PrivateNote,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return model.Item{}, fmt.Errorf("api: encode report form: %w", err)
		}
	}
	if p.ImageName != "" {
		fw, err := w.CreateFormFile("image", p.ImageName)
		if err != nil {
			return model.Item{}, fmt.Errorf("api: encode report image: %w", err)
		}
		if _, err := fw.Write(p.ImageData); err != nil {
			return model.Item{}, fmt.Errorf("api: encode report image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return model.Item{}, fmt.Errorf("api: encode report form: %w", err)
	}
	var out model.Item
	err := c.do(ctx, reqSpec{
		method:      http.MethodPost,
		path:        "/items/",
		rawBody:     buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, &out)
	return out, err
}

// Dashboard fetches the aggregate landing view.
func (c *Client) Dashboard(ctx context.Context) (model.Dashboard, error) {
	var out model.Dashboard
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: "/dashboard/"}, &out)
	return out, err
}

// Claim submits a claim on an item with an explanatory note.
func (c *Client) Claim(ctx context.Context, itemID int64, note string) error {
	payload := struct {
		ClaimNote string `json:"claim_note"`
	}{ClaimNote: note}
	return c.do(ctx, reqSpec{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/claim/%d/", itemID),
		jsonBody: payload,
	}, nil)
}

// ApproveClaim approves the pending claim on an item the current user owns.
func (c *Client) ApproveClaim(ctx context.Context, itemID int64) error {
	return c.do(ctx, reqSpec{
		method: http.MethodPost,
		path:   fmt.Sprintf("/claim-approve/%d/", itemID),
	}, nil)
}

// UpdateStatus moves an item the current user owns to a new lifecycle status.
func (c *Client) UpdateStatus(ctx context.Context, itemID int64, status string) error {
	if !model.ValidStatus(status) {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown item status %q", status)}
	}
	payload := struct {
		Status string `json:"status"`
	}{Status: status}
	return c.do(ctx, reqSpec{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/items/%d/status/", itemID),
		jsonBody: payload,
	}, nil)
}
