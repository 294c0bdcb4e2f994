package api

import (
	"context"
	"net/http"
	"strings"

	"refind/internal/model"
)

// Matches asks the matching engine for scored candidates. The query is free
// text describing the item; location is optional and nudges the score.
func (c *Client) Matches(ctx context.Context, query, location string) ([]model.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Kind: KindValidation, Message: "a search query is required"}
	}
	payload := struct {
		Query    string `json:"query"`
		Location string `json:"location"`
	}{Query: query, Location: strings.TrimSpace(location)}
	var out []model.Match
	err := c.do(ctx, reqSpec{method: http.MethodPost, path: "/ai-matches/", jsonBody: payload}, &out)
	return out, err
}

// Assistant sends a question to the support assistant and returns its reply,
// which may contain markdown.
func (c *Client) Assistant(ctx context.Context, question string) (string, error) {
	payload := struct {
		Query string `json:"query"`
	}{Query: question}
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, reqSpec{method: http.MethodPost, path: "/chat/support/", jsonBody: payload}, &out)
	return out.Message, err
}
