package api

import (
	"context"
	"net/http"

	"refind/internal/model"
)

// Login exchanges credentials for a token pair. It does not persist anything;
// the session layer owns that.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	payload := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	var out model.LoginResult
	err := c.do(ctx, reqSpec{
		method:    http.MethodPost,
		path:      "/login/",
		jsonBody:  payload,
		anonymous: true,
	}, &out)
	return out, err
}

// Register creates an account. The caller follows up with a clean Login; the
// register response body is not trusted for credentials.
func (c *Client) Register(ctx context.Context, p model.RegisterPayload) error {
	return c.do(ctx, reqSpec{
		method:    http.MethodPost,
		path:      "/register/",
		jsonBody:  p,
		anonymous: true,
	}, nil)
}

// Profile fetches the current user's profile. This doubles as the startup
// token validity check.
func (c *Client) Profile(ctx context.Context) (model.UserProfile, error) {
	var out model.UserProfile
	err := c.do(ctx, reqSpec{method: http.MethodGet, path: "/profile/"}, &out)
	return out, err
}
