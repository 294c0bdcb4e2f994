package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Kind classifies an API failure for presentation and retry decisions.
type Kind int

const (
	KindNetwork Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error 携带分类与面向用户文案的请求失败
// Error is a classified request failure carrying a user-presentable message.
// Message is always safe to display; Detail keeps the raw server text for logs.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnauthorized marks a request rejected for credential reasons after the
// refresh path has been exhausted. Callers match it with errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// KindOf returns the failure class of err, or KindNetwork for errors that
// never produced an HTTP response.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNetwork
}

// UserMessage returns the display text for err, falling back to the given
// default when err carries no classified message.
func UserMessage(err error, fallback string) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return fallback
}

var digitsRe = regexp.MustCompile(`\d+`)

// rateLimitMessage renders a 429 body into a wait instruction. The server's
// free-text detail sometimes embeds a seconds count; when present it is
// rounded up to whole minutes, otherwise a generic message is used.
func rateLimitMessage(detail string) string {
	if m := digitsRe.FindString(detail); m != "" {
		secs, err := strconv.Atoi(m)
		if err == nil && secs > 0 {
			mins := (secs + 59) / 60
			return fmt.Sprintf("Too many attempts. Please try again in %d minute(s).", mins)
		}
	}
	return "Too many attempts. Please try again later."
}
