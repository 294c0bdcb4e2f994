package storage

import "errors"

// ErrNotFound 查无记录 / ErrNotFound means no row matched.
var ErrNotFound = errors.New("storage: not found")

// Credentials 本地保存的登录态 / Credentials is the locally persisted login state.
type Credentials struct {
	Access  string
	Refresh string
	UserID  int64
}

// Store 持久化接口 / Store is the persistence interface. The client keeps no
// durable state beyond the session credentials; a single SQLite backend
// implements it today and tests run the same implementation on a temp file.
type Store interface {
	SaveCredentials(c Credentials) error
	LoadCredentials() (Credentials, error)
	ClearCredentials() error

	Close() error
}
