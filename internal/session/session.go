package session

import (
	"errors"
)

var (
	// ErrValidation is returned when a caller breaks the store's contract,
	// for example by passing an empty token to SetSession.
	ErrValidation = errors.New("invalid session state")

	// ErrNoRecord is returned by a Storage when nothing has been persisted yet.
	ErrNoRecord = errors.New("no persisted session")
)

// User is the identity of the logged in staff member.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Session is a snapshot of the client authentication state.
type Session struct {
	Token         string
	User          *User
	Authenticated bool
}

// Record is the subset of a Session that is persisted across restarts.
type Record struct {
	Token string `json:"token,omitempty"`
	User  *User  `json:"user,omitempty"`
}

func (s Session) record() *Record {
	return &Record{Token: s.Token, User: cloneUser(s.User)}
}

func fromRecord(rec *Record) Session {
	if rec == nil || rec.Token == "" {
		return Session{}
	}
	return Session{
		Token:         rec.Token,
		User:          cloneUser(rec.User),
		Authenticated: true,
	}
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
