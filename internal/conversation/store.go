package conversation

import (
	"context"
	"errors"
)

// ErrEmptySession is returned for a blank session id.
var ErrEmptySession = errors.New("conversation: session id is required")

// Store is the persistence port for conversation logs.
type Store interface {
	// Messages returns the full log in order, or nil when the session does
	// not exist.
	Messages(ctx context.Context, organizationID int64, sessionID string) ([]Message, error)
	// Append adds msgs to the end of the log and returns its new length.
	Append(ctx context.Context, organizationID int64, sessionID string, msgs ...Message) (int, error)
}
