package remote

import (
	"context"
	"strings"
)

// Client is the backend surface the engine consumes.
//
// Read methods return raw JSON bodies whose shape varies per endpoint and
// backend version. Implementations must be safe for concurrent use.
type Client interface {
	Network(ctx context.Context, userID int64) ([]byte, error)
	FriendRequests(ctx context.Context, userID int64) ([]byte, error)
	SentRequests(ctx context.Context, userID int64) ([]byte, error)
	CandidatePool(ctx context.Context, kind string) ([]byte, error)

	SendFriendRequest(ctx context.Context, userID int64, receiverEmail string) error
	AcceptFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error
	DeclineFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error
}

// TokenSource supplies the session token. The session itself is owned by
// an external collaborator; the client only asks for the current token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token returns the fixed token, or an AUTH error when it is blank.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", NewAuthError("token", 0, "no session token configured")
	}
	return tok, nil
}
