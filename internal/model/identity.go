package model

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key is the stable map key for an identity within the store.
// Id-based keys look like "id:42"; email-only keys look like "email:a@x.com".
type Key string

// Identity identifies a user. ID is authoritative once known (non-zero).
type Identity struct {
	ID    int64  `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// NewIdentity builds an Identity with a normalized email.
func NewIdentity(id int64, email string) Identity {
	return Identity{ID: id, Email: NormalizeEmail(email)}
}

// ParseIdentity interprets s as a numeric id or, failing that, an email.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, fmt.Errorf("empty identity")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id <= 0 {
			return Identity{}, fmt.Errorf("invalid id %d: must be positive", id)
		}
		return Identity{ID: id}, nil
	}
	if !strings.Contains(s, "@") {
		return Identity{}, fmt.Errorf("identity %q is neither an id nor an email", s)
	}
	return NewIdentity(0, s), nil
}

// NormalizeEmail returns the comparison form of an email address:
// NFC-normalized, trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// Key returns the store key for this identity.
// Returns "" for the zero identity.
func (i Identity) Key() Key {
	if i.ID != 0 {
		return IDKey(i.ID)
	}
	if e := NormalizeEmail(i.Email); e != "" {
		return EmailKey(e)
	}
	return ""
}

// IsZero reports whether the identity carries neither id nor email.
func (i Identity) IsZero() bool {
	return i.ID == 0 && strings.TrimSpace(i.Email) == ""
}

// Matches reports whether two identities refer to the same user.
// Ids win when both sides have one; otherwise emails are compared.
func (i Identity) Matches(o Identity) bool {
	if i.ID != 0 && o.ID != 0 {
		return i.ID == o.ID
	}
	a, b := NormalizeEmail(i.Email), NormalizeEmail(o.Email)
	return a != "" && a == b
}

func (i Identity) String() string {
	switch {
	case i.ID != 0 && i.Email != "":
		return fmt.Sprintf("%d <%s>", i.ID, i.Email)
	case i.ID != 0:
		return strconv.FormatInt(i.ID, 10)
	default:
		return i.Email
	}
}

// IDKey returns the key for a numeric id.
func IDKey(id int64) Key {
	return Key("id:" + strconv.FormatInt(id, 10))
}

// EmailKey returns the key for an email-only identity.
func EmailKey(email string) Key {
	return Key("email:" + NormalizeEmail(email))
}
