package model

import (
	"fmt"
	"slices"
)

// State is the relationship between the current user and another identity.
type State int

const (
	// StateNone means no relationship is known (unknown or hidden).
	StateNone State = iota
	// StateCandidate means the identity is a suggested connection.
	StateCandidate
	// StateOutgoingPending means the current user sent a request.
	StateOutgoingPending
	// StateIncomingPending means the identity sent the current user a request.
	StateIncomingPending
	// StateAccepted means the two users are connected.
	StateAccepted
)

var stateNames = map[State]string{
	StateNone:            "None",
	StateCandidate:       "Candidate",
	StateOutgoingPending: "OutgoingPending",
	StateIncomingPending: "IncomingPending",
	StateAccepted:        "Accepted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsRelationship reports whether s is one of the three relationship states.
func (s State) IsRelationship() bool {
	return s == StateAccepted || s == StateOutgoingPending || s == StateIncomingPending
}

// ParseState parses the String() form of a State.
func ParseState(s string) (State, bool) {
	for st, name := range stateNames {
		if name == s {
			return st, true
		}
	}
	return StateNone, false
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	st, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("unknown state %q", b)
	}
	*s = st
	return nil
}

// Record is one identity's profile as observed from the remote sources,
// tagged with its current relationship state.
type Record struct {
	Identity        Identity `json:"identity"`
	DisplayName     string   `json:"display_name,omitempty"`
	Username        string   `json:"username,omitempty"`
	Title           string   `json:"title,omitempty"`
	Company         string   `json:"company,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ProfileImageURL string   `json:"profile_image_url,omitempty"`
	State           State    `json:"state"`
}

// Absorb merges o into r without ever replacing a populated field with a
// blank one. The state is left untouched; it is derived by the store.
func (r Record) Absorb(o Record) Record {
	if o.Identity.ID != 0 {
		r.Identity.ID = o.Identity.ID
	}
	if o.Identity.Email != "" {
		r.Identity.Email = o.Identity.Email
	}
	r.DisplayName = pick(r.DisplayName, o.DisplayName)
	r.Username = pick(r.Username, o.Username)
	r.Title = pick(r.Title, o.Title)
	r.Company = pick(r.Company, o.Company)
	r.ProfileImageURL = pick(r.ProfileImageURL, o.ProfileImageURL)
	if len(o.Tags) > 0 {
		r.Tags = slices.Clone(o.Tags)
	}
	return r
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Tags = slices.Clone(r.Tags)
	return r
}

func pick(cur, next string) string {
	if next != "" {
		return next
	}
	return cur
}
