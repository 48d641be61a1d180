package model

import "fmt"

// Source names one remote endpoint feeding the connection graph.
type Source string

const (
	// SourceNetwork lists accepted connections.
	SourceNetwork Source = "network"
	// SourceIncoming lists requests received by the current user.
	SourceIncoming Source = "incoming"
	// SourceOutgoing lists requests sent by the current user.
	SourceOutgoing Source = "outgoing"
	// SourceEntrepreneurs is the entrepreneur candidate pool.
	SourceEntrepreneurs Source = "candidates:entrepreneurs"
	// SourceMentors is the mentor candidate pool.
	SourceMentors Source = "candidates:mentors"
)

// AllSources lists every source in refresh order.
var AllSources = []Source{
	SourceNetwork,
	SourceIncoming,
	SourceOutgoing,
	SourceEntrepreneurs,
	SourceMentors,
}

// IsCandidatePool reports whether the source feeds the candidate partition.
func (s Source) IsCandidatePool() bool {
	return s == SourceEntrepreneurs || s == SourceMentors
}

// State returns the relationship state a membership in s implies.
func (s Source) State() State {
	switch s {
	case SourceNetwork:
		return StateAccepted
	case SourceIncoming:
		return StateIncomingPending
	case SourceOutgoing:
		return StateOutgoingPending
	case SourceEntrepreneurs, SourceMentors:
		return StateCandidate
	default:
		return StateNone
	}
}

// CandidateKind returns the pool kind used by the remote candidate endpoint.
func (s Source) CandidateKind() string {
	switch s {
	case SourceEntrepreneurs:
		return "entrepreneurs"
	case SourceMentors:
		return "mentors"
	default:
		return ""
	}
}

// ParseSource accepts a source name or a candidate kind shorthand.
func ParseSource(s string) (Source, error) {
	switch s {
	case "entrepreneurs":
		return SourceEntrepreneurs, nil
	case "mentors":
		return SourceMentors, nil
	case "sent":
		return SourceOutgoing, nil
	case "requests":
		return SourceIncoming, nil
	}
	for _, src := range AllSources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}
