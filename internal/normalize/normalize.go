package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/graphsync/internal/model"
)

// DefaultListKeys are the object keys known to hold a profile list.
var DefaultListKeys = []string{
	"friends",
	"connections",
	"network",
	"friendRequests",
	"requests",
	"sentRequests",
	"users",
	"entrepreneurs",
	"mentors",
	"candidates",
	"results",
	"items",
}

// maxScanDepth bounds how far the fallback scan descends into nested objects.
const maxScanDepth = 4

// Result is the outcome of normalizing one payload.
type Result struct {
	// Records are the decoded rows in payload order.
	Records []model.Record

	// Shape names the parser that matched, e.g. "array", "key:friends",
	// "envelope/key:users", "scan:$.payload.people" or "unrecognized".
	Shape string

	// Diagnostics lists every *DecodeError encountered.
	Diagnostics []error
}

// Normalizer decodes payloads with an ordered set of shape parsers.
// A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	listKeys []string
	logger   *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithListKeys replaces the known list keys.
func WithListKeys(keys ...string) Option {
	return func(n *Normalizer) {
		n.listKeys = append([]string(nil), keys...)
	}
}

// WithLogger sets the logger diagnostics are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = l
	}
}

// New creates a Normalizer with the default list keys.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		listKeys: DefaultListKeys,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// shapeParser attempts one payload shape. ok reports whether the shape
// matched; a matched shape may still yield zero records.
type shapeParser func(n *Normalizer, raw json.RawMessage, res *Result) bool

// parsers is the fixed parse order.
var parsers = []shapeParser{
	(*Normalizer).parseArray,
	(*Normalizer).parseKeyed,
	(*Normalizer).parseEnvelope,
	(*Normalizer).parseScan,
}

// Normalize decodes raw into records. It never returns an error; problems
// are reported in Result.Diagnostics and logged at warn level.
func (n *Normalizer) Normalize(raw []byte) Result {
	res := Result{Records: []model.Record{}}
	trimmed := bytes.TrimSpace(raw)

	if !json.Valid(trimmed) {
		res.Shape = "unrecognized"
		res.Diagnostics = append(res.Diagnostics, &DecodeError{Path: "$", Reason: "invalid JSON"})
		n.report(res)
		return res
	}

	for _, parse := range parsers {
		if parse(n, trimmed, &res) {
			n.report(res)
			return res
		}
	}

	res.Shape = "unrecognized"
	res.Diagnostics = append(res.Diagnostics, &DecodeError{Path: "$", Reason: "no array of profiles found"})
	n.report(res)
	return res
}

func (n *Normalizer) report(res Result) {
	for _, d := range res.Diagnostics {
		n.logger.Warn("payload diagnostic",
			"shape", res.Shape,
			"error", d,
		)
	}
}

func (n *Normalizer) parseArray(raw json.RawMessage, res *Result) bool {
	if !isArray(raw) {
		return false
	}
	res.Shape = "array"
	n.collect("$", raw, res)
	return true
}

func (n *Normalizer) parseKeyed(raw json.RawMessage, res *Result) bool {
	fields, ok := decodeObject(raw)
	if !ok {
		return false
	}
	key, list, ok := n.findListKey(fields)
	if !ok {
		return false
	}
	res.Shape = "key:" + key
	n.collect("$."+key, list, res)
	return true
}

func (n *Normalizer) parseEnvelope(raw json.RawMessage, res *Result) bool {
	fields, ok := decodeObject(raw)
	if !ok {
		return false
	}
	data, ok := lookup(fields, "data")
	if !ok {
		return false
	}
	if isArray(data) {
		res.Shape = "envelope/array"
		n.collect("$.data", data, res)
		return true
	}
	inner, ok := decodeObject(data)
	if !ok {
		return false
	}
	key, list, ok := n.findListKey(inner)
	if !ok {
		return false
	}
	res.Shape = "envelope/key:" + key
	n.collect("$.data."+key, list, res)
	return true
}

func (n *Normalizer) parseScan(raw json.RawMessage, res *Result) bool {
	path, list, ok := scan("$", raw, 0)
	if !ok {
		return false
	}
	res.Shape = "scan:" + path
	n.collect(path, list, res)
	return true
}

// findListKey returns the first known list key whose value is an array.
// Keys are tried in preference order, not document order.
func (n *Normalizer) findListKey(fields []field) (string, json.RawMessage, bool) {
	for _, key := range n.listKeys {
		if v, ok := lookup(fields, key); ok && isArray(v) {
			return key, v, true
		}
	}
	return "", nil, false
}

// collect decodes every element of an array into res.Records.
func (n *Normalizer) collect(path string, list json.RawMessage, res *Result) {
	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		res.Diagnostics = append(res.Diagnostics, &DecodeError{Path: path, Reason: err.Error()})
		return
	}
	for i, elem := range elems {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		r, ok := decodeRow(elem)
		if !ok {
			res.Diagnostics = append(res.Diagnostics, &DecodeError{Path: elemPath, Reason: "element is not an object"})
			continue
		}
		rec, ok := r.record()
		if !ok {
			res.Diagnostics = append(res.Diagnostics, &DecodeError{Path: elemPath, Reason: "no id or email"})
			continue
		}
		res.Records = append(res.Records, rec)
	}
}

// scan walks objects in document order looking for the first non-empty
// array whose elements are objects and at least one carries an email.
func scan(path string, raw json.RawMessage, depth int) (string, json.RawMessage, bool) {
	if depth > maxScanDepth {
		return "", nil, false
	}
	if isArray(raw) {
		if isProfileArray(raw) {
			return path, raw, true
		}
		return "", nil, false
	}
	fields, ok := decodeObject(raw)
	if !ok {
		return "", nil, false
	}
	for _, f := range fields {
		if p, list, ok := scan(path+"."+f.key, f.value, depth+1); ok {
			return p, list, true
		}
	}
	return "", nil, false
}

func isProfileArray(raw json.RawMessage) bool {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) == 0 {
		return false
	}
	withEmail := false
	for _, elem := range elems {
		r, ok := decodeRow(elem)
		if !ok {
			return false
		}
		if r.profile().has(emailKeys) {
			withEmail = true
		}
	}
	return withEmail
}
