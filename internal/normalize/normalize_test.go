package normalize

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/model"
)

func quietNormalizer(opts ...Option) *Normalizer {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(opts...)
}

func TestNormalize_FriendsKey(t *testing.T) {
	res := quietNormalizer().Normalize([]byte(`{"friends":[{"email":"a@x.com","id":1}]}`))

	require.Len(t, res.Records, 1)
	assert.Equal(t, model.Identity{ID: 1, Email: "a@x.com"}, res.Records[0].Identity)
	assert.Equal(t, "key:friends", res.Shape)
	assert.Empty(t, res.Diagnostics)
}

func TestNormalize_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		shape   string
		emails  []string
	}{
		{
			name:    "bare array",
			payload: `[{"email":"a@x.com"},{"email":"b@x.com"}]`,
			shape:   "array",
			emails:  []string{"a@x.com", "b@x.com"},
		},
		{
			name:    "known key",
			payload: `{"count":1,"sentRequests":[{"email":"a@x.com"}]}`,
			shape:   "key:sentRequests",
			emails:  []string{"a@x.com"},
		},
		{
			name:    "envelope with array",
			payload: `{"success":true,"data":[{"email":"a@x.com"}]}`,
			shape:   "envelope/array",
			emails:  []string{"a@x.com"},
		},
		{
			name:    "envelope with keyed object",
			payload: `{"success":true,"data":{"mentors":[{"email":"m@x.com"}]}}`,
			shape:   "envelope/key:mentors",
			emails:  []string{"m@x.com"},
		},
		{
			name:    "empty known list",
			payload: `{"friends":[]}`,
			shape:   "key:friends",
			emails:  nil,
		},
		{
			name:    "scan picks first list with emails",
			payload: `{"a":[{"x":1}],"b":{"c":[{"email":"c@x.com"}]}}`,
			shape:   "scan:$.b.c",
			emails:  []string{"c@x.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := quietNormalizer().Normalize([]byte(tt.payload))
			assert.Equal(t, tt.shape, res.Shape)

			var emails []string
			for _, r := range res.Records {
				emails = append(emails, r.Identity.Email)
			}
			assert.Equal(t, tt.emails, emails)
		})
	}
}

func TestNormalize_NeverFails(t *testing.T) {
	for _, payload := range []string{``, `null`, `42`, `"str"`, `{`, `{"success":false}`, `{"data":{"nothing":true}}`} {
		t.Run(payload, func(t *testing.T) {
			res := quietNormalizer().Normalize([]byte(payload))
			assert.Empty(t, res.Records)
			assert.NotNil(t, res.Records)
			assert.Equal(t, "unrecognized", res.Shape)
			require.Len(t, res.Diagnostics, 1)

			var de *DecodeError
			assert.ErrorAs(t, res.Diagnostics[0], &de)
		})
	}
}

func TestNormalize_AlternateSpellings(t *testing.T) {
	payload := `[
		{"userID": 4, "email_address": "d@x.com", "image_url": "i1"},
		{"user_id": "5", "email": "e@x.com", "avatarUrl": "i2"},
		{"id": "abc123", "email": "f@x.com", "profileImageURL": "i3"}
	]`
	res := quietNormalizer().Normalize([]byte(payload))
	require.Len(t, res.Records, 3)

	assert.Equal(t, model.Identity{ID: 4, Email: "d@x.com"}, res.Records[0].Identity)
	assert.Equal(t, "i1", res.Records[0].ProfileImageURL)
	assert.Equal(t, model.Identity{ID: 5, Email: "e@x.com"}, res.Records[1].Identity)
	assert.Equal(t, "i2", res.Records[1].ProfileImageURL)

	// non-numeric ids fall back to the email
	assert.Equal(t, model.Identity{Email: "f@x.com"}, res.Records[2].Identity)
	assert.Equal(t, "i3", res.Records[2].ProfileImageURL)
}

func TestNormalize_CustomListKeys(t *testing.T) {
	n := quietNormalizer(WithListKeys("members"))
	res := n.Normalize([]byte(`{"members":[{"email":"a@x.com"}],"friends":[{"email":"b@x.com"}]}`))
	assert.Equal(t, "key:members", res.Shape)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "a@x.com", res.Records[0].Identity.Email)
}

func TestNormalize_Golden(t *testing.T) {
	names := []string{"envelope_nested", "request_rows", "scan_fallback", "unrecognized"}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			raw, err := os.ReadFile(filepath.Join("testdata", "payloads", name+".json"))
			require.NoError(t, err)

			res := quietNormalizer().Normalize(raw)
			g.Assert(t, name, render(res))
		})
	}
}

// render prints a Result in a stable, diff-friendly form.
func render(res Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "shape: %s\n", res.Shape)
	for i, r := range res.Records {
		fmt.Fprintf(&b, "record %d: %s\n", i, r.Identity.Key())
		line := func(label, value string) {
			if value != "" {
				fmt.Fprintf(&b, "  %s: %s\n", label, value)
			}
		}
		line("email", r.Identity.Email)
		line("name", r.DisplayName)
		line("username", r.Username)
		line("title", r.Title)
		line("company", r.Company)
		line("tags", strings.Join(r.Tags, ", "))
		line("image", r.ProfileImageURL)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(&b, "diagnostic: %s\n", d)
	}
	return []byte(b.String())
}
