package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/roach88/graphsync/internal/model"
)

// Alternate spellings observed across endpoints, in preference order.
var (
	idKeys       = []string{"id", "_id", "userId", "user_id", "userID"}
	emailKeys    = []string{"email", "emailAddress", "email_address"}
	nameKeys     = []string{"displayName", "display_name", "name", "fullName", "full_name"}
	usernameKeys = []string{"username", "userName", "user_name", "handle"}
	titleKeys    = []string{"title", "position", "jobTitle", "job_title", "headline"}
	companyKeys  = []string{"company", "companyName", "company_name", "organization"}
	tagKeys      = []string{"tags", "skills", "interests"}
	imageKeys    = []string{"profileImageURL", "profileImageUrl", "profile_image_url", "imageUrl", "image_url", "avatar", "avatarUrl", "photo"}

	// wrapperKeys hold the profile inside request rows such as
	// {"sender": {...}, "createdAt": ...}.
	wrapperKeys = []string{"sender", "receiver", "requester", "user", "friend"}
)

// row is one decoded JSON object. It never leaves this package.
type row map[string]json.RawMessage

func decodeRow(raw json.RawMessage) (row, bool) {
	var r row
	if err := json.Unmarshal(raw, &r); err != nil || r == nil {
		return nil, false
	}
	return r, true
}

func (r row) has(keys []string) bool {
	for _, k := range keys {
		if v, ok := r[k]; ok && !isNull(v) {
			return true
		}
	}
	return false
}

// profile returns the object carrying the identity fields, unwrapping
// request envelopes when the row itself has no identity.
func (r row) profile() row {
	if r.has(idKeys) || r.has(emailKeys) {
		return r
	}
	for _, k := range wrapperKeys {
		if inner, ok := decodeRow(r[k]); ok && (inner.has(idKeys) || inner.has(emailKeys)) {
			return inner
		}
	}
	return r
}

func (r row) str(keys []string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// id accepts JSON numbers and numeric strings. Non-numeric ids (e.g. Mongo
// object ids) are ignored; the email then serves as the identity.
func (r row) id() int64 {
	for _, k := range idKeys {
		v, ok := r[k]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			if id, err := n.Int64(); err == nil && id > 0 {
				return id
			}
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && id > 0 {
				return id
			}
		}
	}
	return 0
}

func (r row) tags() []string {
	for _, k := range tagKeys {
		v, ok := r[k]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			return cleanTags(list)
		}
		var joined string
		if err := json.Unmarshal(v, &joined); err == nil {
			return cleanTags(strings.Split(joined, ","))
		}
	}
	return nil
}

func (r row) displayName() string {
	if name := r.str(nameKeys); name != "" {
		return name
	}
	first := r.str([]string{"firstName", "first_name"})
	last := r.str([]string{"lastName", "last_name"})
	return strings.TrimSpace(first + " " + last)
}

// record converts a row into a Record. ok is false when the row has
// neither id nor email.
func (r row) record() (model.Record, bool) {
	p := r.profile()
	identity := model.NewIdentity(p.id(), p.str(emailKeys))
	if identity.IsZero() {
		return model.Record{}, false
	}
	return model.Record{
		Identity:        identity,
		DisplayName:     p.displayName(),
		Username:        p.str(usernameKeys),
		Title:           p.str(titleKeys),
		Company:         p.str(companyKeys),
		Tags:            p.tags(),
		ProfileImageURL: p.str(imageKeys),
	}, true
}

func cleanTags(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
