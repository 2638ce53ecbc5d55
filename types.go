package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a server timestamp. It accepts RFC 3339 (with or without
// fractional seconds) and date-only values.
type Timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time().Format(time.RFC3339Nano))
}

// Time returns the value as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return t.Time().IsZero()
}

// String formats the timestamp as RFC 3339.
func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339)
}

// Folder is a user-owned container of documents.
type Folder struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Documents []Document `json:"documents"`
	CreatedAt Timestamp  `json:"created_at"`
}

// Document is a stored file plus its metadata.
type Document struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	FileType  string    `json:"file_type"`
	Folder    int       `json:"folder"`
	Tags      []int     `json:"tags"`
	CreatedAt Timestamp `json:"created_at"`
}

// HasTag reports whether the document carries the tag id.
func (d *Document) HasTag(id int) bool {
	for _, t := range d.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// Tag is a user-scoped label.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Profile is the signed-in user's account.
type Profile struct {
	ID        int    `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PasswordChange is the body of a password change request.
type PasswordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// list decodes list endpoints, which answer either with a bare JSON array or
// with a paginated envelope.
type list[T any] struct {
	Count   int
	Results []T
}

type envelope[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *list[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		l.Count = len(items)
		l.Results = items
		return nil
	}
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	l.Count = env.Count
	l.Results = env.Results
	return nil
}

// DocumentQuery filters ListDocuments.
type DocumentQuery struct {
	Search string // Free-text query; may be empty
	Tags   []int  // Tag ids; may be empty
	Folder int    // Folder id, 0 means any folder
}

// values encodes the query. search and tags are always sent, the way the
// search form submits them.
func (q *DocumentQuery) values() url.Values {
	if q == nil {
		return nil
	}
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("tags", JoinIDs(q.Tags))
	if q.Folder > 0 {
		v.Set("folder", strconv.Itoa(q.Folder))
	}
	return v
}

// JoinIDs joins ids with commas.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// DocumentUpdate is a partial document update. Folder and file cannot be
// changed.
type DocumentUpdate struct {
	Name *string
	Tags []int // nil leaves tags unchanged, empty clears them
}

// MarshalJSON implements json.Marshaler.
func (u DocumentUpdate) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 2)
	if u.Name != nil {
		m["name"] = *u.Name
	}
	if u.Tags != nil {
		m["tags"] = u.Tags
	}
	return json.Marshal(m)
}
