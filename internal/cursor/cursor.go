// Package cursor encodes and decodes opaque pagination cursors.
//
// A cursor captures the sort key values of a boundary row together with
// a fingerprint of the query shape it was issued for. Decoding verifies
// the fingerprint so a cursor cannot be replayed against a different
// filter or sort order.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Direction of a page fetch relative to the cursor position.
type Direction string

const (
	Forward  Direction = "f"
	Backward Direction = "b"
)

// Cursor is the decoded form of an opaque page token.
type Cursor struct {
	// Key fingerprints the filter and sort the cursor belongs to.
	Key uint64 `json:"k"`
	// Dir records which way the page containing this boundary was read.
	Dir Direction `json:"d"`
	// Values holds the boundary row's sort key values in sort order.
	Values []any `json:"v"`
}

// DecodeError is returned for tokens that are not valid cursors.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid cursor: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MismatchError is returned when a structurally valid cursor was issued
// for a different query shape.
type MismatchError struct{}

func (e *MismatchError) Error() string {
	return "cursor does not match the query it was issued for"
}

// Fingerprint hashes the normalized query text and sort specification
// into the key carried by every cursor.
func Fingerprint(query string, sortKeys []string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	for _, k := range sortKeys {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strings.ToLower(k)))
	}
	return h.Sum64()
}

// Encode serializes the cursor into an opaque URL-safe token.
func Encode(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token and verifies it against the expected query
// fingerprint.
func Decode(token string, key uint64) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, &DecodeError{Err: err}
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, &DecodeError{Err: err}
	}
	if c.Dir != Forward && c.Dir != Backward {
		return Cursor{}, &DecodeError{Err: fmt.Errorf("unknown direction %q", c.Dir)}
	}
	if len(c.Values) == 0 {
		return Cursor{}, &DecodeError{Err: fmt.Errorf("empty boundary values")}
	}
	if c.Key != key {
		return Cursor{}, &MismatchError{}
	}
	return c, nil
}
