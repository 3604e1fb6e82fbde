package transport

import (
	"encoding/json"
	"net/url"

	"github.com/xbusio/xbus-go/xbuserr"
)

// Form builds an application/x-www-form-urlencoded body per spec §6:
// every value is JSON-serialised first, then URL-encoded; a value that
// JSON-serialises to the literal null is sent as an empty string rather
// than the four-character string "null".
type Form struct {
	values url.Values
}

// NewForm returns an empty Form.
func NewForm() *Form {
	return &Form{values: url.Values{}}
}

// Set JSON-encodes v and stores it under key. Passing a string already
// intended as raw JSON (e.g. a pre-marshalled ServiceDesc) is valid: it
// is marshalled again, so callers should pass Go values, not JSON text.
func (f *Form) Set(key string, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return xbuserr.Serialization(err)
	}
	if string(encoded) == "null" {
		f.values.Set(key, "")
		return nil
	}
	f.values.Set(key, string(encoded))
	return nil
}

// Encode renders the form body, URL-encoding every value.
func (f *Form) Encode() string {
	return f.values.Encode()
}
