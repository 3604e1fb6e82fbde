package transport

import (
	"encoding/json"

	"github.com/xbusio/xbus-go/xbuserr"
)

// envelope is the wire shape of every registry response per spec §6:
// {"ok": bool, "result": T|null, "error": {"code","message","keys"}|null}.
type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *envelopeError  `json:"error"`
}

type envelopeError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Keys    []string `json:"keys"`
}

// resolve converts an envelope into its raw result bytes or a typed
// xbuserr.Error, matching the Request(code,message)/NotPermitted(msg,
// keys) split in spec §7.
func (e *envelope) resolve() (json.RawMessage, error) {
	if e.OK {
		return e.Result, nil
	}
	if e.Error == nil {
		return nil, xbuserr.Other("response envelope: ok=false with no error")
	}
	if e.Error.Code == "NOT_PERMITTED" {
		return nil, xbuserr.NotPermitted(e.Error.Message, e.Error.Keys)
	}
	return nil, xbuserr.Request(e.Error.Code, e.Error.Message)
}
