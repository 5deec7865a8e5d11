package types

import (
	"io"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"pkgbind/internal/utils"
	"pkgbind/internal/value"
)

var (
	_ easyjson.Marshaler = (*Status)(nil)
	_ easyjson.Marshaler = (*CallResponse)(nil)
	_ easyjson.Marshaler = (*BuiltinList)(nil)
	_ easyjson.Marshaler = (*ReadyCheck)(nil)
)

type Status struct {
	Server  string `json:"server,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func (r *Status) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	r.fields(w)
	w.RawByte('}')
}

// fields writes the members of r without the surrounding braces so the
// status can be inlined into other responses.
func (r *Status) fields(w *jwriter.Writer) {
	w.RawString(`"status":`)
	w.String(r.Status)
	if r.Server != "" {
		w.RawString(`,"server":`)
		w.String(r.Server)
	}
	if r.Message != "" {
		w.RawString(`,"message":`)
		w.String(r.Message)
	}
	if r.Code != 0 {
		w.RawString(`,"code":`)
		w.Int(r.Code)
	}
}

func (r *Status) MarshalJSON() ([]byte, error)       { return easyjson.Marshal(r) }
func (r *Status) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

// CallResponse is the outcome of one builtin call. Error is set when the
// call was rejected before it ran; a builtin that ran and failed reports
// through Result and the last error instead.
type CallResponse struct {
	Status  string      `json:"status"`
	Builtin string      `json:"builtin"`
	Result  value.Value `json:"result"`
	Error   string      `json:"error,omitempty"`
}

func (r *CallResponse) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"status":`)
	w.String(r.Status)
	w.RawString(`,"builtin":`)
	w.String(r.Builtin)
	w.RawString(`,"result":`)
	r.Result.MarshalEasyJSON(w)
	if r.Error != "" {
		w.RawString(`,"error":`)
		w.String(r.Error)
	}
	w.RawByte('}')
}

func (r *CallResponse) MarshalJSON() ([]byte, error)       { return easyjson.Marshal(r) }
func (r *CallResponse) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

// BuiltinInfo describes one registered builtin by its parameter kinds.
type BuiltinInfo struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

type BuiltinList struct {
	Status   Status        `json:",inline"`
	Builtins []BuiltinInfo `json:"builtins"`
	Count    int           `json:"count"`
}

func (r *BuiltinList) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	r.Status.fields(w)
	w.RawString(`,"builtins":[`)
	for i, b := range r.Builtins {
		if i > 0 {
			w.RawByte(',')
		}
		w.RawString(`{"name":`)
		w.String(b.Name)
		w.RawString(`,"params":[`)
		for j, p := range b.Params {
			if j > 0 {
				w.RawByte(',')
			}
			w.String(p)
		}
		w.RawString(`]}`)
	}
	w.RawString(`],"count":`)
	w.Int(r.Count)
	w.RawByte('}')
}

func (r *BuiltinList) MarshalJSON() ([]byte, error)       { return easyjson.Marshal(r) }
func (r *BuiltinList) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

type Checks struct {
	Repositories int `json:"repositories"`
	Builtins     int `json:"builtins"`
}

type ReadyCheck struct {
	Status Status `json:"status"`
	Checks Checks `json:"checks"`
}

func (r *ReadyCheck) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"status":`)
	r.Status.MarshalEasyJSON(w)
	w.RawString(`,"checks":{"repositories":`)
	w.Int(r.Checks.Repositories)
	w.RawString(`,"builtins":`)
	w.Int(r.Checks.Builtins)
	w.RawString(`}}`)
}

func (r *ReadyCheck) MarshalJSON() ([]byte, error)       { return easyjson.Marshal(r) }
func (r *ReadyCheck) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }
