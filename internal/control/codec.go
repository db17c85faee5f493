package control

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Frames are CBOR data items written back-to-back on the socket. Encoding is
// Core Deterministic (RFC 8949 §4.2) so equal values always produce equal
// bytes. Struct fields use their json tags as CBOR map keys.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("control: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("control: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is an encoded CBOR value whose decoding is deferred.
type RawMessage = cbor.RawMessage

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// Request is a frame sent by the client. Stream marks a server-streaming
// call; Cancel asks the server to stop the stream with the same ID.
type Request struct {
	ID     string     `json:"id"`
	Method string     `json:"method,omitempty"`
	Params RawMessage `json:"params,omitempty"`
	Stream bool       `json:"stream,omitempty"`
	Cancel bool       `json:"cancel,omitempty"`
}

// Response is a frame sent by the server. A unary call gets exactly one. A
// stream gets any number of data frames followed by one frame with End set.
type Response struct {
	ID    string     `json:"id"`
	Data  RawMessage `json:"data,omitempty"`
	Error string     `json:"error,omitempty"`
	End   bool       `json:"end,omitempty"`
}

// RemoteError is a rejection reported by the daemon, as opposed to a
// transport failure.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Method + ": " + e.Message
}

// DecodeParams decodes request params into v. Empty params leave v untouched.
func DecodeParams(params RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
