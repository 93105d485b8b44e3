package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/gjson"
)

// Codec turns envelopes into frame payloads and back.
type Codec interface {
	// Name identifies the codec in configuration ("json", "cbor").
	Name() string

	// Binary reports whether encoded frames must travel as binary frames.
	Binary() bool

	// Encode serializes a valid envelope.
	Encode(env Envelope) ([]byte, error)

	// Decode parses one frame. It never panics.
	Decode(frame []byte) (Envelope, error)
}

// Codecs available by name.
var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case CBOR.Name():
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Encode serializes env as JSON text.
func Encode(env Envelope) ([]byte, error) {
	return JSON.Encode(env)
}

// Decode parses a JSON text frame into an envelope.
func Decode(frame []byte) (Envelope, error) {
	return JSON.Decode(frame)
}

// PeekType returns the "type" field of a JSON frame without decoding the
// rest of it. It returns "" when the frame is not a JSON object or the
// field is missing or not a string.
func PeekType(frame []byte) string {
	if !gjson.ValidBytes(frame) {
		return ""
	}
	v := gjson.GetBytes(frame, "type")
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// decodedEnvelope mirrors Envelope with pointer fields so that absent and
// empty values can be told apart.
type decodedEnvelope struct {
	From    *string `cbor:"1,keyasint"`
	To      *string `cbor:"2,keyasint"`
	Subject *string `cbor:"3,keyasint"`
	Content *string `cbor:"4,keyasint"`
	Type    *string `cbor:"5,keyasint"`
}

func (d *decodedEnvelope) envelope(frame []byte) (Envelope, error) {
	required := [...]struct {
		name  string
		value *string
	}{
		{"from", d.From},
		{"to", d.To},
		{"content", d.Content},
		{"type", d.Type},
	}
	for _, f := range required {
		if f.value == nil {
			return Envelope{}, newDecodingError(frame, f.name, ErrMissingField)
		}
	}
	if *d.From == "" {
		return Envelope{}, newDecodingError(frame, "from", ErrMissingField)
	}
	if *d.To == "" {
		return Envelope{}, newDecodingError(frame, "to", ErrMissingField)
	}
	if *d.Type == "" {
		return Envelope{}, newDecodingError(frame, "type", ErrMissingField)
	}

	env := Envelope{
		From:    *d.From,
		To:      *d.To,
		Content: *d.Content,
		Type:    *d.Type,
	}
	if d.Subject != nil {
		env.Subject = *d.Subject
	}
	return env, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

func (jsonCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, newDecodingError(frame, "", ErrEmptyFrame)
	}
	if !gjson.ValidBytes(frame) {
		return Envelope{}, newDecodingError(frame, "", ErrMalformed)
	}
	obj := gjson.ParseBytes(frame)
	if !obj.IsObject() {
		return Envelope{}, newDecodingError(frame, "", fmt.Errorf("%w: not a JSON object", ErrMalformed))
	}

	// Keys match exactly; "FROM" is not "from".
	var d decodedEnvelope
	for _, f := range [...]struct {
		name string
		dst  **string
	}{
		{"from", &d.From},
		{"to", &d.To},
		{"subject", &d.Subject},
		{"content", &d.Content},
		{"type", &d.Type},
	} {
		v := obj.Get(f.name)
		switch v.Type {
		case gjson.Null:
			continue
		case gjson.String:
			if !utf8.ValidString(v.Str) {
				return Envelope{}, newDecodingError(frame, f.name, fmt.Errorf("%w: invalid UTF-8", ErrMalformed))
			}
			str := v.Str
			*f.dst = &str
		default:
			return Envelope{}, newDecodingError(frame, f.name, ErrWrongFieldType)
		}
	}
	return d.envelope(frame)
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxNestedLevels:   16,
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Binary() bool { return true }

func (cborCodec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(env)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

func (cborCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, newDecodingError(frame, "", ErrEmptyFrame)
	}

	var d decodedEnvelope
	if err := cborDecMode.Unmarshal(frame, &d); err != nil {
		var typeErr *cbor.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Envelope{}, newDecodingError(frame, "", fmt.Errorf("%w: %v", ErrWrongFieldType, err))
		}
		return Envelope{}, newDecodingError(frame, "", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return d.envelope(frame)
}
