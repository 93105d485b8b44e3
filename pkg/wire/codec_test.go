package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope() Envelope {
	return Envelope{
		From:    "c1",
		To:      "server",
		Subject: "Hello",
		Content: "How are you?",
		Type:    TypeMessage,
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"sample", sampleEnvelope()},
		{"empty subject and content", Envelope{From: "a", To: "b", Type: TypeLog}},
		{"login", Envelope{From: "python-test-client-001", To: ServerRecipient, Subject: "login", Content: "your_token_here", Type: TypeLogin}},
		{"unicode", Envelope{From: "客户端", To: "服务器", Subject: "你好", Content: "<b>&</b> \"quoted\"\n", Type: TypeMessage}},
	}

	for _, codec := range []Codec{JSON, CBOR} {
		for _, tt := range tests {
			t.Run(codec.Name()+"/"+tt.name, func(t *testing.T) {
				data, err := codec.Encode(tt.env)
				require.NoError(t, err)

				got, err := codec.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, tt.env, got)
			})
		}
	}
}

func TestEncodeSampleContainsAllFields(t *testing.T) {
	data, err := Encode(sampleEnvelope())
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"from":"c1","to":"server","subject":"Hello","content":"How are you?","type":"msg"}`,
		string(data))

	// Field order is fixed so encodings are reproducible.
	assert.Equal(t,
		`{"from":"c1","to":"server","subject":"Hello","content":"How are you?","type":"msg"}`,
		string(data))
}

func TestEncodeDeterministic(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		a, err := codec.Encode(sampleEnvelope())
		require.NoError(t, err)
		b, err := codec.Encode(sampleEnvelope())
		require.NoError(t, err)
		assert.Equal(t, a, b, codec.Name())
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		field   string
		wantErr error
	}{
		{"missing from", Envelope{To: "b", Type: "msg"}, "from", ErrMissingField},
		{"missing to", Envelope{From: "a", Type: "msg"}, "to", ErrMissingField},
		{"missing type", Envelope{From: "a", To: "b"}, "type", ErrMissingField},
		{"invalid utf8 content", Envelope{From: "a", To: "b", Type: "msg", Content: "\xff\xfe"}, "content", ErrNotText},
		{"invalid utf8 subject", Envelope{From: "a", To: "b", Type: "msg", Subject: string([]byte{0xc3})}, "subject", ErrNotText},
	}

	for _, codec := range []Codec{JSON, CBOR} {
		for _, tt := range tests {
			t.Run(codec.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := codec.Encode(tt.env)
				require.Error(t, err)

				var encErr *EncodingError
				require.True(t, errors.As(err, &encErr), "expected *EncodingError, got %T", err)
				assert.Equal(t, tt.field, encErr.Field)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	}
}

func TestNewEnvelopeValidates(t *testing.T) {
	env, err := NewEnvelope("c1", "server", "Hello", "How are you?", TypeMessage)
	require.NoError(t, err)
	assert.Equal(t, sampleEnvelope(), env)

	_, err = NewEnvelope("", "server", "", "", TypeMessage)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestJSONDecodeTotality(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		field   string
	}{
		{"empty", "", ErrEmptyFrame, ""},
		{"whitespace", "   ", ErrMalformed, ""},
		{"plain text", "Hello, server!", ErrMalformed, ""},
		{"truncated", `{"from":"c1","to":"ser`, ErrMalformed, ""},
		{"array", `[1,2,3]`, ErrMalformed, ""},
		{"string", `"msg"`, ErrMalformed, ""},
		{"null", `null`, ErrMalformed, ""},
		{"number", `42`, ErrMalformed, ""},
		{"empty object", `{}`, ErrMissingField, "from"},
		{"to as array", `{"from":"a","to":["b","c"],"content":"x","type":"msg"}`, ErrWrongFieldType, "to"},
		{"content as object", `{"from":"a","to":"b","content":{"token":"t"},"type":"login"}`, ErrWrongFieldType, "content"},
		{"type as number", `{"from":"a","to":"b","content":"x","type":1}`, ErrWrongFieldType, "type"},
		{"missing content", `{"from":"a","to":"b","type":"msg"}`, ErrMissingField, "content"},
		{"null content", `{"from":"a","to":"b","content":null,"type":"msg"}`, ErrMissingField, "content"},
		{"empty from", `{"from":"","to":"b","content":"","type":"msg"}`, ErrMissingField, "from"},
		{"empty type", `{"from":"a","to":"b","content":"","type":""}`, ErrMissingField, "type"},
		{"upper-case keys", `{"FROM":"a","TO":"b","CONTENT":"","TYPE":"x"}`, ErrMissingField, "from"},
		{"mixed-case type", `{"from":"a","to":"b","content":"","Type":"msg"}`, ErrMissingField, "type"},
		{"trailing garbage", `{"from":"a","to":"b","content":"","type":"msg"}}`, ErrMalformed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			var err error
			require.NotPanics(t, func() {
				env, err = Decode([]byte(tt.input))
			})
			require.Error(t, err)
			assert.Equal(t, Envelope{}, env)

			var decErr *DecodingError
			require.True(t, errors.As(err, &decErr), "expected *DecodingError, got %T", err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.field, decErr.Field)
			assert.Equal(t, []byte(tt.input), decErr.Frame)
		})
	}
}

func TestJSONDecodeRejectsInvalidUTF8(t *testing.T) {
	frame := []byte("{\"from\":\"a\xff\",\"to\":\"b\",\"content\":\"\",\"type\":\"msg\"}")
	_, err := Decode(frame)
	var decErr *DecodingError
	require.True(t, errors.As(err, &decErr))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJSONDecodeOptionalSubject(t *testing.T) {
	env, err := Decode([]byte(`{"from":"a","to":"b","content":"","type":"msg","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, Envelope{From: "a", To: "b", Type: "msg"}, env)
}

func TestCBORDecodeTotality(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0xff},
		{0xa1},             // map header with no entries
		{0x01},             // integer
		{0x63, 'a', 'b'},   // truncated text
		{0xa1, 0x01, 0x01}, // from as integer
		[]byte(`{"from":"a"}`),
	}

	for _, in := range inputs {
		var err error
		require.NotPanics(t, func() {
			_, err = CBOR.Decode(in)
		})
		var decErr *DecodingError
		assert.True(t, errors.As(err, &decErr), "input %x: expected *DecodingError, got %v", in, err)
	}
}

func TestDecodingErrorCopiesFrame(t *testing.T) {
	frame := []byte("not json")
	_, err := Decode(frame)

	var decErr *DecodingError
	require.True(t, errors.As(err, &decErr))

	frame[0] = 'X'
	assert.Equal(t, "not json", string(decErr.Frame))
	assert.True(t, strings.Contains(decErr.Error(), "8 bytes"))
}

func TestPeekType(t *testing.T) {
	assert.Equal(t, "msg", PeekType([]byte(`{"from":"a","type":"msg"}`)))
	assert.Equal(t, "heartbeat", PeekType([]byte(`{"type":"heartbeat"}`)))
	assert.Equal(t, "", PeekType([]byte(`{"type":1}`)))
	assert.Equal(t, "", PeekType([]byte(`Ping`)))
	assert.Equal(t, "", PeekType(nil))
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, JSON, c)

	c, err = CodecByName("cbor")
	require.NoError(t, err)
	assert.True(t, c.Binary())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestEnvelopeIsControl(t *testing.T) {
	assert.True(t, Envelope{Type: TypeLogin}.IsControl())
	assert.True(t, Envelope{Type: TypeHeartbeat}.IsControl())
	assert.False(t, Envelope{Type: TypeMessage}.IsControl())
}
