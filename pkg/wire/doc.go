// Package wire defines the envelope exchanged with a post office server
// and the codecs that put it on the wire.
//
// # Envelope
//
// Every frame carries exactly one self-contained envelope:
//
//	{"from":"c1","to":"server","subject":"Hello","content":"How are you?","type":"msg"}
//
// from, to, content and type are required (content may be empty but must be
// present). subject is optional. There is no length prefix and no batching;
// the transport frame is the message boundary.
//
// # Codecs
//
// JSON is the default codec and produces text frames. CBOR produces binary
// frames using integer keys 1-5 in field order.
//
// # Errors
//
// Encode fails with *EncodingError. Decode never panics: any input that is
// not a well-formed envelope yields *DecodingError carrying the offending
// frame, so callers can log and drop it without touching the connection.
package wire
