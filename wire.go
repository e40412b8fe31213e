package omemo

import (
	"bytes"
	"encoding/binary"
)

// This file implements the minimal Protobuf subset OMEMO's wire
// framing needs: varint-encoded uint32 fields and length-delimited
// byte fields, with field numbers restricted to 1..15 so a field tag
// fits in a single byte. A full Protobuf runtime does not let us
// pin the byte-exact invariants the wire format requires (a fixed
// 33-byte length on serialized keys, rejection of unknown fields,
// truncation errors), so the codec below is hand-written instead.

const (
	wireVarint = 0
	wireLen    = 2
)

// field describes one expected field for parseFields.
type field struct {
	num      int
	typ      int
	required bool
	fixedLen int // if > 0, LEN fields must have exactly this length
}

// parsed holds the decoded value for one field after parseFields
// returns.
type parsed struct {
	found bool
	u32   uint32
	bytes []byte
}

// putVarint appends v to buf in Protobuf base-128 varint form.
func putVarint(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// getVarint parses a varint from the front of s, returning the
// decoded value and the remaining bytes. Higher bits beyond 32 are
// silently discarded rather than overflowing, matching the reference
// decoder's permissive behavior.
func getVarint(s []byte) (v uint32, rest []byte, ok bool) {
	shift := uint(0)
	for i := 0; i < len(s); i++ {
		b := s[i]
		v |= uint32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			return v, s[i+1:], true
		}
	}
	return 0, nil, false
}

// putTag appends a single-byte field tag. fieldNum must be in 1..15.
func putTag(buf []byte, fieldNum, wireType int) []byte {
	return append(buf, byte(fieldNum<<3|wireType))
}

// putUint32Field appends a varint-typed field.
func putUint32Field(buf []byte, fieldNum int, v uint32) []byte {
	buf = putTag(buf, fieldNum, wireVarint)
	return putVarint(buf, v)
}

// putBytesField appends a length-delimited field.
func putBytesField(buf []byte, fieldNum int, data []byte) []byte {
	buf = putTag(buf, fieldNum, wireLen)
	buf = putVarint(buf, uint32(len(data)))
	return append(buf, data...)
}

// parseFields decodes a Protobuf message against the given field
// descriptors (indexed by field number; descriptors[0] is unused).
// It rejects duplicate fields with a mismatched type, length
// mismatches against a fixed-length LEN field, unknown field numbers
// at or beyond len(descriptors), truncation, and missing required
// fields.
func parseFields(data []byte, descriptors []field) (map[int]parsed, error) {
	if len(descriptors) > 16 {
		return nil, newErr("parseFields", KindParam, nil)
	}
	out := make(map[int]parsed, len(descriptors))
	var byNum [16]*field
	for i := range descriptors {
		d := descriptors[i]
		byNum[d.num] = &descriptors[i]
	}

	s := data
	for len(s) > 0 {
		tag := s[0]
		s = s[1:]
		num := int(tag >> 3)
		typ := int(tag & 0x7)
		if num == 0 || num >= len(byNum) || byNum[num] == nil {
			return nil, newErr("parseFields", KindProtobuf, nil)
		}
		d := byNum[num]
		if typ != d.typ {
			return nil, newErr("parseFields", KindProtobuf, nil)
		}
		switch typ {
		case wireVarint:
			v, rest, ok := getVarint(s)
			if !ok {
				return nil, newErr("parseFields", KindProtobuf, nil)
			}
			s = rest
			if p, dup := out[num]; dup && p.u32 != v {
				return nil, newErr("parseFields", KindProtobuf, nil)
			}
			out[num] = parsed{found: true, u32: v}
		case wireLen:
			n, rest, ok := getVarint(s)
			if !ok || uint64(len(rest)) < uint64(n) {
				return nil, newErr("parseFields", KindProtobuf, nil)
			}
			if d.fixedLen != 0 && int(n) != d.fixedLen {
				return nil, newErr("parseFields", KindProtobuf, nil)
			}
			val := rest[:n]
			if p, dup := out[num]; dup && !bytes.Equal(p.bytes, val) {
				return nil, newErr("parseFields", KindProtobuf, nil)
			}
			out[num] = parsed{found: true, bytes: val}
			s = rest[n:]
		default:
			return nil, newErr("parseFields", KindProtobuf, nil)
		}
	}

	for i := range descriptors {
		d := descriptors[i]
		if d.required && !out[d.num].found {
			return nil, newErr("parseFields", KindProtobuf, nil)
		}
	}
	return out, nil
}

// --- PreKeyWhisperMessage / WhisperMessage framing ---

const wireVersion = 0x33

// Field numbers, restricted to 1..15 per the Protobuf subset above.
const (
	fPKMPreKeyID       = 1
	fPKMBaseKey        = 2
	fPKMIdentityKey    = 3
	fPKMMessage        = 4
	fPKMRegistrationID = 5
	fPKMSignedPreKeyID = 6

	fWMDH = 1
	fWMN  = 2
	fWMPN = 3
	fWMCT = 4
)

// PreKeyHeader is the PreKeyWhisperMessage wrapper emitted on every
// message a session sends until it has decrypted at least one reply.
type PreKeyHeader struct {
	PreKeyID       uint32
	BaseKey        SerializedKey
	IdentityKey    SerializedKey
	SignedPreKeyID uint32
	RegistrationID uint32
	Message        []byte // the inner WhisperMessage bytes, unparsed
}

// appendPreKeyHeader serializes h, including the leading version
// byte, and appends it to buf.
func appendPreKeyHeader(buf []byte, h PreKeyHeader) []byte {
	buf = append(buf, wireVersion)
	buf = putUint32Field(buf, fPKMPreKeyID, h.PreKeyID)
	buf = putBytesField(buf, fPKMBaseKey, h.BaseKey[:])
	buf = putBytesField(buf, fPKMIdentityKey, h.IdentityKey[:])
	buf = putBytesField(buf, fPKMMessage, h.Message)
	buf = putUint32Field(buf, fPKMRegistrationID, h.RegistrationID)
	buf = putUint32Field(buf, fPKMSignedPreKeyID, h.SignedPreKeyID)
	return buf
}

// parsePreKeyHeader decodes a PreKeyWhisperMessage, including its
// leading version byte.
func parsePreKeyHeader(data []byte) (PreKeyHeader, error) {
	if len(data) < 1 || data[0] != wireVersion {
		return PreKeyHeader{}, newErr("parsePreKeyHeader", KindCorrupt, nil)
	}
	fields, err := parseFields(data[1:], []field{
		fPKMPreKeyID:       {num: fPKMPreKeyID, typ: wireVarint, required: true},
		fPKMBaseKey:        {num: fPKMBaseKey, typ: wireLen, required: true, fixedLen: len(SerializedKey{})},
		fPKMIdentityKey:    {num: fPKMIdentityKey, typ: wireLen, required: true, fixedLen: len(SerializedKey{})},
		fPKMMessage:        {num: fPKMMessage, typ: wireLen, required: true},
		fPKMRegistrationID: {num: fPKMRegistrationID, typ: wireVarint, required: true},
		fPKMSignedPreKeyID: {num: fPKMSignedPreKeyID, typ: wireVarint, required: true},
	})
	if err != nil {
		return PreKeyHeader{}, err
	}
	var h PreKeyHeader
	h.PreKeyID = fields[fPKMPreKeyID].u32
	copy(h.BaseKey[:], fields[fPKMBaseKey].bytes)
	copy(h.IdentityKey[:], fields[fPKMIdentityKey].bytes)
	h.Message = fields[fPKMMessage].bytes
	h.RegistrationID = fields[fPKMRegistrationID].u32
	h.SignedPreKeyID = fields[fPKMSignedPreKeyID].u32
	return h, nil
}

// MessageHeader is the WhisperMessage header: the sender's current
// ratchet public key and the message counters.
type MessageHeader struct {
	DH SerializedKey
	N  uint32
	PN uint32
}

// appendMessageHeader serializes the version byte, header fields,
// and ciphertext (but not the trailing MAC) to buf.
func appendMessageHeader(buf []byte, h MessageHeader, ciphertext []byte) []byte {
	buf = append(buf, wireVersion)
	buf = putBytesField(buf, fWMDH, h.DH[:])
	buf = putUint32Field(buf, fWMN, h.N)
	buf = putUint32Field(buf, fWMPN, h.PN)
	buf = putBytesField(buf, fWMCT, ciphertext)
	return buf
}

// parseMessage decodes a WhisperMessage body (without the trailing
// MAC, which the caller must have already split off), including its
// leading version byte.
func parseMessage(data []byte) (MessageHeader, []byte, error) {
	if len(data) < 1 || data[0] != wireVersion {
		return MessageHeader{}, nil, newErr("parseMessage", KindCorrupt, nil)
	}
	fields, err := parseFields(data[1:], []field{
		fWMDH: {num: fWMDH, typ: wireLen, required: true, fixedLen: len(SerializedKey{})},
		fWMN:  {num: fWMN, typ: wireVarint, required: true},
		fWMPN: {num: fWMPN, typ: wireVarint, required: true},
		fWMCT: {num: fWMCT, typ: wireLen, required: true},
	})
	if err != nil {
		return MessageHeader{}, nil, err
	}
	ct := fields[fWMCT].bytes
	if len(ct) < 32 || len(ct) > 48 {
		return MessageHeader{}, nil, newErr("parseMessage", KindCorrupt, nil)
	}
	var h MessageHeader
	copy(h.DH[:], fields[fWMDH].bytes)
	h.N = fields[fWMN].u32
	h.PN = fields[fWMPN].u32
	return h, ct, nil
}

// putUint32LE / getUint32LE are small helpers used by serialize.go
// for fixed-width fields that are not part of the Protobuf subset
// (store/session persistence packs plain counters directly).
func putUint32LE(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func getUint32LE(s []byte) (uint32, []byte, bool) {
	if len(s) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(s), s[4:], true
}
