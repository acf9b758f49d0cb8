// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// MadaraID is the magic string identifying a full MessageHeader datagram
// (spec §4.4); a mismatch on receive means "drop". MadaraReducedID marks
// the same offset on a ReducedMessageHeader datagram. Both are 8 bytes
// and sit at the same fixed offset (right after the 8-byte size field),
// so which one a datagram carries is the wire signal spec §4.4 says
// receive uses to tell the two formats apart — never the buffer length,
// which a reduced header's record body can easily exceed.
const MadaraID = "KaRL1.3\x00"
const MadaraReducedID = "KaRL1.3\x01"

// Message type tags (spec §6, header `type:u32` field). FragmentBit is
// ORed into one of the base types when a message has been split
// (spec §4.4: "type |= FRAGMENT").
const (
	TypeMultiAssign uint32 = 2
	TypeRegister    uint32 = 8
	FragmentBit     uint32 = 16
	RefragmentBit   uint32 = 32
)

const (
	domainFieldLen     = 32
	originatorFieldLen = 64
)

// MessageHeader is the fixed-size prefix of every datagram (spec §4.4).
// All integers are big-endian on the wire regardless of host.
type MessageHeader struct {
	Size       uint64
	Domain     string
	Originator string
	Type       uint32
	Updates    uint32
	Quality    uint32
	Clock      uint64
	Timestamp  uint64
	TTL        uint8
}

// HeaderSize is the encoded byte length of a full MessageHeader.
const HeaderSize = 8 + 8 + domainFieldLen + originatorFieldLen + 4 + 4 + 4 + 8 + 8 + 1

// ReducedHeaderSize is the encoded byte length of a ReducedMessageHeader
// (spec §4.4: "omits domain and originator to save bytes").
const ReducedHeaderSize = HeaderSize - domainFieldLen - originatorFieldLen

// FragmentHeaderExtra is the additional bytes a fragment header carries
// beyond MessageHeader/ReducedHeaderSize (spec §4.4: "update_number:u32"
// plus "updates:u32 reused as total fragment count" — the latter is
// already counted in the base header, so only update_number is extra).
const FragmentHeaderExtra = 4

func putFixedString(buf []byte, s string) {
	n := copy(buf, s)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}

func getFixedString(buf []byte) string {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return string(buf)
	}
	return string(buf[:i])
}

// Encode writes h as a full (non-reduced) header.
func (h MessageHeader) Encode() []byte {
	return h.encode(false)
}

// EncodeReduced writes h as a ReducedMessageHeader, omitting domain and
// originator (spec §6 `send_reduced_message_header`).
func (h MessageHeader) EncodeReduced() []byte {
	return h.encode(true)
}

func (h MessageHeader) encode(reduced bool) []byte {
	size := HeaderSize
	if reduced {
		size = ReducedHeaderSize
	}
	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint64(buf[off:], h.Size)
	off += 8
	magic := MadaraID
	if reduced {
		magic = MadaraReducedID
	}
	copy(buf[off:off+8], []byte(magic))
	off += 8
	if !reduced {
		putFixedString(buf[off:off+domainFieldLen], h.Domain)
		off += domainFieldLen
		putFixedString(buf[off:off+originatorFieldLen], h.Originator)
		off += originatorFieldLen
	}
	binary.BigEndian.PutUint32(buf[off:], h.Type)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.Updates)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.Quality)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], h.Clock)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], h.Timestamp)
	off += 8
	buf[off] = h.TTL
	return buf
}

// DecodeHeader reads a header from buf, recognizing a full or reduced
// header by which madara_id magic is present at the fixed magic offset
// (spec §4.4: "both formats are recognized on receive by the madara_id
// magic"), not by buffer length: a reduced header's record body can be
// long enough on its own to reach or exceed a full header's length,
// which a length-based test would mis-decode as a full header and
// corrupt every field after the magic. Domain mismatch checking is the
// caller's responsibility (receive pipeline step 2, spec §4.5) since the
// expected domain is transport-local.
func DecodeHeader(buf []byte) (MessageHeader, int, error) {
	if len(buf) < 16 {
		return MessageHeader{}, 0, fmt.Errorf("transport: datagram shorter than header (%d < %d)", len(buf), 16)
	}

	var h MessageHeader
	off := 0
	h.Size = binary.BigEndian.Uint64(buf[off:])
	off += 8

	magic := string(buf[off : off+8])
	var reduced bool
	switch magic {
	case MadaraID:
		reduced = false
	case MadaraReducedID:
		reduced = true
	default:
		return MessageHeader{}, 0, fmt.Errorf("transport: madara_id mismatch")
	}
	off += 8

	size := HeaderSize
	if reduced {
		size = ReducedHeaderSize
	}
	if len(buf) < size {
		return MessageHeader{}, 0, fmt.Errorf("transport: datagram shorter than header (%d < %d)", len(buf), size)
	}

	if !reduced {
		h.Domain = getFixedString(buf[off : off+domainFieldLen])
		off += domainFieldLen
		h.Originator = getFixedString(buf[off : off+originatorFieldLen])
		off += originatorFieldLen
	}
	h.Type = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.Updates = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.Quality = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.Clock = binary.BigEndian.Uint64(buf[off:])
	off += 8
	h.Timestamp = binary.BigEndian.Uint64(buf[off:])
	off += 8
	h.TTL = buf[off]
	off++
	return h, off, nil
}

// recordType tags a Value's wire representation; distinct from
// knowledge.Kind's int values so the wire format is stable even if Kind's
// iota ordering changes.
const (
	recTypeInteger uint32 = iota
	recTypeDouble
	recTypeString
	recTypeIntegerArray
	recTypeDoubleArray
	recTypeBuffer
	recTypeFileBuffer
	recTypeAny
)

func wireTypeOf(v knowledge.Value) uint32 {
	switch v.Kind() {
	case knowledge.KindInteger:
		return recTypeInteger
	case knowledge.KindDouble:
		return recTypeDouble
	case knowledge.KindString:
		return recTypeString
	case knowledge.KindIntegerArray:
		return recTypeIntegerArray
	case knowledge.KindDoubleArray:
		return recTypeDoubleArray
	case knowledge.KindBuffer:
		return recTypeBuffer
	case knowledge.KindFileBuffer:
		return recTypeFileBuffer
	default:
		return recTypeAny
	}
}

// EncodeRecord frames one key/value pair per spec §4.4: key_length,
// NUL-terminated key, type, value_size, payload.
func EncodeRecord(key string, v knowledge.Value) []byte {
	keyBytes := append([]byte(key), 0)
	wt := wireTypeOf(v)

	var payload []byte
	var valueSize uint32

	switch v.Kind() {
	case knowledge.KindInteger:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(v.AsInteger()))
		valueSize = 8
	case knowledge.KindDouble:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, doubleBits(v.AsDouble()))
		valueSize = 8
	case knowledge.KindString:
		s := v.AsString("")
		payload = []byte(s)
		valueSize = uint32(len(s))
	case knowledge.KindIntegerArray:
		arr := v.IntegerArray()
		payload = make([]byte, len(arr)*8)
		for i, n := range arr {
			binary.BigEndian.PutUint64(payload[i*8:], uint64(n))
		}
		valueSize = uint32(len(arr))
	case knowledge.KindDoubleArray:
		arr := v.DoubleArray()
		payload = make([]byte, len(arr)*8)
		for i, n := range arr {
			binary.BigEndian.PutUint64(payload[i*8:], doubleBits(n))
		}
		valueSize = uint32(len(arr))
	case knowledge.KindBuffer:
		payload = v.Buffer()
		valueSize = uint32(len(payload))
	case knowledge.KindFileBuffer:
		payload = append([]byte{byte(v.FileType())}, v.Buffer()...)
		valueSize = uint32(len(v.Buffer()))
	default:
		// KindAny: lossy best-effort, spec §6 "round-trip over this
		// format is lossy for opaque binary records".
		s := v.AsString("")
		payload = []byte(s)
		valueSize = uint32(len(s))
	}

	buf := make([]byte, 4+len(keyBytes)+4+4+len(payload))
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(len(keyBytes)))
	off += 4
	copy(buf[off:], keyBytes)
	off += len(keyBytes)
	binary.BigEndian.PutUint32(buf[off:], wt)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], valueSize)
	off += 4
	copy(buf[off:], payload)
	return buf
}

// DecodeRecord reads one framed record from buf starting at offset 0,
// returning the key, value, and number of bytes consumed.
func DecodeRecord(buf []byte) (string, knowledge.Value, int, error) {
	if len(buf) < 4 {
		return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated record header")
	}
	off := 0
	keyLen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+keyLen+8 {
		return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated record")
	}
	key := getFixedString(buf[off : off+keyLen])
	off += keyLen
	wt := binary.BigEndian.Uint32(buf[off:])
	off += 4
	valueSize := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4

	var v knowledge.Value
	switch wt {
	case recTypeInteger:
		if len(buf) < off+8 {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated integer payload")
		}
		v = knowledge.NewInteger(int64(binary.BigEndian.Uint64(buf[off:])))
		off += 8
	case recTypeDouble:
		if len(buf) < off+8 {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated double payload")
		}
		v = knowledge.NewDouble(bitsDouble(binary.BigEndian.Uint64(buf[off:])))
		off += 8
	case recTypeString:
		if len(buf) < off+valueSize {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated string payload")
		}
		v = knowledge.NewString(string(buf[off : off+valueSize]))
		off += valueSize
	case recTypeIntegerArray:
		n := valueSize
		if len(buf) < off+n*8 {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated integer array payload")
		}
		arr := make([]int64, n)
		for i := 0; i < n; i++ {
			arr[i] = int64(binary.BigEndian.Uint64(buf[off+i*8:]))
		}
		v = knowledge.NewIntegerArray(arr)
		off += n * 8
	case recTypeDoubleArray:
		n := valueSize
		if len(buf) < off+n*8 {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated double array payload")
		}
		arr := make([]float64, n)
		for i := 0; i < n; i++ {
			arr[i] = bitsDouble(binary.BigEndian.Uint64(buf[off+i*8:]))
		}
		v = knowledge.NewDoubleArray(arr)
		off += n * 8
	case recTypeBuffer:
		if len(buf) < off+valueSize {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated buffer payload")
		}
		v = knowledge.NewBuffer(buf[off : off+valueSize])
		off += valueSize
	case recTypeFileBuffer:
		if len(buf) < off+1+valueSize {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated file buffer payload")
		}
		ft := knowledge.FileType(buf[off])
		off++
		v = knowledge.NewFileBuffer(buf[off:off+valueSize], ft)
		off += valueSize
	default:
		if len(buf) < off+valueSize {
			return "", knowledge.Value{}, 0, fmt.Errorf("transport: truncated any payload")
		}
		v = knowledge.NewString(string(buf[off : off+valueSize]))
		off += valueSize
	}

	return key, v, off, nil
}

func doubleBits(f float64) uint64 {
	return math.Float64bits(f)
}

func bitsDouble(b uint64) float64 {
	return math.Float64frombits(b)
}
