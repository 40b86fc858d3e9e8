package main

import (
	"bytes"
	"encoding/binary"
)

// Wire format: u16 packet_id | u8 compression_flag (unused) | u32 payload_len
// | payload[payload_len]. All multi-byte primitives are little-endian.
const (
	stringEmptyFlag    byte = 0x00
	stringPresentFlag  byte = 0x0b
	frameHeaderBytes        = 2 + 1 + 4
	maxMessageBytes         = 2048
	truncatedMsgBytes       = 2045
)

// Frame is one decoded client→server or server→client packet: an id and its
// raw (already length-checked) payload.
type Frame struct {
	ID      uint16
	Payload []byte
}

// Writer accumulates encoded packets for one outbound delivery. It is not
// safe for concurrent use; callers serialize access (see Player.Enqueue).
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty packet Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoded byte stream.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len reports the number of bytes accumulated so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Reset drops all accumulated bytes.
func (w *Writer) Reset() { w.buf.Reset() }

// Append appends an already-framed packet (header+payload) verbatim, for
// callers that built it once via framePacket and now want it folded into a
// larger response Writer (see login.go's initial-snapshot assembly).
func (w *Writer) Append(framed []byte) { w.buf.Write(framed) }

// writePacket writes the frame header for id, with the length field set to
// len(payload), followed by the payload itself. Payloads are built into a
// scratch buffer first, so the length is always known up front.
func (w *Writer) writePacket(id uint16, payload []byte) {
	var hdr [frameHeaderBytes]byte
	binary.LittleEndian.PutUint16(hdr[0:2], id)
	hdr[2] = 0 // compression flag, unused
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	w.buf.Write(hdr[:])
	w.buf.Write(payload)
}

// packetBuilder accumulates one payload's worth of primitives before it is
// framed and appended to a Writer.
type packetBuilder struct {
	buf bytes.Buffer
}

func newBuilder() *packetBuilder { return &packetBuilder{} }

func (b *packetBuilder) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *packetBuilder) i8(v int8)    { b.buf.WriteByte(byte(v)) }
func (b *packetBuilder) bytes(v []byte) { b.buf.Write(v) }

func (b *packetBuilder) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *packetBuilder) i16(v int16) { b.u16(uint16(v)) }

func (b *packetBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *packetBuilder) i32(v int32) { b.u32(uint32(v)) }

func (b *packetBuilder) i64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	b.buf.Write(tmp[:])
}

// str writes the osu! string encoding: 0x00 if empty, else 0x0b followed by
// a ULEB128 byte length and the raw UTF-8 bytes.
func (b *packetBuilder) str(s string) {
	if s == "" {
		b.buf.WriteByte(stringEmptyFlag)
		return
	}
	b.buf.WriteByte(stringPresentFlag)
	b.uleb128(uint64(len(s)))
	b.buf.WriteString(s)
}

func (b *packetBuilder) uleb128(v uint64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.buf.WriteByte(c)
		if v == 0 {
			return
		}
	}
}

// i32List writes a u16 count followed by count little-endian i32 values.
func (b *packetBuilder) i32List(vs []int32) {
	b.u16(uint16(len(vs)))
	for _, v := range vs {
		b.i32(v)
	}
}

// finish frames the accumulated payload under id and appends it to w.
func (b *packetBuilder) finish(w *Writer, id uint16) {
	w.writePacket(id, b.buf.Bytes())
}

// writeSimple is a convenience for packets with no payload.
func writeSimple(w *Writer, id uint16) {
	w.writePacket(id, nil)
}

// framePacket encodes b's accumulated payload under id and returns the full
// header+payload byte slice, for callers (handlers.go, spectator.go) that
// enqueue one packet directly onto a Player's queue rather than batching
// into a shared Writer.
func framePacket(id uint16, b *packetBuilder) []byte {
	w := NewWriter()
	b.finish(w, id)
	return w.Bytes()
}

// rawPayload wraps an already-encoded payload (e.g. a verbatim spectator
// frame) in a packetBuilder so it can be passed to framePacket.
func rawPayload(payload []byte) *packetBuilder {
	b := newBuilder()
	b.bytes(payload)
	return b
}

// Reader decodes primitives from a single frame's payload. It never reads
// past the bytes it was constructed with.
type Reader struct {
	data []byte
	pos  int
}

// NewReader binds a Reader to a frame's payload bytes.
func NewReader(payload []byte) *Reader { return &Reader{data: payload} }

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) require(n int) error {
	if r.Remaining() < n {
		return newErr(KindMalformedFrame, "need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) U16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	v, err := r.I32()
	return uint32(v), err
}

func (r *Reader) I64() (int64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

// Str decodes the osu! string encoding: a one-byte existence flag, then (if
// present) a ULEB128 length and that many UTF-8 bytes.
func (r *Reader) Str() (string, error) {
	flag, err := r.U8()
	if err != nil {
		return "", err
	}
	switch flag {
	case stringEmptyFlag:
		return "", nil
	case stringPresentFlag:
		n, err := r.uleb128()
		if err != nil {
			return "", err
		}
		if err := r.require(int(n)); err != nil {
			return "", err
		}
		s := string(r.data[r.pos : r.pos+int(n)])
		r.pos += int(n)
		return s, nil
	default:
		return "", newErr(KindMalformedFrame, "bad string flag 0x%02x", flag)
	}
}

func (r *Reader) uleb128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 63 {
			return 0, newErr(KindMalformedFrame, "uleb128 overflow")
		}
	}
}

// I32List decodes a u16 count followed by that many little-endian i32s.
func (r *Reader) I32List() ([]int32, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, n)
	for i := uint16(0); i < n; i++ {
		v, err := r.I32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Bytes returns the next n raw bytes without interpretation.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Rest returns every unread byte.
func (r *Reader) Rest() []byte { return r.data[r.pos:] }

// ReadFrames splits a request body into Frames, in order. It fails with
// MalformedFrame when a declared payload length exceeds the remaining
// bytes; such a failure means the caller should stop processing the rest of
// the body, since the stream framing itself is no longer trustworthy.
func ReadFrames(body []byte) ([]Frame, error) {
	var frames []Frame
	pos := 0
	for pos < len(body) {
		if len(body)-pos < frameHeaderBytes {
			return frames, newErr(KindMalformedFrame, "truncated header at offset %d", pos)
		}
		id := binary.LittleEndian.Uint16(body[pos:])
		// body[pos+2] is the compression flag, unused.
		length := binary.LittleEndian.Uint32(body[pos+3:])
		pos += frameHeaderBytes
		if uint64(pos)+uint64(length) > uint64(len(body)) {
			return frames, newErr(KindMalformedFrame, "payload length %d exceeds remaining bytes", length)
		}
		frames = append(frames, Frame{ID: id, Payload: body[pos : pos+int(length)]})
		pos += int(length)
	}
	return frames, nil
}

// truncateMessage enforces spec §8's message-size boundary: payloads over
// 2048 bytes are cut to 2045 bytes with an appended ellipsis.
func truncateMessage(s string) string {
	if len(s) <= maxMessageBytes {
		return s
	}
	return s[:truncatedMsgBytes] + "..."
}
