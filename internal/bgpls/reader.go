package bgpls

import (
	"encoding/binary"
	"math"
	"net/netip"
)

// reader is a sequential cursor over one NLRI or TLV value buffer. Every
// read checks the remaining length first and fails with ErrTruncated
// instead of advancing, so a failed decode never leaves the cursor past
// the end of the buffer.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

// Offset reports the number of bytes consumed so far.
func (r *reader) Offset() int {
	return r.off
}

// Remaining reports the number of unread bytes.
func (r *reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) need(what string, n int) error {
	if r.Remaining() < n {
		return truncatedErr(what, n, r.Remaining())
	}
	return nil
}

func (r *reader) Uint8(what string) (uint8, error) {
	if err := r.need(what, 1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) Uint16(what string) (uint16, error) {
	if err := r.need(what, 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) Uint32(what string) (uint32, error) {
	if err := r.need(what, 4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) Uint64(what string) (uint64, error) {
	if err := r.need(what, 8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// Float32 reads an IEEE-754 single in network byte order (bandwidth fields).
func (r *reader) Float32(what string) (float32, error) {
	v, err := r.Uint32(what)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Bytes returns an owned copy of the next n bytes. The copy keeps decoded
// descriptors independent of the input buffer's lifetime.
func (r *reader) Bytes(what string, n int) ([]byte, error) {
	if err := r.need(what, n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.off:r.off+n])
	r.off += n
	return v, nil
}

// Skip advances past n bytes without interpreting them.
func (r *reader) Skip(what string, n int) error {
	if err := r.need(what, n); err != nil {
		return err
	}
	r.off += n
	return nil
}

func (r *reader) IPv4(what string) (netip.Addr, error) {
	if err := r.need(what, 4); err != nil {
		return netip.Addr{}, err
	}
	var a [4]byte
	copy(a[:], r.buf[r.off:])
	r.off += 4
	return netip.AddrFrom4(a), nil
}

func (r *reader) IPv6(what string) (netip.Addr, error) {
	if err := r.need(what, 16); err != nil {
		return netip.Addr{}, err
	}
	var a [16]byte
	copy(a[:], r.buf[r.off:])
	r.off += 16
	return netip.AddrFrom16(a), nil
}

// tlvHeader reads one type/length header. The length field measures the
// value only, excluding the 4 header bytes.
func (r *reader) tlvHeader(what string) (typ, length uint16, err error) {
	typ, err = r.Uint16(what + " type")
	if err != nil {
		return 0, 0, err
	}
	length, err = r.Uint16(what + " length")
	if err != nil {
		return 0, 0, err
	}
	return typ, length, nil
}
