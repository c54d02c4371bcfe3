package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic is "HBRG" big endian.
	Magic   uint32 = 0x48425247
	Version uint16 = 1

	HeaderLen = 24

	FlagIsResponse uint16 = 0x01
	FlagIsError    uint16 = 0x02
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrBadVersion      = errors.New("frame: unsupported version")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrShortPayload    = errors.New("frame: short payload")

	// ErrDiscarded marks a frame whose payload was read and thrown away. The
	// stream is still aligned on the next header.
	ErrDiscarded = errors.New("frame: discarded")
)

// Header is the fixed wire header.
//
//	0  magic        u32
//	4  version      u16
//	6  flags        u16
//	8  message_id   u64
//	16 message_type u32
//	20 payload_len  u32
type Header struct {
	Magic       uint32
	Version     uint16
	Flags       uint16
	MessageID   uint64
	MessageType uint32
	PayloadLen  uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1024 * 1024}
}

// ReadFrame reads exactly one frame. A clean EOF before any header byte is
// returned as io.EOF so callers can tell a closed peer from a torn frame.
// An unsupported version or an oversized payload is skipped and reported with
// ErrDiscarded; bad magic and torn frames leave the stream unusable.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	n, err := io.ReadFull(r, fixed[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h := DecodeHeader(fixed)
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{Header: h}, discard(r, h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version))
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{Header: h}, discard(r, h, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.PayloadLen, limits.MaxPayloadBytes))
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, payloadErr(err)
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func discard(r io.Reader, h Header, cause error) error {
	if _, err := io.CopyN(io.Discard, r, int64(h.PayloadLen)); err != nil {
		return payloadErr(err)
	}
	return fmt.Errorf("%w: id=%d: %w", ErrDiscarded, h.MessageID, cause)
}

func payloadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortPayload
	}
	return err
}

// WriteFrame fills in magic, version and payload length, then writes header
// and payload with a single Write.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func Encode(f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(f.Payload), limits.MaxPayloadBytes)
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))

	var buf bytes.Buffer
	buf.Grow(HeaderLen + len(f.Payload))
	hb := EncodeHeader(h)
	buf.Write(hb[:])
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

func EncodeHeader(h Header) [HeaderLen]byte {
	var buf [HeaderLen]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.MessageType)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b [HeaderLen]byte) Header {
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		Flags:       binary.BigEndian.Uint16(b[6:8]),
		MessageID:   binary.BigEndian.Uint64(b[8:16]),
		MessageType: binary.BigEndian.Uint32(b[16:20]),
		PayloadLen:  binary.BigEndian.Uint32(b[20:24]),
	}
}
