package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/hostbridge/internal/protocol/tlv"
	"github.com/danmuck/hostbridge/internal/testutil/testlog"
)

func TestReadWriteFrame(t *testing.T) {
	testlog.Start(t)
	payload := tlv.EncodeFields([]tlv.Field{tlv.String(1, "N123AB")})
	in := Frame{
		Header:  Header{MessageID: 42, MessageType: 3, Flags: FlagIsResponse},
		Payload: payload,
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != HeaderLen+len(payload) {
		t.Fatalf("unexpected encoded length: %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version {
		t.Fatalf("magic/version not stamped: %+v", out.Header)
	}
	if out.Header.MessageID != 42 || out.Header.MessageType != 3 || out.Header.Flags != FlagIsResponse {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	testlog.Start(t)
	hb := EncodeHeader(Header{Magic: 0xDEADBEEF, Version: Version})
	_, err := ReadFrame(bytes.NewReader(hb[:]), DefaultLimits())
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

// next writes a small valid frame after a skipped one.
func next(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	if err := WriteFrame(buf, Frame{Header: Header{MessageID: 9, MessageType: 2}}, DefaultLimits()); err != nil {
		t.Fatalf("write follow-up frame: %v", err)
	}
}

func TestReadFrameSkipsOversizedPayload(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	hb := EncodeHeader(Header{Magic: Magic, Version: Version, MessageID: 8, PayloadLen: 64})
	buf.Write(hb[:])
	buf.Write(make([]byte, 64))
	next(t, &buf)

	limits := Limits{MaxPayloadBytes: 16}
	_, err := ReadFrame(&buf, limits)
	if !errors.Is(err, ErrPayloadTooLarge) || !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected discarded ErrPayloadTooLarge, got %v", err)
	}
	f, err := ReadFrame(&buf, limits)
	if err != nil || f.Header.MessageID != 9 {
		t.Fatalf("stream not aligned after skip: %+v %v", f.Header, err)
	}
}

func TestReadFrameSkipsUnsupportedVersion(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	hb := EncodeHeader(Header{Magic: Magic, Version: Version + 1, PayloadLen: 5})
	buf.Write(hb[:])
	buf.WriteString("hello")
	next(t, &buf)

	_, err := ReadFrame(&buf, DefaultLimits())
	if !errors.Is(err, ErrBadVersion) || !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected discarded ErrBadVersion, got %v", err)
	}
	f, err := ReadFrame(&buf, DefaultLimits())
	if err != nil || f.Header.MessageID != 9 {
		t.Fatalf("stream not aligned after skip: %+v %v", f.Header, err)
	}
}

func TestReadFrameTornSkippedPayload(t *testing.T) {
	testlog.Start(t)
	hb := EncodeHeader(Header{Magic: Magic, Version: Version, PayloadLen: 64})
	_, err := ReadFrame(bytes.NewReader(hb[:]), Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrShortPayload) || errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestReadFrameTornPayload(t *testing.T) {
	testlog.Start(t)
	hb := EncodeHeader(Header{Magic: Magic, Version: Version, PayloadLen: 8})
	raw := append(hb[:], 1, 2, 3)
	_, err := ReadFrame(bytes.NewReader(raw), DefaultLimits())
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}
