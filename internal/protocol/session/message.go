package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/hostbridge/internal/protocol/frame"
	"github.com/danmuck/hostbridge/internal/protocol/schema"
	"github.com/danmuck/hostbridge/internal/protocol/tlv"
)

var ErrProtocol = errors.New("session: protocol error")

// Message is one typed relay message.
type Message interface {
	Type() uint32
	Fields() []tlv.Field
}

// RGB is a 0xRRGGBB console colour.
type RGB uint32

const White RGB = 0xFFFFFF

func NewRGB(r, g, b uint8) RGB {
	return RGB(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c RGB) R() uint8 { return uint8(c >> 16) }
func (c RGB) G() uint8 { return uint8(c >> 8) }
func (c RGB) B() uint8 { return uint8(c) }

type Hello struct {
	SessionID string
	Client    string
}

type Heartbeat struct {
	TimestampMS uint64
}

type NetworkConnected struct {
	Callsign string
}

type NetworkDisconnected struct {
	Reason string
}

// ConsoleMessage goes to a private tab when Recipient is set.
type ConsoleMessage struct {
	Text      string
	Color     RGB
	Recipient string
}

type Notification struct {
	Text  string
	Color RGB
}

type AircraftAdded struct {
	Callsign string
}

type AircraftRemoved struct {
	Callsign string
}

// WindowMode asks for a mode by name; the plugin parses it.
type WindowMode struct {
	Window string
	Mode   string
}

type DefaultATIS struct {
	Enabled bool
}

type PTT struct {
	Pressed bool
}

type ForceDisconnect struct {
	Reason string
}

type RequestATIS struct {
	Callsign string
}

func (Hello) Type() uint32               { return schema.MsgHello }
func (Heartbeat) Type() uint32           { return schema.MsgHeartbeat }
func (NetworkConnected) Type() uint32    { return schema.MsgNetworkConnected }
func (NetworkDisconnected) Type() uint32 { return schema.MsgNetworkDisconnected }
func (ConsoleMessage) Type() uint32      { return schema.MsgConsoleMessage }
func (Notification) Type() uint32        { return schema.MsgNotification }
func (AircraftAdded) Type() uint32       { return schema.MsgAircraftAdded }
func (AircraftRemoved) Type() uint32     { return schema.MsgAircraftRemoved }
func (WindowMode) Type() uint32          { return schema.MsgWindowMode }
func (DefaultATIS) Type() uint32         { return schema.MsgDefaultATIS }
func (PTT) Type() uint32                 { return schema.MsgPTT }
func (ForceDisconnect) Type() uint32     { return schema.MsgForceDisconnect }
func (RequestATIS) Type() uint32         { return schema.MsgRequestATIS }

func (m Hello) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldSessionID, m.SessionID), tlv.String(schema.FieldClient, m.Client)}
}

func (m Heartbeat) Fields() []tlv.Field {
	return []tlv.Field{tlv.U64(schema.FieldTimestampMS, m.TimestampMS)}
}

func (m NetworkConnected) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldCallsign, m.Callsign)}
}

func (m NetworkDisconnected) Fields() []tlv.Field {
	return optionalString(schema.FieldReason, m.Reason)
}

func (m ConsoleMessage) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.String(schema.FieldText, m.Text), tlv.U32(schema.FieldColor, uint32(m.Color))}
	return append(fields, optionalString(schema.FieldRecipient, m.Recipient)...)
}

func (m Notification) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldText, m.Text), tlv.U32(schema.FieldColor, uint32(m.Color))}
}

func (m AircraftAdded) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldCallsign, m.Callsign)}
}

func (m AircraftRemoved) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldCallsign, m.Callsign)}
}

func (m WindowMode) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldWindow, m.Window), tlv.String(schema.FieldMode, m.Mode)}
}

func (m DefaultATIS) Fields() []tlv.Field {
	return []tlv.Field{tlv.Bool(schema.FieldEnabled, m.Enabled)}
}

func (m PTT) Fields() []tlv.Field {
	return []tlv.Field{tlv.Bool(schema.FieldPressed, m.Pressed)}
}

func (m ForceDisconnect) Fields() []tlv.Field {
	return optionalString(schema.FieldReason, m.Reason)
}

func (m RequestATIS) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldCallsign, m.Callsign)}
}

// EncodeFrame validates m and returns the complete wire bytes.
func EncodeFrame(messageID uint64, m Message, limits frame.Limits) ([]byte, error) {
	fields := m.Fields()
	if err := schema.Validate(m.Type(), fields); err != nil {
		return nil, err
	}
	return frame.Encode(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: m.Type(),
		},
		Payload: tlv.EncodeFields(fields),
	}, limits)
}

// Decode turns a frame into a typed message. Every failure wraps ErrProtocol.
func Decode(f frame.Frame) (Message, error) {
	msgType := f.Header.MessageType
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, protoErr(msgType, err)
	}
	if err := schema.Validate(msgType, fields); err != nil {
		return nil, protoErr(msgType, err)
	}
	d := decoder{fields: fields}
	var m Message
	switch msgType {
	case schema.MsgHello:
		m = Hello{SessionID: d.str(schema.FieldSessionID), Client: d.str(schema.FieldClient)}
	case schema.MsgHeartbeat:
		m = Heartbeat{TimestampMS: d.u64(schema.FieldTimestampMS)}
	case schema.MsgNetworkConnected:
		m = NetworkConnected{Callsign: d.str(schema.FieldCallsign)}
	case schema.MsgNetworkDisconnected:
		m = NetworkDisconnected{Reason: d.str(schema.FieldReason)}
	case schema.MsgConsoleMessage:
		m = ConsoleMessage{
			Text:      d.str(schema.FieldText),
			Color:     RGB(d.u32(schema.FieldColor)),
			Recipient: d.str(schema.FieldRecipient),
		}
	case schema.MsgNotification:
		m = Notification{Text: d.str(schema.FieldText), Color: RGB(d.u32(schema.FieldColor))}
	case schema.MsgAircraftAdded:
		m = AircraftAdded{Callsign: d.str(schema.FieldCallsign)}
	case schema.MsgAircraftRemoved:
		m = AircraftRemoved{Callsign: d.str(schema.FieldCallsign)}
	case schema.MsgWindowMode:
		m = WindowMode{Window: d.str(schema.FieldWindow), Mode: d.str(schema.FieldMode)}
	case schema.MsgDefaultATIS:
		m = DefaultATIS{Enabled: d.boolean(schema.FieldEnabled)}
	case schema.MsgPTT:
		m = PTT{Pressed: d.boolean(schema.FieldPressed)}
	case schema.MsgForceDisconnect:
		m = ForceDisconnect{Reason: d.str(schema.FieldReason)}
	case schema.MsgRequestATIS:
		m = RequestATIS{Callsign: d.str(schema.FieldCallsign)}
	default:
		return nil, protoErr(msgType, fmt.Errorf("no decoder"))
	}
	if d.err != nil {
		return nil, protoErr(msgType, d.err)
	}
	return m, nil
}

// decoder keeps the first accessor error. Optional fields that are absent
// decode to zero values.
type decoder struct {
	fields []tlv.Field
	err    error
}

func (d *decoder) field(id uint16) (tlv.Field, bool) {
	if d.err != nil {
		return tlv.Field{}, false
	}
	return tlv.GetField(d.fields, id)
}

func (d *decoder) str(id uint16) string {
	f, ok := d.field(id)
	if !ok {
		return ""
	}
	v, err := f.AsString()
	d.err = err
	return v
}

func (d *decoder) u32(id uint16) uint32 {
	f, ok := d.field(id)
	if !ok {
		return 0
	}
	v, err := f.AsU32()
	d.err = err
	return v
}

func (d *decoder) u64(id uint16) uint64 {
	f, ok := d.field(id)
	if !ok {
		return 0
	}
	v, err := f.AsU64()
	d.err = err
	return v
}

func (d *decoder) boolean(id uint16) bool {
	f, ok := d.field(id)
	if !ok {
		return false
	}
	v, err := f.AsBool()
	d.err = err
	return v
}

func optionalString(id uint16, v string) []tlv.Field {
	if v == "" {
		return nil
	}
	return []tlv.Field{tlv.String(id, v)}
}

func protoErr(msgType uint32, err error) error {
	return fmt.Errorf("%w: type=%s(%d): %w", ErrProtocol, schema.Name(msgType), msgType, err)
}
