// Package tlv encodes relay message fields as id/type/length/value records.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(u16) + type(u8) + length(u32).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldType        = errors.New("tlv: field type mismatch")
	ErrFieldLength      = errors.New("tlv: invalid field length")
)

// Wire type tags. Values 1 and 2 were small integers in earlier relay builds
// and stay reserved.
const (
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

var fixedWidth = map[uint8]int{
	TypeU32:  4,
	TypeU64:  8,
	TypeBool: 1,
}

// Field is one record. Value is owned by the field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: append([]byte(nil), v...)}
}

func U32(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

func U64(id uint16, v uint64) Field {
	return Field{ID: id, Type: TypeU64, Value: binary.BigEndian.AppendUint64(nil, v)}
}

func Bool(id uint16, v bool) Field {
	var b byte
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

// AppendField appends the encoded record for f to dst.
func AppendField(dst []byte, f Field) []byte {
	dst = binary.BigEndian.AppendUint16(dst, f.ID)
	dst = append(dst, f.Type)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Value)))
	return append(dst, f.Value...)
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields keeps records with unknown ids or types; the schema decides
// what a message needs.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	for rest := payload; len(rest) > 0; {
		if len(rest) < HeaderLen {
			return nil, fmt.Errorf("%w: %d bytes left", ErrShortFieldHeader, len(rest))
		}
		f := Field{ID: binary.BigEndian.Uint16(rest), Type: rest[2]}
		n := binary.BigEndian.Uint32(rest[3:HeaderLen])
		rest = rest[HeaderLen:]
		if uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: field %d wants %d have %d", ErrShortFieldValue, f.ID, n, len(rest))
		}
		f.Value = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// GetField returns the first field with id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (f Field) AsString() (string, error) {
	if err := f.check(TypeString); err != nil {
		return "", err
	}
	return string(f.Value), nil
}

func (f Field) AsU32() (uint32, error) {
	if err := f.check(TypeU32); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (f Field) AsU64() (uint64, error) {
	if err := f.check(TypeU64); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

func (f Field) AsBool() (bool, error) {
	if err := f.check(TypeBool); err != nil {
		return false, err
	}
	return f.Value[0] != 0, nil
}

func (f Field) check(want uint8) error {
	if f.Type != want {
		return fmt.Errorf("%w: field %d got %d want %d", ErrFieldType, f.ID, f.Type, want)
	}
	if n, ok := fixedWidth[want]; ok && len(f.Value) != n {
		return fmt.Errorf("%w: field %d len=%d want %d", ErrFieldLength, f.ID, len(f.Value), n)
	}
	return nil
}
