package schema

import (
	"fmt"

	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/protocol/tlv"
)

// Message type ids. Inbound is relay->plugin, outbound plugin->relay.
const (
	MsgHello               uint32 = 1 // both
	MsgHeartbeat           uint32 = 2 // both
	MsgNetworkConnected    uint32 = 10
	MsgNetworkDisconnected uint32 = 11
	MsgConsoleMessage      uint32 = 12
	MsgNotification        uint32 = 13
	MsgAircraftAdded       uint32 = 14
	MsgAircraftRemoved     uint32 = 15
	MsgWindowMode          uint32 = 16
	MsgDefaultATIS         uint32 = 17
	MsgPTT                 uint32 = 30
	MsgForceDisconnect     uint32 = 31
	MsgRequestATIS         uint32 = 32
)

// Field ids.
const (
	FieldSessionID   uint16 = 1
	FieldClient      uint16 = 2
	FieldTimestampMS uint16 = 3

	FieldCallsign  uint16 = 100
	FieldReason    uint16 = 101
	FieldText      uint16 = 102
	FieldColor     uint16 = 103
	FieldRecipient uint16 = 104

	FieldWindow uint16 = 200
	FieldMode   uint16 = 201

	FieldEnabled uint16 = 300
	FieldPressed uint16 = 301
)

var names = map[uint32]string{
	MsgHello:               "hello",
	MsgHeartbeat:           "heartbeat",
	MsgNetworkConnected:    "network_connected",
	MsgNetworkDisconnected: "network_disconnected",
	MsgConsoleMessage:      "console_message",
	MsgNotification:        "notification",
	MsgAircraftAdded:       "aircraft_added",
	MsgAircraftRemoved:     "aircraft_removed",
	MsgWindowMode:          "window_mode",
	MsgDefaultATIS:         "default_atis",
	MsgPTT:                 "ptt",
	MsgForceDisconnect:     "force_disconnect",
	MsgRequestATIS:         "request_atis",
}

// Name is the metric/log label for a message type.
func Name(messageType uint32) string {
	if n, ok := names[messageType]; ok {
		return n
	}
	return "unknown"
}

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgHello: {
		{FieldSessionID, tlv.TypeString},
		{FieldClient, tlv.TypeString},
	},
	MsgHeartbeat: {
		{FieldTimestampMS, tlv.TypeU64},
	},
	MsgNetworkConnected: {
		{FieldCallsign, tlv.TypeString},
	},
	MsgNetworkDisconnected: {},
	MsgConsoleMessage: {
		{FieldText, tlv.TypeString},
		{FieldColor, tlv.TypeU32},
	},
	MsgNotification: {
		{FieldText, tlv.TypeString},
		{FieldColor, tlv.TypeU32},
	},
	MsgAircraftAdded: {
		{FieldCallsign, tlv.TypeString},
	},
	MsgAircraftRemoved: {
		{FieldCallsign, tlv.TypeString},
	},
	MsgWindowMode: {
		{FieldWindow, tlv.TypeString},
		{FieldMode, tlv.TypeString},
	},
	MsgDefaultATIS: {
		{FieldEnabled, tlv.TypeBool},
	},
	MsgPTT: {
		{FieldPressed, tlv.TypeBool},
	},
	MsgForceDisconnect: {},
	MsgRequestATIS: {
		{FieldCallsign, tlv.TypeString},
	},
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		logs.Errf("schema.Validate unknown message_type=%d", messageType)
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			logs.Errf("schema.Validate missing field message_type=%d field_id=%d", messageType, req.ID)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			logs.Errf(
				"schema.Validate type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType,
				req.ID,
				f.Type,
				req.Type,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	logs.Tracef("schema.Validate ok message_type=%d fields=%d", messageType, len(fields))
	return nil
}
