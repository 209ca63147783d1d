// Package wire implements the binary frames exchanged with the gateway and
// feedback services. All integers are big-endian.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shohag/pushrelay/internal/models"
)

const (
	CommandNotification  byte = 1
	CommandErrorResponse byte = 8

	notificationHeaderLen = 1 + 4 + 4 + 2
)

var (
	ErrTokenTooLong   = errors.New("token exceeds 65535 bytes")
	ErrPayloadTooLong = errors.New("payload exceeds 65535 bytes")
	ErrShortFrame     = errors.New("short notification frame")
)

// EncodeError reports a notification that could not be turned into a frame.
type EncodeError struct {
	ID  uint64
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode notification %d: %v", e.ID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// EncodeNotification builds a command 1 frame. Only the low 32 bits of the
// notification id go on the wire.
func EncodeNotification(n *models.Notification) ([]byte, error) {
	payload, err := EncodePayload(n)
	if err != nil {
		return nil, &EncodeError{ID: n.ID, Err: err}
	}
	if len(n.Token) > math.MaxUint16 {
		return nil, &EncodeError{ID: n.ID, Err: ErrTokenTooLong}
	}
	if len(payload) > math.MaxUint16 {
		return nil, &EncodeError{ID: n.ID, Err: ErrPayloadTooLong}
	}

	var expiry uint32
	if t := n.Expiry(); !t.IsZero() {
		expiry = uint32(t.Unix())
	}

	buf := make([]byte, 0, notificationHeaderLen+len(n.Token)+2+len(payload))
	buf = append(buf, CommandNotification)
	buf = binary.BigEndian.AppendUint32(buf, uint32(n.ID))
	buf = binary.BigEndian.AppendUint32(buf, expiry)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(n.Token)))
	buf = append(buf, n.Token...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

// EncodePayload renders the JSON payload: an "aps" object holding the set
// alert, badge and sound, with extra keys merged beside it.
func EncodePayload(n *models.Notification) ([]byte, error) {
	aps := make(map[string]any, 3)
	if alert := n.AlertValue(); alert != nil {
		aps["alert"] = alert
	}
	if badge, ok := n.Badge(); ok {
		aps["badge"] = badge
	}
	if sound, ok := n.Sound(); ok {
		aps["sound"] = sound
	}

	extra := n.Extra()
	root := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		root[k] = v
	}
	root["aps"] = aps

	return json.Marshal(root)
}

// Frame holds the fixed fields of a decoded notification frame.
type Frame struct {
	ID      uint32
	Expiry  uint32
	Token   []byte
	Payload []byte
}

// DecodeNotification parses a single complete command 1 frame.
func DecodeNotification(b []byte) (Frame, error) {
	var f Frame
	if len(b) < notificationHeaderLen {
		return f, ErrShortFrame
	}
	if b[0] != CommandNotification {
		return f, fmt.Errorf("unexpected command %d", b[0])
	}
	f.ID = binary.BigEndian.Uint32(b[1:5])
	f.Expiry = binary.BigEndian.Uint32(b[5:9])
	tokenLen := int(binary.BigEndian.Uint16(b[9:11]))
	rest := b[notificationHeaderLen:]
	if len(rest) < tokenLen+2 {
		return f, ErrShortFrame
	}
	f.Token = rest[:tokenLen]
	rest = rest[tokenLen:]
	payloadLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < payloadLen {
		return f, ErrShortFrame
	}
	f.Payload = rest[:payloadLen]
	return f, nil
}
