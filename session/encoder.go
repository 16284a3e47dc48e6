package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the binary layout written by [Encode].
const CurrentSchemaVersion uint8 = 1

const (
	maxIDLen     = 255
	maxDeviceLen = 1024
	maxIPLen     = 64
)

var errSessionBlob = errors.New("invalid session blob")

// Encode serializes a session to its compact binary form:
//
//	version | sid | uid | device | ip | createdAt | lastActive | expiresAt
//
// Strings are length-prefixed (uint8 for identifiers and IP, uint16 for device).
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if len(s.SessionID) == 0 || len(s.SessionID) > maxIDLen {
		return nil, errors.New("session id length out of range")
	}
	if len(s.UserID) == 0 || len(s.UserID) > maxIDLen {
		return nil, errors.New("user id length out of range")
	}
	if len(s.IP) > maxIPLen {
		return nil, errors.New("ip too long")
	}
	device := s.Device
	if len(device) > maxDeviceLen {
		device = device[:maxDeviceLen]
	}

	buf := bytes.NewBuffer(make([]byte, 0, 1+3+len(s.SessionID)+len(s.UserID)+2+len(device)+len(s.IP)+24))
	buf.WriteByte(CurrentSchemaVersion)

	buf.WriteByte(uint8(len(s.SessionID)))
	buf.WriteString(s.SessionID)

	buf.WriteByte(uint8(len(s.UserID)))
	buf.WriteString(s.UserID)

	_ = binary.Write(buf, binary.BigEndian, uint16(len(device)))
	buf.WriteString(device)

	buf.WriteByte(uint8(len(s.IP)))
	buf.WriteString(s.IP)

	_ = binary.Write(buf, binary.BigEndian, s.CreatedAt)
	_ = binary.Write(buf, binary.BigEndian, s.LastActive)
	_ = binary.Write(buf, binary.BigEndian, s.ExpiresAt)

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", errSessionBlob)
	}
	version := data[0]
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", errSessionBlob, version)
	}

	r := bytes.NewReader(data[1:])
	s := &Session{SchemaVersion: version}

	var err error
	if s.SessionID, err = readShortString(r); err != nil {
		return nil, err
	}
	if s.UserID, err = readShortString(r); err != nil {
		return nil, err
	}

	var deviceLen uint16
	if err := binary.Read(r, binary.BigEndian, &deviceLen); err != nil {
		return nil, fmt.Errorf("%w: device length", errSessionBlob)
	}
	if deviceLen > maxDeviceLen {
		return nil, fmt.Errorf("%w: device too long", errSessionBlob)
	}
	device := make([]byte, deviceLen)
	if _, err := io.ReadFull(r, device); err != nil {
		return nil, fmt.Errorf("%w: device", errSessionBlob)
	}
	s.Device = string(device)

	if s.IP, err = readShortString(r); err != nil {
		return nil, err
	}

	for _, dst := range []*int64{&s.CreatedAt, &s.LastActive, &s.ExpiresAt} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return nil, fmt.Errorf("%w: timestamps", errSessionBlob)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", errSessionBlob)
	}
	if s.SessionID == "" || s.UserID == "" {
		return nil, fmt.Errorf("%w: missing identifiers", errSessionBlob)
	}

	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: truncated", errSessionBlob)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: truncated", errSessionBlob)
	}
	return string(b), nil
}
