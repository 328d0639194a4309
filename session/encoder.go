package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const recordFormatVersionCurrent = 1

// ErrCorruptRecord is returned for blobs that cannot be decoded.
var ErrCorruptRecord = errors.New("session: corrupt record")

// Encode serializes r into the compact binary layout stored in redis:
//
//	version | uid | user-agent | ip range | csrf | created | expires
//
// uid, ip range, and csrf are u8 length-prefixed; the user-agent is u16
// length-prefixed; timestamps are big-endian int64.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeShort(&buf, "uid", r.UID); err != nil {
		return nil, err
	}
	if len(r.UserAgent) > 0xffff {
		return nil, errors.New("session: user agent too long")
	}
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(r.UserAgent)))
	buf.WriteString(r.UserAgent)
	if err := writeShort(&buf, "ip range", r.IPRange); err != nil {
		return nil, err
	}
	if err := writeShort(&buf, "csrf token", r.CSRFToken); err != nil {
		return nil, err
	}

	_ = binary.Write(&buf, binary.BigEndian, r.CreatedAt)
	_ = binary.Write(&buf, binary.BigEndian, r.ExpiresAt)

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. SessionID is not part of the blob
// and is left empty.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != recordFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorruptRecord, version)
	}

	r := &Record{}
	if r.UID, err = readShort(reader); err != nil {
		return nil, err
	}

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, ErrCorruptRecord
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, ua); err != nil {
		return nil, ErrCorruptRecord
	}
	r.UserAgent = string(ua)

	if r.IPRange, err = readShort(reader); err != nil {
		return nil, err
	}
	if r.CSRFToken, err = readShort(reader); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return r, nil
}

func writeShort(buf *bytes.Buffer, field, v string) error {
	if len(v) > 255 {
		return fmt.Errorf("session: %s too long", field)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShort(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", ErrCorruptRecord
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", ErrCorruptRecord
	}
	return string(b), nil
}
