package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Blob layout (v1), offsets are 1-based as read by the Lua scripts:
//
//	1      format version
//	2      revoked flag (0/1)
//	3..6   version, uint32 big-endian
//	7..14  issued at, unix seconds int64 big-endian
//	15..22 expires at, unix seconds int64 big-endian
//	23     family id length, followed by family id
//	..     user id length, followed by user id
//
// The revoked byte and family id sit at fixed offsets so scripts can flip and
// read them without a full decode.
const (
	recordFormatV1 = 1

	// 0-based Go offsets of the same fields.
	revokedOffset      = 1
	familyLengthOffset = 22
)

// Encode serializes a record without its hash; the hash is the storage key.
func Encode(r *Record) ([]byte, error) {
	if len(r.FamilyID) > 255 {
		return nil, errors.New("familyID too long")
	}
	if len(r.UserID) > 255 {
		return nil, errors.New("userID too long")
	}

	var buf bytes.Buffer
	buf.Grow(familyLengthOffset + 2 + len(r.FamilyID) + len(r.UserID))

	buf.WriteByte(recordFormatV1)
	if r.Revoked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var scratch [8]byte
	binary.BigEndian.PutUint32(scratch[:4], r.Version)
	buf.Write(scratch[:4])
	binary.BigEndian.PutUint64(scratch[:], uint64(r.IssuedAt.Unix()))
	buf.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(r.ExpiresAt.Unix()))
	buf.Write(scratch[:])

	buf.WriteByte(byte(len(r.FamilyID)))
	buf.WriteString(r.FamilyID)
	buf.WriteByte(byte(len(r.UserID)))
	buf.WriteString(r.UserID)

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. TokenHash is left empty.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	format, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if format != recordFormatV1 {
		return nil, errors.New("invalid record format")
	}

	revoked, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if revoked > 1 {
		return nil, errors.New("invalid revoked flag")
	}

	r := &Record{Revoked: revoked == 1}

	if err := binary.Read(reader, binary.BigEndian, &r.Version); err != nil {
		return nil, err
	}
	var issuedAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	r.IssuedAt = time.Unix(issuedAt, 0).UTC()
	r.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if r.FamilyID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if r.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing record bytes")
	}

	return r, nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
