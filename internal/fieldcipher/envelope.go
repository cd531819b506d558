package fieldcipher

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// envelopeFormatVersion tags the serialized envelope layout so stored data
// remains decodable if the envelope itself evolves.
const envelopeFormatVersion = 0x01

// Envelope is the self-describing encrypted representation of one field
// value. It is immutable once created; re-encryption supersedes it with a
// new envelope rather than mutating it.
type Envelope struct {
	KeyVersion int
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// Marshal serializes the envelope into its stable binary form:
// format byte, then key version, IV, tag and ciphertext, each length-prefixed
// with an unsigned varint.
func (e *Envelope) Marshal() []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64*4+len(e.IV)+len(e.Tag)+len(e.Ciphertext))
	buf = append(buf, envelopeFormatVersion)
	buf = binary.AppendUvarint(buf, uint64(e.KeyVersion))
	buf = appendLengthPrefixed(buf, e.IV)
	buf = appendLengthPrefixed(buf, e.Tag)
	buf = appendLengthPrefixed(buf, e.Ciphertext)
	return buf
}

// EncodeText returns the envelope in base64 for storage in a text column.
func (e *Envelope) EncodeText() string {
	return base64.StdEncoding.EncodeToString(e.Marshal())
}

// UnmarshalEnvelope parses a serialized envelope. Unknown format versions
// fail closed with ErrInvalidEnvelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: truncated data", ErrInvalidEnvelope)
	}
	if data[0] != envelopeFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrInvalidEnvelope, data[0])
	}
	rest := data[1:]

	keyVersion, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad key version", ErrInvalidEnvelope)
	}
	rest = rest[n:]

	iv, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: bad IV", ErrInvalidEnvelope)
	}
	tag, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag", ErrInvalidEnvelope)
	}
	ciphertext, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidEnvelope)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidEnvelope)
	}

	return &Envelope{
		KeyVersion: int(keyVersion),
		IV:         iv,
		Tag:        tag,
		Ciphertext: ciphertext,
	}, nil
}

// DecodeText parses a base64 envelope produced by EncodeText.
func DecodeText(encoded string) (*Envelope, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return UnmarshalEnvelope(data)
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func readLengthPrefixed(data []byte) ([]byte, []byte, error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, fmt.Errorf("bad length prefix")
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, nil, fmt.Errorf("short data")
	}
	return data[:length], data[length:], nil
}
