package order

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

const recordFormatVersion = 1

// ErrCorruptRecord is returned when a stored blob cannot be decoded. The
// engine treats it like a backend fault, not like an absent order.
var ErrCorruptRecord = errors.New("order record corrupt")

func writeString8(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("order field too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString8(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrCorruptRecord
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrCorruptRecord
	}
	return string(b), nil
}

// Encode serializes an Order into the versioned binary record stored in
// Redis. Completion data rides along as a length-prefixed JSON blob; the
// surrounding fields stay binary so the hot poll path never touches JSON.
func Encode(o *Order) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersion)

	for _, s := range []string{o.ID, o.OrderRef, o.QRStartToken, o.AutoStartToken, o.QRStartSecret, o.IPAddress, o.HintCode} {
		if err := writeString8(&buf, s); err != nil {
			return nil, err
		}
	}

	buf.Write(o.SessionHash[:])
	buf.WriteByte(byte(o.Status))
	if o.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, o.StartT); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, o.InsertedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, o.UpdatedAt); err != nil {
		return nil, err
	}

	var completion []byte
	if o.Completion != nil {
		var err error
		completion, err = json.Marshal(o.Completion)
		if err != nil {
			return nil, err
		}
	}
	if len(completion) > 65535 {
		return nil, errors.New("completion payload too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(completion))); err != nil {
		return nil, err
	}
	buf.Write(completion)

	return buf.Bytes(), nil
}

// Decode parses a stored record blob back into an Order.
func Decode(data []byte) (*Order, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != recordFormatVersion {
		return nil, ErrCorruptRecord
	}

	o := &Order{}
	fields := []*string{&o.ID, &o.OrderRef, &o.QRStartToken, &o.AutoStartToken, &o.QRStartSecret, &o.IPAddress, &o.HintCode}
	for _, f := range fields {
		v, err := readString8(r)
		if err != nil {
			return nil, err
		}
		*f = v
	}

	if _, err := io.ReadFull(r, o.SessionHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}

	status, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	o.Status = Status(status)

	consumed, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	o.Consumed = consumed == 1

	if err := binary.Read(r, binary.BigEndian, &o.StartT); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(r, binary.BigEndian, &o.InsertedAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(r, binary.BigEndian, &o.UpdatedAt); err != nil {
		return nil, ErrCorruptRecord
	}

	var completionLen uint16
	if err := binary.Read(r, binary.BigEndian, &completionLen); err != nil {
		return nil, ErrCorruptRecord
	}
	if completionLen > 0 {
		blob := make([]byte, completionLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, ErrCorruptRecord
		}
		completion := &Completion{}
		if err := json.Unmarshal(blob, completion); err != nil {
			return nil, ErrCorruptRecord
		}
		o.Completion = completion
	}

	return o, nil
}
