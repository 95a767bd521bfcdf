package protocol

import (
	"encoding/binary"
	"fmt"
)

// Converter describes how to turn a characteristic's raw bytes into a typed
// Go value and back. Instances are immutable and shared by every
// CharacteristicDefinition of a given shape.
type Converter struct {
	Name    string
	Size    int
	Decode  func(buf []byte) (any, error)
	Encode  func(v any) ([]byte, error)
}

func makeIntConverter(name string, size int) *Converter {
	return &Converter{
		Name: name,
		Size: size,
		Decode: func(buf []byte) (any, error) {
			if len(buf) < size {
				return nil, fmt.Errorf("protocol: %s: need %d bytes, got %d", name, size, len(buf))
			}
			var v uint64
			for i := 0; i < size; i++ {
				v |= uint64(buf[i]) << (8 * i)
			}
			return v, nil
		},
		Encode: func(value any) ([]byte, error) {
			v, err := asUint64(value)
			if err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", name, err)
			}
			buf := make([]byte, size)
			for i := 0; i < size; i++ {
				buf[i] = byte(v >> (8 * i))
			}
			return buf, nil
		},
	}
}

func makeScaledConverter(name string, size int, divisor float64) *Converter {
	base := makeIntConverter(name, size)
	return &Converter{
		Name: name,
		Size: size,
		Decode: func(buf []byte) (any, error) {
			raw, err := base.Decode(buf)
			if err != nil {
				return nil, err
			}
			return float64(raw.(uint64)) / divisor, nil
		},
		Encode: func(value any) ([]byte, error) {
			f, err := asFloat64(value)
			if err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", name, err)
			}
			return base.Encode(uint64(f * divisor))
		},
	}
}

func makeBoolConverter(name string) *Converter {
	return &Converter{
		Name: name,
		Size: 1,
		Decode: func(buf []byte) (any, error) {
			if len(buf) < 1 {
				return nil, fmt.Errorf("protocol: %s: need 1 byte, got %d", name, len(buf))
			}
			return buf[0] != 0, nil
		},
		Encode: func(value any) ([]byte, error) {
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("protocol: %s: expected bool, got %T", name, value)
			}
			if b {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
	}
}

func pulseFromBuffer(buf []byte) (any, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("protocol: pulse: need 4 bytes, got %d", len(buf))
	}
	return PulseReading{
		BPM:     buf[0],
		Average: buf[1],
		Count:   buf[2],
		Source:  PulseSource(buf[3]),
	}, nil
}

func pulseToBuffer(value any) ([]byte, error) {
	p, ok := value.(PulseReading)
	if !ok {
		return nil, fmt.Errorf("protocol: pulse: expected PulseReading, got %T", value)
	}
	return []byte{p.BPM, 0, 0, byte(p.Source)}, nil
}

// PulseReading is the decoded value of the Pulse characteristic: a heart
// rate reading plus the source it came from. Average and Count are carried
// through from the wire but not populated on encode, matching what the
// equipment itself expects to receive.
type PulseReading struct {
	BPM     byte
	Average byte
	Count   byte
	Source  PulseSource
}

func asUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case Mode:
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("expected integer-like value, got %T", value)
	}
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", value)
	}
}

// The calories divisor matches the original client's scale factor exactly:
// counts are stored as a fixed-point value over 100000000/1024.
const caloriesDivisor = 100000000.0 / 1024.0

var (
	ConverterDouble        = makeScaledConverter("double", 2, 100.0)
	ConverterBoolean       = makeBoolConverter("boolean")
	ConverterMode          = &Converter{
		Name: "mode",
		Size: 1,
		Decode: func(buf []byte) (any, error) {
			if len(buf) < 1 {
				return nil, fmt.Errorf("protocol: mode: need 1 byte, got %d", len(buf))
			}
			return Mode(buf[0]), nil
		},
		Encode: func(value any) ([]byte, error) {
			m, ok := value.(Mode)
			if !ok {
				return nil, fmt.Errorf("protocol: mode: expected Mode, got %T", value)
			}
			return []byte{byte(m)}, nil
		},
	}
	ConverterCalories      = makeScaledConverter("calories", 4, caloriesDivisor)
	ConverterPulse         = &Converter{
		Name:   "pulse",
		Size:   4,
		Decode: pulseFromBuffer,
		Encode: pulseToBuffer,
	}
	ConverterOneByteInt    = makeIntConverter("one_byte_int", 1)
	ConverterTwoBytesInt   = makeIntConverter("two_bytes_int", 2)
	ConverterFourBytesInt  = makeIntConverter("four_bytes_int", 4)
)

// encodeUint16LE / decodeUint16LE convert between a uint16 and its two-byte
// little-endian form.
func encodeUint16LE(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

func decodeUint16LE(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}
