package ifitclient

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/srg/ifit-ble/internal/protocol"
)

// WriteAndRead writes the given characteristic values and returns the
// requested reads in a single WRITE_AND_READ exchange.
func (c *Client) WriteAndRead(ctx context.Context, writes []protocol.WriteValue, reads []string) (map[string]any, error) {
	readDefs := make([]*protocol.CharacteristicDefinition, 0, len(reads))
	for _, name := range reads {
		def, ok := protocol.LookupByName(name)
		if !ok {
			return nil, fmt.Errorf("ifitclient: unknown characteristic name: %q%s: %w", name, didYouMean(name), ErrInvalidArgument)
		}
		readDefs = append(readDefs, def)
	}
	return c.writeAndReadDefs(ctx, writes, readDefs)
}

// WriteAndReadAny is WriteAndRead generalized to the reference client's
// write_and_read(ids_or_names: iterable) signature: each entry in reads may
// be a characteristic name (string) or numeric id (any integer kind).
func (c *Client) WriteAndReadAny(ctx context.Context, writes []protocol.WriteValue, reads []any) (map[string]any, error) {
	readDefs := make([]*protocol.CharacteristicDefinition, 0, len(reads))
	for _, idOrName := range reads {
		def, err := resolveCharacteristic(idOrName)
		if err != nil {
			return nil, err
		}
		readDefs = append(readDefs, def)
	}
	return c.writeAndReadDefs(ctx, writes, readDefs)
}

// writeAndReadDefs is the shared core of WriteAndRead/WriteAndReadAny once
// every read target has been resolved to its characteristic definition.
func (c *Client) writeAndReadDefs(ctx context.Context, writes []protocol.WriteValue, readDefs []*protocol.CharacteristicDefinition) (map[string]any, error) {
	info, err := c.requireEquipmentInfo()
	if err != nil {
		return nil, err
	}

	payload, err := protocol.BuildWriteAndReadPayload(info, writes, readDefs)
	if err != nil {
		return nil, err
	}

	_, response, err := c.sendCommand(ctx, protocol.CmdWriteAndRead, payload)
	if err != nil {
		return nil, err
	}
	return protocol.ParseWriteAndReadResponse(info, response, readDefs), nil
}

// ReadCharacteristics reads the named characteristics by value.
func (c *Client) ReadCharacteristics(ctx context.Context, names ...string) (map[string]any, error) {
	return c.WriteAndRead(ctx, nil, names)
}

// ReadAny reads characteristics identified by name or numeric id, in any
// combination, matching the reference client's read(ids_or_names: iterable).
func (c *Client) ReadAny(ctx context.Context, idsOrNames ...any) (map[string]any, error) {
	return c.WriteAndReadAny(ctx, nil, idsOrNames)
}

// WriteCharacteristics writes the named characteristic values, reading
// nothing back.
func (c *Client) WriteCharacteristics(ctx context.Context, values map[string]any) error {
	writes := make([]protocol.WriteValue, 0, len(values))
	for name, value := range values {
		def, ok := protocol.LookupByName(name)
		if !ok {
			return fmt.Errorf("ifitclient: unknown characteristic name: %q%s: %w", name, didYouMean(name), ErrInvalidArgument)
		}
		writes = append(writes, protocol.WriteValue{Characteristic: def, Value: value})
	}
	_, err := c.WriteAndRead(ctx, writes, nil)
	return err
}

// resolveCharacteristic resolves a read target given either its name
// (string) or its numeric id (any integer kind), the way the original
// client's write_and_read accepts a mix of both in the same iterable.
func resolveCharacteristic(idOrName any) (*protocol.CharacteristicDefinition, error) {
	switch v := idOrName.(type) {
	case string:
		def, ok := protocol.LookupByName(v)
		if !ok {
			return nil, fmt.Errorf("ifitclient: unknown characteristic name: %q%s: %w", v, didYouMean(v), ErrInvalidArgument)
		}
		return def, nil
	case int:
		return lookupByID(uint8(v))
	case int8:
		return lookupByID(uint8(v))
	case int16:
		return lookupByID(uint8(v))
	case int32:
		return lookupByID(uint8(v))
	case int64:
		return lookupByID(uint8(v))
	case uint:
		return lookupByID(uint8(v))
	case uint8:
		return lookupByID(v)
	case uint16:
		return lookupByID(uint8(v))
	case uint32:
		return lookupByID(uint8(v))
	case uint64:
		return lookupByID(uint8(v))
	default:
		return nil, fmt.Errorf("ifitclient: characteristic identifier must be a name or integer id, got %T: %w", idOrName, ErrInvalidArgument)
	}
}

func lookupByID(id uint8) (*protocol.CharacteristicDefinition, error) {
	def, ok := protocol.LookupByID(id)
	if !ok {
		return nil, fmt.Errorf("ifitclient: unknown characteristic id: %d: %w", id, ErrInvalidArgument)
	}
	return def, nil
}

func didYouMean(name string) string {
	for known := range protocol.Characteristics {
		if strings.EqualFold(known, name) {
			return fmt.Sprintf(". Did you mean %q?", known)
		}
	}
	names := make([]string, 0, len(protocol.Characteristics))
	for known := range protocol.Characteristics {
		names = append(names, known)
	}
	sort.Strings(names)
	return fmt.Sprintf(". Valid names are: %s", strings.Join(names, ", "))
}

// ReadCurrentValues reads the small set of values the watch loop polls:
// commanded and actual speed, actual incline, pulse, and operating mode.
func (c *Client) ReadCurrentValues(ctx context.Context) (map[string]any, error) {
	return c.ReadCharacteristics(ctx, "Kph", "CurrentKph", "CurrentIncline", "Pulse", "Mode")
}

// SetSpeed sets the treadmill's commanded speed, in km/h.
func (c *Client) SetSpeed(ctx context.Context, kph float64) error {
	return c.WriteCharacteristics(ctx, map[string]any{"Kph": kph})
}

// SetIncline sets the treadmill's commanded incline, in percent.
func (c *Client) SetIncline(ctx context.Context, percent float64) error {
	return c.WriteCharacteristics(ctx, map[string]any{"Incline": percent})
}

// Calibrate requests incline calibration on the treadmill.
func (c *Client) Calibrate(ctx context.Context) error {
	_, _, err := c.sendCommand(ctx, protocol.CmdCalibrate, []byte{0})
	return err
}
