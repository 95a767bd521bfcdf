package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrProtocol is the sentinel wrapped by every framing, length, bitmap, or
// checksum violation this package detects: a malformed response that
// invalidates whatever request it was supposed to answer. Callers match it
// with errors.Is to distinguish a corrupt frame from any other error.
var ErrProtocol = errors.New("protocol error")

// Message format constants, named the way the reference client names them.
const (
	MinHeaderLength           = 4
	MinChunkLength            = 2
	MinCommandHeaderLength    = 4
	MinFeaturesResponseLength = 9
	MinChecksumLength         = 5
)

// GetBitmap builds the characteristic-id bitmap used by WRITE_AND_READ
// requests: byte 0 is the count of bitmap bytes that follow, and bit
// (id mod 8) of byte (1 + id/8) is set for every characteristic present in
// both values and the equipment's supported set.
func GetBitmap(equipment *EquipmentInformation, values []*CharacteristicDefinition) []byte {
	payload := []byte{0}
	for _, characteristic := range values {
		if !equipment.HasCharacteristic(characteristic.ID) {
			continue
		}
		pos := int(characteristic.ID/8) + 1
		if pos > int(payload[0]) {
			payload[0] = byte(pos)
			for len(payload) <= pos {
				payload = append(payload, 0)
			}
		}
		bit := int(characteristic.ID) - (pos-1)*8
		payload[pos] |= 1 << uint(bit)
	}
	for len(payload) <= int(payload[0]) {
		payload = append(payload, 0)
	}
	return payload
}

// bitmapFromWrites is GetBitmap applied to the characteristics of a set of
// WriteValues.
func bitmapFromWrites(equipment *EquipmentInformation, writes []WriteValue) []byte {
	defs := make([]*CharacteristicDefinition, len(writes))
	for i, w := range writes {
		defs[i] = w.Characteristic
	}
	return GetBitmap(equipment, defs)
}

// GetWriteValues encodes a set of writes, sorted by ascending characteristic
// id, concatenating each converter's encoded bytes (or a single zero byte
// for characteristics with no converter).
func GetWriteValues(writes []WriteValue) ([]byte, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	sorted := append([]WriteValue(nil), writes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Characteristic.ID < sorted[j].Characteristic.ID
	})

	var payload []byte
	for _, w := range sorted {
		if w.Characteristic.Converter != nil {
			encoded, err := w.Characteristic.Converter.Encode(w.Value)
			if err != nil {
				return nil, err
			}
			payload = append(payload, encoded...)
		} else {
			payload = append(payload, 0)
		}
	}
	return payload, nil
}

// BuildRequest assembles the command+payload blob that gets chunked for BLE
// transmission: a fixed 02 04 02 prefix, the payload length (+4) repeated at
// offsets 3 and 5, the equipment id, the command, the payload itself, and a
// trailing checksum byte (low byte of equipment+length+command+sum(payload)).
func BuildRequest(equipment SportsEquipment, command Command, payload []byte) []byte {
	length := len(payload) + 4
	buf := make([]byte, length+4)

	checksum := int(equipment) + length + int(command)

	buf[0] = 2
	buf[1] = 4
	buf[2] = 2
	buf[3] = byte(length)
	buf[4] = byte(equipment)
	buf[5] = byte(length)
	buf[6] = byte(command)
	pos := 7
	for _, b := range payload {
		checksum += int(b)
		buf[pos] = b
		pos++
	}
	buf[pos] = byte(checksum & 0xFF)
	return buf
}

// requestHeader builds the BLE header chunk that precedes a framed
// request's payload chunks.
func requestHeader(request []byte, numberOfWrites int) []byte {
	return []byte{ChunkHeader, 2, byte(len(request)), byte(numberOfWrites + 1)}
}

// BuildWriteMessages splits a request blob into the sequence of BLE writes
// needed to deliver it: a header chunk followed by 20-byte payload chunks,
// the last of which is marked EOF instead of carrying a sequence index.
func BuildWriteMessages(request []byte) [][]byte {
	numberOfWrites := (len(request) + MaxBytesPerMessage - 1) / MaxBytesPerMessage
	messages := [][]byte{requestHeader(request, numberOfWrites)}

	offset := 0
	counter := 1
	done := offset == len(request)
	for !done {
		message := make([]byte, 20)
		var length int
		if counter < numberOfWrites {
			length = MaxBytesPerMessage
		} else {
			length = (len(request)-1)%MaxBytesPerMessage + 1
		}
		message[0] = byte(counter - 1)
		message[1] = byte(length)
		copy(message[2:2+length], request[offset:offset+length])

		offset += length
		done = offset == len(request)

		if done {
			message[0] = ChunkEOF
		} else {
			counter++
		}
		messages = append(messages, message)
	}
	return messages
}

// DetermineMessageIndex returns the chunk index byte (or ChunkHeader/ChunkEOF
// sentinel) from a raw BLE notification.
func DetermineMessageIndex(message []byte) (byte, error) {
	if len(message) < 1 {
		return 0, fmt.Errorf("protocol: unexpected message format: %x: %w", message, ErrProtocol)
	}
	return message[0], nil
}

// GetHeaderFromResponse parses a response header chunk, returning the
// number of chunks still expected and a freshly allocated buffer sized to
// hold the full response.
func GetHeaderFromResponse(message []byte) (upcomingMessages int, buffer []byte, err error) {
	if len(message) < MinHeaderLength {
		return 0, nil, fmt.Errorf("protocol: unexpected message format - four bytes expected: %w", ErrProtocol)
	}
	if message[0] != ChunkHeader {
		return 0, nil, fmt.Errorf("protocol: message is not a header: expected 0xfe got %#x: %w", message[0], ErrProtocol)
	}
	bufLength := message[2]
	upcomingMessages = int(message[3]) - 1
	buffer = make([]byte, bufLength)
	return upcomingMessages, buffer, nil
}

// FillResponse copies a response chunk into buffer at the offset implied by
// its chunk index, treating ChunkEOF as the final (numberOfReads-1)th slot.
func FillResponse(buffer []byte, numberOfReads int, message []byte) error {
	if buffer == nil {
		return fmt.Errorf("protocol: undefined buffer: %w", ErrProtocol)
	}
	if len(message) < MinChunkLength {
		return fmt.Errorf("protocol: unexpected message format - two bytes expected: %w", ErrProtocol)
	}

	index := message[0]
	if index != ChunkEOF && int(index) >= numberOfReads {
		return fmt.Errorf("protocol: index of message exceeds number of expected reads: %d>=%d: %w", index, numberOfReads, ErrProtocol)
	}

	var chunkIdx int
	if index == ChunkEOF {
		chunkIdx = numberOfReads - 1
	} else {
		chunkIdx = int(index)
	}
	pos := chunkIdx * 18
	length := int(message[1])
	if length+pos > len(buffer) {
		return fmt.Errorf("protocol: amount of data in message exceeds buffer size: %d>%d: %w", length+pos, len(buffer), ErrProtocol)
	}
	copy(buffer[pos:pos+length], message[2:2+length])
	return nil
}

// BuildWriteAndReadPayload assembles the payload for a WRITE_AND_READ
// command: the write bitmap, the encoded write values (if any), then the
// read bitmap.
func BuildWriteAndReadPayload(equipment *EquipmentInformation, writes []WriteValue, reads []*CharacteristicDefinition) ([]byte, error) {
	writeBitmap := bitmapFromWrites(equipment, writes)
	readBitmap := GetBitmap(equipment, reads)

	writeValues, err := GetWriteValues(writes)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(writeBitmap)+len(writeValues)+len(readBitmap))
	payload = append(payload, writeBitmap...)
	payload = append(payload, writeValues...)
	payload = append(payload, readBitmap...)
	return payload, nil
}

// CommandHeader is the parsed header fields of a response frame.
type CommandHeader struct {
	Equipment SportsEquipment
}

// ParseCommandHeader validates a response's length, echoed command, and
// status byte, returning the equipment id it reports.
func ParseCommandHeader(response []byte, expectedCommand Command) (CommandHeader, error) {
	if len(response) < MinCommandHeaderLength {
		return CommandHeader{}, fmt.Errorf("protocol: unexpected buffer length - must be greater than 4 bytes: %w", ErrProtocol)
	}
	length := response[3]
	if len(response) != int(length)+4 {
		return CommandHeader{}, fmt.Errorf("protocol: buffer length is %d but header says %d bytes: %w", len(response), int(length)+4, ErrProtocol)
	}

	pos := 4
	equipment := response[pos]
	pos += 2
	command := response[pos]
	pos++
	if Command(command) != expectedCommand {
		return CommandHeader{}, fmt.Errorf("protocol: expected command %d but got %d: %w", expectedCommand, command, ErrProtocol)
	}
	status := response[pos]
	if status != ResponseOK {
		return CommandHeader{}, fmt.Errorf("protocol: response code not OK: %d: %w", status, ErrProtocol)
	}
	return CommandHeader{Equipment: SportsEquipment(equipment)}, nil
}

// ParseEquipmentInformationResponse decodes the bitmap of supported
// characteristic ids starting at offset 16 of an EQUIPMENT_INFORMATION
// response.
func ParseEquipmentInformationResponse(response []byte) []uint8 {
	pos := 16
	if pos >= len(response) {
		return nil
	}
	length := int(response[pos])
	pos++

	var ids []uint8
	for offset := 0; offset < length && pos < len(response); offset++ {
		b := response[pos]
		pos++
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				ids = append(ids, uint8(offset*8+bit))
			}
		}
	}
	return ids
}

// ParseFeaturesResponse decodes a supported-capabilities/supported-commands
// style response: a count byte at offset 8 followed by that many feature
// ids. Truncated responses are tolerated and parsed as far as they go.
func ParseFeaturesResponse(response []byte) []int {
	if len(response) < MinFeaturesResponseLength {
		return nil
	}
	pos := 8
	count := int(response[pos])
	pos++

	if len(response) < pos+count {
		count = len(response) - pos
	}

	capabilities := make([]int, 0, count)
	for i := 0; i < count; i++ {
		capabilities = append(capabilities, int(response[pos]))
		pos++
	}
	return capabilities
}

// ParseWriteAndReadResponse decodes the read section of a WRITE_AND_READ
// response, in ascending characteristic-id order starting at offset 8,
// skipping any characteristic not supported by the connected equipment.
func ParseWriteAndReadResponse(equipment *EquipmentInformation, response []byte, reads []*CharacteristicDefinition) map[string]any {
	result := make(map[string]any)
	sorted := append([]*CharacteristicDefinition(nil), reads...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	pos := 8
	for _, characteristic := range sorted {
		if !equipment.HasCharacteristic(characteristic.ID) {
			continue
		}
		if characteristic.Converter == nil {
			continue
		}
		if pos+characteristic.Converter.Size > len(response) {
			break
		}
		value, err := characteristic.Converter.Decode(response[pos : pos+characteristic.Converter.Size])
		if err == nil {
			result[characteristic.Name] = value
		}
		pos += characteristic.Converter.Size
	}
	return result
}

func parseFirmwareResponse(response []byte) (string, bool) {
	if len(response) <= 11 {
		return "", false
	}
	raw := string(response[11:])
	raw = strings.SplitN(raw, "\x01", 2)[0]
	raw = strings.SplitN(raw, "\x00", 2)[0]
	if raw == "" {
		return "", false
	}
	return raw, true
}

func parseReferenceResponse(response []byte) (uint32, bool) {
	if len(response) < 19 {
		return 0, false
	}
	v := uint32(response[15]) | uint32(response[16])<<8 | uint32(response[17])<<16 | uint32(response[18])<<24
	return v, true
}

func parseSerialResponse(response []byte) (string, bool) {
	if len(response) < 9 {
		return "", false
	}
	serialLength := int(response[8])
	if len(response) < 9+serialLength {
		return "", false
	}
	raw := strings.TrimSpace(string(response[9 : 9+serialLength]))
	if raw == "" {
		return "", false
	}
	return raw, true
}

// ParseEquipmentFirmwareResponse extracts the firmware version string from
// an EQUIPMENT_FIRMWARE response, if the response is long enough to contain
// one.
func ParseEquipmentFirmwareResponse(response []byte) (string, bool) {
	if len(response) < 12 {
		return "", false
	}
	return parseFirmwareResponse(response)
}

// ParseEquipmentReferenceResponse extracts the reference number from an
// EQUIPMENT_REFERENCE response.
func ParseEquipmentReferenceResponse(response []byte) (uint32, bool) {
	if len(response) < 19 {
		return 0, false
	}
	return parseReferenceResponse(response)
}

// ParseEquipmentSerialResponse extracts the serial number string from an
// EQUIPMENT_SERIAL response.
func ParseEquipmentSerialResponse(response []byte) (string, bool) {
	if len(response) < 10 {
		return "", false
	}
	return parseSerialResponse(response)
}

// ValidateChecksum verifies a response's trailing checksum byte against the
// sum of bytes [4:-1]. Responses no longer than MinChecksumLength carry no
// checksum to verify and are accepted unconditionally.
func ValidateChecksum(response []byte) error {
	if len(response) <= MinChecksumLength {
		return nil
	}
	var sum int
	for _, b := range response[4 : len(response)-1] {
		sum += int(b)
	}
	checksum := byte(sum & 0xFF)
	if checksum != response[len(response)-1] {
		return fmt.Errorf("protocol: checksum invalid: %w", ErrProtocol)
	}
	return nil
}

// CommandConfig describes one of the equipment queries issued during
// client initialization.
type CommandConfig struct {
	Command        Command
	StoreIn        string
	Payload        []byte
	CheckSupported bool
}

// CoreCommands are always executed during initialization, regardless of
// what the equipment reports as supported.
var CoreCommands = []CommandConfig{
	{Command: CmdSupportedCapabilities, StoreIn: "supported_capabilities", CheckSupported: false},
	{Command: CmdSupportedCommands, StoreIn: "supported_commands", CheckSupported: false},
}

// MetadataCommands are only executed if the equipment reports them as
// supported commands.
var MetadataCommands = []CommandConfig{
	{Command: CmdEquipmentReference, StoreIn: "reference_number", Payload: []byte{0, 0}, CheckSupported: true},
	{Command: CmdEquipmentFirmware, StoreIn: "firmware_version", Payload: []byte{0, 0}, CheckSupported: true},
	{Command: CmdEquipmentSerial, StoreIn: "serial_number", Payload: []byte{0, 0}, CheckSupported: true},
}
