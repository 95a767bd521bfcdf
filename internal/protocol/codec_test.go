package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	request := BuildRequest(Treadmill, CmdEquipmentInformation, []byte{0, 0})

	// prefix + length/equipment/length/command + 2-byte payload + checksum
	require.Len(t, request, 9)
	assert.Equal(t, []byte{2, 4, 2}, request[:3])
	assert.Equal(t, byte(6), request[3]) // len(payload)+4
	assert.Equal(t, byte(Treadmill), request[4])
	assert.Equal(t, byte(6), request[5])
	assert.Equal(t, byte(CmdEquipmentInformation), request[6])

	checksum := int(Treadmill) + 6 + int(CmdEquipmentInformation)
	assert.Equal(t, byte(checksum&0xFF), request[8])
}

func TestBuildWriteMessages_SingleChunk(t *testing.T) {
	request := BuildRequest(General, CmdSupportedCapabilities, nil)
	messages := BuildWriteMessages(request)

	require.Len(t, messages, 2)
	header := messages[0]
	assert.Equal(t, ChunkHeader, header[0])
	assert.Equal(t, byte(len(request)), header[2])
	assert.Equal(t, byte(2), header[3]) // one write chunk + 1

	final := messages[1]
	assert.Equal(t, ChunkEOF, final[0])
	assert.Equal(t, byte(len(request)), final[1])
}

func TestBuildWriteMessages_MultiChunk(t *testing.T) {
	// a payload long enough to force more than one 18-byte data chunk
	payload := make([]byte, 30)
	request := BuildRequest(Treadmill, CmdWriteAndRead, payload)
	messages := BuildWriteMessages(request)

	require.Len(t, messages, 4) // header + 3 data chunks for the 38-byte request
	assert.Equal(t, byte(0), messages[1][0])
	assert.Equal(t, ChunkEOF, messages[3][0])
}

func TestRoundTripResponseReassembly(t *testing.T) {
	request := BuildRequest(Treadmill, CmdEquipmentReference, []byte{0, 0})
	upcoming, buffer, err := GetHeaderFromResponse([]byte{ChunkHeader, 2, byte(len(request)), 2})
	require.NoError(t, err)
	assert.Equal(t, 1, upcoming)
	assert.Len(t, buffer, len(request))

	chunk := make([]byte, 2+len(request))
	chunk[0] = ChunkEOF
	chunk[1] = byte(len(request))
	copy(chunk[2:], request)

	require.NoError(t, FillResponse(buffer, upcoming, chunk))
	assert.Equal(t, request, buffer)
}

func TestParseCommandHeader(t *testing.T) {
	response := BuildRequest(Treadmill, CmdEquipmentReference, []byte{0, 2})
	response[7] = ResponseOK

	header, err := ParseCommandHeader(response, CmdEquipmentReference)
	require.NoError(t, err)
	assert.Equal(t, Treadmill, header.Equipment)
}

func TestParseCommandHeader_WrongCommand(t *testing.T) {
	response := BuildRequest(Treadmill, CmdEquipmentReference, []byte{0, 2})
	response[7] = ResponseOK

	_, err := ParseCommandHeader(response, CmdEquipmentFirmware)
	assert.Error(t, err)
}

func TestParseCommandHeader_StatusNotOK(t *testing.T) {
	response := BuildRequest(Treadmill, CmdEquipmentReference, []byte{0, 2})
	response[7] = 0x01 // not ResponseOK

	_, err := ParseCommandHeader(response, CmdEquipmentReference)
	assert.ErrorContains(t, err, "response code not OK")
}

func TestGetBitmap(t *testing.T) {
	equipment := NewEquipmentInformation(Treadmill)
	equipment.SetCharacteristicsFromIDs([]uint8{0, 10, 12})

	kph, _ := LookupByName("Kph")
	pulse, _ := LookupByName("Pulse")
	mode, _ := LookupByName("Mode")

	bitmap := GetBitmap(equipment, []*CharacteristicDefinition{kph, pulse, mode})

	// ids 0, 10, 12 span bytes 1 (id 0) and 2 (ids 10, 12)
	require.Len(t, bitmap, 3)
	assert.Equal(t, byte(2), bitmap[0])
	assert.Equal(t, byte(1<<0), bitmap[1])
	assert.Equal(t, byte(1<<2|1<<4), bitmap[2])
}

func TestGetBitmap_SkipsUnsupported(t *testing.T) {
	equipment := NewEquipmentInformation(Treadmill)
	equipment.SetCharacteristicsFromIDs([]uint8{0})

	kph, _ := LookupByName("Kph")
	pulse, _ := LookupByName("Pulse")

	bitmap := GetBitmap(equipment, []*CharacteristicDefinition{kph, pulse})
	assert.Equal(t, byte(1), bitmap[0])
	assert.Equal(t, byte(1), bitmap[1])
}

func TestGetWriteValues_SortsByID(t *testing.T) {
	incline, _ := LookupByName("Incline") // id 1
	kph, _ := LookupByName("Kph")         // id 0

	payload, err := GetWriteValues([]WriteValue{
		{Characteristic: incline, Value: 2.5},
		{Characteristic: kph, Value: 8.0},
	})
	require.NoError(t, err)
	require.Len(t, payload, 4) // two double converters, 2 bytes each

	// Kph (id 0) is encoded first since writes are sorted ascending by id.
	kphValue, err := ConverterDouble.Decode(payload[0:2])
	require.NoError(t, err)
	assert.InDelta(t, 8.0, kphValue.(float64), 0.01)
}

func TestValidateChecksum(t *testing.T) {
	request := BuildRequest(Treadmill, CmdEquipmentInformation, []byte{0, 0})
	assert.NoError(t, ValidateChecksum(request))

	corrupted := append([]byte(nil), request...)
	corrupted[len(corrupted)-1] ^= 0xFF
	assert.Error(t, ValidateChecksum(corrupted))
}

func TestValidateChecksum_ShortResponseSkipped(t *testing.T) {
	assert.NoError(t, ValidateChecksum([]byte{1, 2, 3}))
}

func TestParseEquipmentInformationResponse(t *testing.T) {
	response := make([]byte, 19)
	response[16] = 2    // two bitmap bytes follow
	response[17] = 1    // bit 0 -> characteristic id 0
	response[18] = 1<<2 // bit 2 of byte offset 1 -> characteristic id 10

	ids := ParseEquipmentInformationResponse(response)
	assert.ElementsMatch(t, []uint8{0, 10}, ids)
}

func TestParseFeaturesResponse(t *testing.T) {
	response := make([]byte, 11)
	response[8] = 2
	response[9] = 65
	response[10] = 66

	capabilities := ParseFeaturesResponse(response)
	assert.Equal(t, []int{65, 66}, capabilities)
}

func TestParseFeaturesResponse_TooShort(t *testing.T) {
	assert.Nil(t, ParseFeaturesResponse([]byte{1, 2, 3}))
}
