package ifitclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ifit-ble/internal/protocol"
)

// fakeLink is a transport.EquipmentLink test double that reconstructs the
// request written in chunks, hands it to a responder, and feeds the
// responder's raw response back through the notify callback as chunks -
// the same framing the real device round-trip uses.
type fakeLink struct {
	mu          sync.Mutex
	notify      func([]byte)
	reqUpcoming int
	reqBuf      []byte
	connected   bool
	writeErr    error
	responder   func(request []byte) []byte
}

func newFakeLink(responder func(request []byte) []byte) *fakeLink {
	return &fakeLink{connected: true, responder: responder}
}

func (f *fakeLink) WriteTX(_ context.Context, data []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}

	idx, err := protocol.DetermineMessageIndex(data)
	if err != nil {
		return err
	}
	if idx == protocol.ChunkHeader {
		upcoming, buf, err := protocol.GetHeaderFromResponse(data)
		if err != nil {
			return err
		}
		f.reqUpcoming = upcoming
		f.reqBuf = buf
		return nil
	}
	if err := protocol.FillResponse(f.reqBuf, f.reqUpcoming, data); err != nil {
		return err
	}
	if idx != protocol.ChunkEOF {
		return nil
	}

	response := f.responder(f.reqBuf)
	notify := f.notify
	for _, chunk := range protocol.BuildWriteMessages(response) {
		notify(chunk)
	}
	return nil
}

func (f *fakeLink) SubscribeRX(callback func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = callback
	return nil
}

func (f *fakeLink) Disconnect() error { f.connected = false; return nil }
func (f *fakeLink) IsConnected() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakeLink) Address() string   { return "AA:BB:CC:DD:EE:FF" }

// buildResponse mirrors protocol.BuildRequest's frame layout to construct a
// canned device response: a status byte followed by command-specific extra
// bytes.
func buildResponse(equipment protocol.SportsEquipment, command protocol.Command, status byte, extra []byte) []byte {
	payload := append([]byte{status}, extra...)
	return protocol.BuildRequest(equipment, command, payload)
}

// idsBitmap packs characteristic ids into the bitmap format GetBitmap/
// ParseEquipmentInformationResponse use: byte 0 is the count of bytes that
// follow, bit (id mod 8) of byte (1 + id/8) is set per id.
func idsBitmap(ids []uint8) []byte {
	payload := []byte{0}
	for _, id := range ids {
		pos := int(id/8) + 1
		if pos > int(payload[0]) {
			payload[0] = byte(pos)
			for len(payload) <= pos {
				payload = append(payload, 0)
			}
		}
		payload[pos] |= 1 << uint(id%8)
	}
	for len(payload) <= int(payload[0]) {
		payload = append(payload, 0)
	}
	return payload
}

func equipmentInformationExtra(ids []uint8) []byte {
	extra := make([]byte, 8) // offsets 8-15, unused by this client
	extra = append(extra, idsBitmap(ids)...)
	return extra
}

func featuresExtra(ids []int) []byte {
	extra := []byte{byte(len(ids))}
	for _, id := range ids {
		extra = append(extra, byte(id))
	}
	return extra
}

// treadmillResponder returns a responder exposing Kph, Incline, CurrentKph,
// CurrentIncline, Pulse, Mode, and the min/max metadata characteristics,
// with SUPPORTED_CAPABILITIES/COMMANDS empty (no metadata commands run).
func treadmillResponder(t *testing.T, currentValues map[uint8][]byte) func([]byte) []byte {
	equipment := protocol.Treadmill
	supportedIDs := []uint8{0, 1, 10, 12, 16, 17, 27, 28, 30, 31, 36, 49}

	return func(request []byte) []byte {
		require.GreaterOrEqual(t, len(request), 7)
		command := protocol.Command(request[6])

		switch command {
		case protocol.CmdEquipmentInformation:
			return buildResponse(equipment, command, protocol.ResponseOK, equipmentInformationExtra(supportedIDs))
		case protocol.CmdSupportedCapabilities, protocol.CmdSupportedCommands:
			return buildResponse(equipment, command, protocol.ResponseOK, featuresExtra(nil))
		case protocol.CmdWriteAndRead:
			payload := request[7 : len(request)-1]
			return buildResponse(equipment, command, protocol.ResponseOK, readValuesFromRequest(t, payload, currentValues))
		case protocol.CmdEnable:
			return buildResponse(equipment, command, protocol.ResponseOK, nil)
		case protocol.CmdCalibrate:
			return buildResponse(equipment, command, protocol.ResponseOK, nil)
		default:
			t.Fatalf("unexpected command %s", command)
			return nil
		}
	}
}

// decodeBitmap is the inverse of protocol.GetBitmap: given the bytes that
// follow the count byte, it returns the set ids in ascending order.
func decodeBitmap(bitmapBytes []byte) []uint8 {
	var ids []uint8
	for byteIdx, b := range bitmapBytes {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				ids = append(ids, uint8(byteIdx*8+bit))
			}
		}
	}
	return ids
}

// readValuesFromRequest decodes a WRITE_AND_READ request's write bitmap
// (to know how many write-value bytes to skip) and read bitmap, then
// encodes the requested characteristics' values in ascending id order -
// exactly the section ParseWriteAndReadResponse expects at offset 8.
func readValuesFromRequest(t *testing.T, payload []byte, values map[uint8][]byte) []byte {
	pos := 0
	writeLen := int(payload[pos])
	pos++
	writeIDs := decodeBitmap(payload[pos : pos+writeLen])
	pos += writeLen

	for _, id := range writeIDs {
		def, ok := protocol.LookupByID(id)
		require.True(t, ok)
		pos += def.Converter.Size
	}

	readLen := int(payload[pos])
	pos++
	readIDs := decodeBitmap(payload[pos : pos+readLen])

	var extra []byte
	for _, id := range readIDs {
		def, ok := protocol.LookupByID(id)
		require.True(t, ok)
		v, ok := values[id]
		if !ok {
			v = make([]byte, def.Converter.Size)
		}
		extra = append(extra, v...)
	}
	return extra
}

func doubleBytes(t *testing.T, value float64) []byte {
	b, err := protocol.ConverterDouble.Encode(value)
	require.NoError(t, err)
	return b
}

func TestClient_ConnectAndReadCurrentValues(t *testing.T) {
	values := map[uint8][]byte{
		0:  doubleBytes(t, 6.5),  // Kph
		16: doubleBytes(t, 6.5),  // CurrentKph
		17: doubleBytes(t, 2.0),  // CurrentIncline
		12: {byte(protocol.ModeActive)},
	}

	link := newFakeLink(treadmillResponder(t, values))
	client := New(link, DefaultOptions())

	err := client.Connect(context.Background())
	require.NoError(t, err)

	info := client.EquipmentInformation()
	require.NotNil(t, info)
	assert.Equal(t, protocol.Treadmill, info.Equipment)
	assert.True(t, info.HasCharacteristic(0))
	assert.False(t, info.HasCharacteristic(103)) // PausedTime not in supportedIDs

	current, err := client.ReadCurrentValues(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 6.5, current["Kph"], 0.001)
	assert.InDelta(t, 6.5, current["CurrentKph"], 0.001)
	assert.InDelta(t, 2.0, current["CurrentIncline"], 0.001)
}

func TestClient_SetSpeed(t *testing.T) {
	link := newFakeLink(treadmillResponder(t, nil))
	client := New(link, DefaultOptions())
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.SetSpeed(context.Background(), 8.0))
}

func TestClient_Calibrate(t *testing.T) {
	link := newFakeLink(treadmillResponder(t, nil))
	client := New(link, DefaultOptions())
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Calibrate(context.Background()))
}

func TestClient_EnableEquipment_Success(t *testing.T) {
	opts := DefaultOptions()
	opts.ActivationCode = "0011223344556677"
	link := newFakeLink(treadmillResponder(t, nil))
	client := New(link, opts)

	require.NoError(t, client.Connect(context.Background()))
}

func TestClient_EnableEquipment_Rejected(t *testing.T) {
	equipment := protocol.Treadmill
	link := newFakeLink(func(request []byte) []byte {
		command := protocol.Command(request[6])
		switch command {
		case protocol.CmdEquipmentInformation:
			return buildResponse(equipment, command, protocol.ResponseOK, equipmentInformationExtra([]uint8{0, 1}))
		case protocol.CmdSupportedCapabilities, protocol.CmdSupportedCommands:
			return buildResponse(equipment, command, protocol.ResponseOK, featuresExtra(nil))
		case protocol.CmdEnable:
			return buildResponse(equipment, command, 0xFF, nil) // not ResponseOK
		default:
			return buildResponse(equipment, command, protocol.ResponseOK, nil)
		}
	})

	opts := DefaultOptions()
	opts.ActivationCode = "0011223344556677"
	client := New(link, opts)

	err := client.Connect(context.Background())
	require.Error(t, err)
	var activationErr *ActivationError
	assert.ErrorAs(t, err, &activationErr)
}

func TestClient_WriteCharacteristics_UnknownName(t *testing.T) {
	link := newFakeLink(treadmillResponder(t, nil))
	client := New(link, DefaultOptions())
	require.NoError(t, client.Connect(context.Background()))

	err := client.WriteCharacteristics(context.Background(), map[string]any{"kph": 5.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean")
}

func TestClient_StartStopWatch(t *testing.T) {
	values := map[uint8][]byte{0: doubleBytes(t, 4.0)}
	link := newFakeLink(treadmillResponder(t, values))
	client := New(link, DefaultOptions())
	require.NoError(t, client.Connect(context.Background()))

	updates := make(chan map[string]any, 4)
	client.StartWatch(10*time.Millisecond, func(v map[string]any) {
		select {
		case updates <- v:
		default:
		}
	})

	select {
	case v := <-updates:
		assert.Contains(t, v, "Kph")
	case <-time.After(time.Second):
		t.Fatal("expected at least one watch update")
	}

	client.StopWatch()
	assert.NotNil(t, client.CurrentValues())
}

func TestClient_SendRequest_TimesOut(t *testing.T) {
	link := newFakeLink(func([]byte) []byte { return nil }) // response never carries an EOF chunk

	opts := DefaultOptions()
	opts.ResponseTimeout = 20 * time.Millisecond
	client := New(link, opts)
	require.NoError(t, link.SubscribeRX(client.handleNotify))

	_, err := client.sendRequest(context.Background(), protocol.BuildRequest(protocol.General, protocol.CmdEquipmentInformation, nil))
	assert.ErrorIs(t, err, ErrTimeout)
}
