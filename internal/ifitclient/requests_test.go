package ifitclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ifit-ble/internal/protocol"
)

func TestClient_HandleNotify_IgnoredWithoutPendingRequest(t *testing.T) {
	link := newFakeLink(func([]byte) []byte { return nil })
	client := New(link, DefaultOptions())
	require.NoError(t, link.SubscribeRX(client.handleNotify))

	// No request in flight; a stray notification must not panic.
	client.handleNotify([]byte{protocol.ChunkHeader, 2, 4, 1})
}

func TestClient_SendRequest_ChecksumFailurePropagates(t *testing.T) {
	equipment := protocol.Treadmill
	link := newFakeLink(func(request []byte) []byte {
		command := protocol.Command(request[6])
		response := buildResponse(equipment, command, protocol.ResponseOK, nil)
		response[len(response)-1] ^= 0xFF // corrupt checksum
		return response
	})

	opts := DefaultOptions()
	opts.ResponseTimeout = time.Second
	client := New(link, opts)
	require.NoError(t, link.SubscribeRX(client.handleNotify))

	_, err := client.sendRequest(context.Background(), protocol.BuildRequest(protocol.General, protocol.CmdEquipmentInformation, nil))
	assert.Error(t, err)
}

func TestClient_SendRequest_WriteFailurePropagates(t *testing.T) {
	link := newFakeLink(nil)
	link.writeErr = assert.AnError
	client := New(link, DefaultOptions())
	require.NoError(t, link.SubscribeRX(client.handleNotify))

	_, err := client.sendRequest(context.Background(), protocol.BuildRequest(protocol.General, protocol.CmdEquipmentInformation, nil))
	assert.ErrorIs(t, err, assert.AnError)
}
