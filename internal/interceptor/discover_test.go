package interceptor

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport"
)

type fakeAdvertisement struct {
	name     string
	manuf    []byte
	addr     string
	rssi     int
	connable bool
}

func (a fakeAdvertisement) LocalName() string        { return a.name }
func (a fakeAdvertisement) ManufacturerData() []byte { return a.manuf }
func (a fakeAdvertisement) RSSI() int                { return a.rssi }
func (a fakeAdvertisement) Addr() string             { return a.addr }
func (a fakeAdvertisement) Connectable() bool        { return a.connable }

// fakeCentral reports one matching advertisement immediately and hands back
// a fakeEquipmentLink on connect.
type fakeCentral struct {
	adv  fakeAdvertisement
	link *fakeEquipmentLink
}

func (c *fakeCentral) Scan(ctx context.Context, _ bool, handler func(transport.Advertisement)) error {
	handler(c.adv)
	return nil
}

func (c *fakeCentral) Connect(_ context.Context, _ string, _ transport.ConnectOptions) (transport.EquipmentLink, error) {
	return c.link, nil
}

func displayCodeManufData(code string) []byte {
	reversed := code[2:4] + code[0:2]
	suffix, _ := hex.DecodeString("dd" + reversed)
	return append([]byte{0x01, 0x02}, suffix...)
}

func TestDiscover_CapturesActivationCode(t *testing.T) {
	central := &fakeCentral{
		adv: fakeAdvertisement{
			name:     "Treadmill",
			manuf:    displayCodeManufData("1234"),
			addr:     "AA:BB:CC:DD:EE:FF",
			connable: true,
		},
		link: newFakeEquipmentLink(),
	}

	peripheralCh := make(chan *fakePeripheral, 1)
	factory := func() transport.Peripheral {
		p := newFakePeripheral()
		peripheralCh <- p
		return p
	}

	resultCh := make(chan struct {
		code string
		err  error
	}, 1)
	go func() {
		code, err := Discover(context.Background(), central, factory, DiscoverOptions{
			Code:           "1234",
			ScanTimeout:    time.Second,
			CaptureTimeout: 5 * time.Second,
		}, nil)
		resultCh <- struct {
			code string
			err  error
		}{code, err}
	}()

	peripheral := <-peripheralCh
	select {
	case <-peripheral.ready:
	case <-time.After(time.Second):
		t.Fatal("peripheral never registered its write handler")
	}

	activationPayload := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	for _, chunk := range appWrites(protocol.Treadmill, protocol.CmdEnable, activationPayload) {
		peripheral.writeAsApp(chunk)
	}

	select {
	case result := <-resultCh:
		require.NoError(t, result.err)
		assert.Equal(t, hex.EncodeToString(activationPayload), result.code)
	case <-time.After(2 * time.Second):
		t.Fatal("Discover never returned")
	}
}

func TestDiscover_TimesOutWithoutActivation(t *testing.T) {
	central := &fakeCentral{
		adv: fakeAdvertisement{
			name:     "Treadmill",
			manuf:    displayCodeManufData("1234"),
			addr:     "AA:BB:CC:DD:EE:FF",
			connable: true,
		},
		link: newFakeEquipmentLink(),
	}

	factory := func() transport.Peripheral { return newFakePeripheral() }

	_, err := Discover(context.Background(), central, factory, DiscoverOptions{
		Code:           "1234",
		ScanTimeout:    time.Second,
		CaptureTimeout: 50 * time.Millisecond,
	}, nil)
	assert.Error(t, err)
}
