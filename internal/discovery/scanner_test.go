package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ifit-ble/internal/transport"
)

type fakeAdvertisement struct {
	localName string
	manufData []byte
	addr      string
}

func (a fakeAdvertisement) LocalName() string        { return a.localName }
func (a fakeAdvertisement) ManufacturerData() []byte { return a.manufData }
func (a fakeAdvertisement) RSSI() int                { return -50 }
func (a fakeAdvertisement) Addr() string             { return a.addr }
func (a fakeAdvertisement) Connectable() bool        { return true }

type fakeCentral struct {
	advertisements []fakeAdvertisement
}

func (c *fakeCentral) Scan(_ context.Context, _ bool, handler func(transport.Advertisement)) error {
	for _, adv := range c.advertisements {
		handler(adv)
	}
	return nil
}

func TestScanner_FiltersByCode(t *testing.T) {
	matching, err := codeSuffix("ab12")
	require.NoError(t, err)

	central := &fakeCentral{advertisements: []fakeAdvertisement{
		{localName: "Treadmill1", manufData: append([]byte{0x00}, matching...), addr: "AA:BB"},
		{localName: "OtherGear", manufData: []byte{0x00, 0xDD, 0x99, 0x99}, addr: "CC:DD"},
		{localName: "NotIFit", manufData: []byte{0x01, 0x02, 0x03}, addr: "EE:FF"},
	}}

	scanner := NewScanner(central, nil)
	devices, err := scanner.Scan(context.Background(), ScanOptions{Code: "ab12"}, nil)
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "AA:BB", devices[0].Address)
	assert.Equal(t, "ab12", devices[0].Code)
}

func TestScanner_NoCodeMatchesAnyIFitDevice(t *testing.T) {
	codeA, _ := codeSuffix("ab12")
	codeB, _ := codeSuffix("cd34")

	central := &fakeCentral{advertisements: []fakeAdvertisement{
		{localName: "A", manufData: append([]byte{0x00}, codeA...), addr: "AA"},
		{localName: "B", manufData: append([]byte{0x00}, codeB...), addr: "BB"},
		{localName: "NotIFit", manufData: []byte{0x01, 0x02, 0x03}, addr: "CC"},
	}}

	scanner := NewScanner(central, nil)
	devices, err := scanner.Scan(context.Background(), ScanOptions{}, nil)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestScanner_EmitsEvents(t *testing.T) {
	codeA, _ := codeSuffix("ab12")
	central := &fakeCentral{advertisements: []fakeAdvertisement{
		{localName: "A", manufData: append([]byte{0x00}, codeA...), addr: "AA"},
	}}

	scanner := NewScanner(central, nil)
	_, err := scanner.Scan(context.Background(), ScanOptions{}, nil)
	require.NoError(t, err)

	select {
	case event := <-scanner.Events():
		assert.Equal(t, EventNew, event.Type)
		assert.Equal(t, "AA", event.Device.Address)
	default:
		t.Fatal("expected a discovery event to be buffered")
	}
}

func TestFindDevice_NotFound(t *testing.T) {
	central := &fakeCentral{}
	_, err := FindDevice(context.Background(), central, "ab12", 0, nil)
	assert.Error(t, err)
}
