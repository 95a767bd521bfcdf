package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCharacteristicsFromIDs_AscendingOrder(t *testing.T) {
	equipment := NewEquipmentInformation(Treadmill)
	equipment.SetCharacteristicsFromIDs([]uint8{70, 0, 36, 12})

	var ids []uint8
	for pair := equipment.Characteristics.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	assert.Equal(t, []uint8{0, 12, 36, 70}, ids)
}

func TestSetCharacteristicsFromIDs_DropsUnknownIDs(t *testing.T) {
	equipment := NewEquipmentInformation(Treadmill)
	equipment.SetCharacteristicsFromIDs([]uint8{0, 254})

	assert.True(t, equipment.HasCharacteristic(0))
	assert.False(t, equipment.HasCharacteristic(254))
}

func TestHasCharacteristic(t *testing.T) {
	equipment := NewEquipmentInformation(General)
	require.False(t, equipment.HasCharacteristic(0))

	equipment.SetCharacteristicsFromIDs([]uint8{0})
	assert.True(t, equipment.HasCharacteristic(0))
}
