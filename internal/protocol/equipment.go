package protocol

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EquipmentInformation is the stateful metadata accumulated for a connected
// device: which characteristics it actually supports (in ascending-id
// order, since that order drives bitmap and value encoding), which
// capabilities and commands it advertises, and its last-read values.
type EquipmentInformation struct {
	Equipment            SportsEquipment
	Characteristics       *orderedmap.OrderedMap[uint8, *CharacteristicDefinition]
	SupportedCapabilities []int
	SupportedCommands     []int
	Values                map[string]any
	SerialNumber          string
	FirmwareVersion       string
	ReferenceNumber       uint32
	HasSerialNumber       bool
	HasFirmwareVersion    bool
	HasReferenceNumber    bool
}

// NewEquipmentInformation returns an EquipmentInformation with empty,
// ready-to-use collections.
func NewEquipmentInformation(equipment SportsEquipment) *EquipmentInformation {
	return &EquipmentInformation{
		Equipment:      equipment,
		Characteristics: orderedmap.New[uint8, *CharacteristicDefinition](),
		Values:         make(map[string]any),
	}
}

// HasCharacteristic reports whether the connected equipment exposes the
// given characteristic id.
func (e *EquipmentInformation) HasCharacteristic(id uint8) bool {
	_, ok := e.Characteristics.Get(id)
	return ok
}

// SetCharacteristicsFromIDs rebuilds the ordered characteristics map from a
// set of ids, in ascending order, skipping any id absent from the catalog.
func (e *EquipmentInformation) SetCharacteristicsFromIDs(ids []uint8) {
	sorted := append([]uint8(nil), ids...)
	sortUint8s(sorted)
	e.Characteristics = orderedmap.New[uint8, *CharacteristicDefinition]()
	for _, id := range sorted {
		if def, ok := LookupByID(id); ok {
			e.Characteristics.Set(id, def)
		}
	}
}

func sortUint8s(s []uint8) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// WriteValue pairs a characteristic with a value to encode into a
// WRITE_AND_READ request's write section.
type WriteValue struct {
	Characteristic *CharacteristicDefinition
	Value          any
}
