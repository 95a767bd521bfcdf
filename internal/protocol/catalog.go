// Package protocol implements the iFit BLE application protocol: frame
// construction and parsing, BLE chunking/reassembly, the characteristic
// catalog, and the typed converters that interpret characteristic bytes.
package protocol

// SportsEquipment tags the equipment type carried in every request/response
// frame (offset 4).
type SportsEquipment uint8

const (
	General   SportsEquipment = 2
	Treadmill SportsEquipment = 4
)

// Command identifies an application-level operation.
type Command uint8

const (
	CmdWriteAndRead           Command = 0x02
	CmdCalibrate              Command = 0x06
	CmdSupportedCapabilities  Command = 0x80
	CmdEquipmentInformation   Command = 0x81
	CmdEquipmentReference     Command = 0x82
	CmdEquipmentFirmware      Command = 0x84
	CmdSupportedCommands      Command = 0x88
	CmdEnable                 Command = 0x90
	CmdEquipmentSerial        Command = 0x95
)

func (c Command) String() string {
	switch c {
	case CmdWriteAndRead:
		return "WRITE_AND_READ"
	case CmdCalibrate:
		return "CALIBRATE"
	case CmdSupportedCapabilities:
		return "SUPPORTED_CAPABILITIES"
	case CmdEquipmentInformation:
		return "EQUIPMENT_INFORMATION"
	case CmdEquipmentReference:
		return "EQUIPMENT_REFERENCE"
	case CmdEquipmentFirmware:
		return "EQUIPMENT_FIRMWARE"
	case CmdSupportedCommands:
		return "SUPPORTED_COMMANDS"
	case CmdEnable:
		return "ENABLE"
	case CmdEquipmentSerial:
		return "EQUIPMENT_SERIAL"
	default:
		return "UNKNOWN"
	}
}

// Mode is the equipment's reported operating mode.
type Mode uint8

const (
	ModeUnknown           Mode = 0
	ModeIdle              Mode = 1
	ModeActive            Mode = 2
	ModePause             Mode = 3
	ModeSummary           Mode = 4
	ModeSettings          Mode = 7
	ModeMissingSafetyKey  Mode = 8
)

// PulseSource identifies where a heart-rate reading came from.
type PulseSource uint8

const (
	PulseSourceNo       PulseSource = 0
	PulseSourceHand     PulseSource = 1
	PulseSourceUnknown  PulseSource = 2
	PulseSourceUnknown2 PulseSource = 3
	PulseSourceBLE      PulseSource = 4
)

// Chunk index sentinels used in BLE framing (§4.1.3/§4.1.4).
const (
	ChunkHeader byte = 0xFE
	ChunkEOF    byte = 0xFF
)

// ResponseOK is the status byte (offset 7) meaning the response succeeded.
const ResponseOK byte = 0x02

// MaxBytesPerMessage is the maximum number of request bytes packed into a
// single BLE data chunk (§4.1.3).
const MaxBytesPerMessage = 18

// CharacteristicDefinition is a named, typed property of the equipment with
// a numeric id (0-255), orthogonal to a BLE GATT characteristic.
type CharacteristicDefinition struct {
	Name      string
	ID        uint8
	ReadOnly  bool
	Converter *Converter // nil means the shape is unsupported for read/write
}

// CapabilityDefinition maps a high-level capability id to the characteristic
// id it gates.
type CapabilityDefinition struct {
	ID              uint8
	CharacteristicID uint8
}

// BLE GATT UUIDs for the iFit service (§6), normalized lowercase/no-dash.
const (
	ServiceUUID = "000015331412efde1523785feabcd123"
	RXUUID      = "000015351412efde1523785feabcd123" // device -> host, notify
	TXUUID      = "000015341412efde1523785feabcd123" // host -> device, write
)

// Characteristics is the static catalog, keyed by name.
var Characteristics = map[string]*CharacteristicDefinition{
	"Kph":             {"Kph", 0, false, ConverterDouble},
	"Incline":         {"Incline", 1, false, ConverterDouble},
	"CurrentDistance": {"CurrentDistance", 4, true, ConverterFourBytesInt},
	"Distance":        {"Distance", 6, true, ConverterFourBytesInt},
	"Volume":          {"Volume", 9, false, ConverterOneByteInt},
	"Pulse":           {"Pulse", 10, false, ConverterPulse},
	"UpTime":          {"UpTime", 11, true, ConverterFourBytesInt},
	"Mode":            {"Mode", 12, false, ConverterMode},
	"Calories":        {"Calories", 13, true, ConverterCalories},
	"CurrentKph":      {"CurrentKph", 16, true, ConverterDouble},
	"CurrentIncline":  {"CurrentIncline", 17, true, ConverterDouble},
	"CurrentTime":     {"CurrentTime", 20, true, ConverterFourBytesInt},
	"CurrentCalories": {"CurrentCalories", 21, true, ConverterCalories},
	"MaxIncline":      {"MaxIncline", 27, true, ConverterDouble},
	"MinIncline":      {"MinIncline", 28, true, ConverterDouble},
	"MaxKph":          {"MaxKph", 30, true, ConverterDouble},
	"MinKph":          {"MinKph", 31, true, ConverterDouble},
	"Metric":          {"Metric", 36, false, ConverterBoolean},
	"MaxPulse":        {"MaxPulse", 49, true, ConverterOneByteInt},
	"AverageIncline":  {"AverageIncline", 52, true, ConverterDouble},
	"TotalTime":       {"TotalTime", 70, true, ConverterFourBytesInt},
	"PausedTime":      {"PausedTime", 103, true, ConverterFourBytesInt},

	// Reserved/undocumented ids carried from the original implementation so a
	// device reporting these bits in its EQUIPMENT_INFORMATION bitmap doesn't
	// silently lose them.
	"X1": {"X1", 34, false, ConverterTwoBytesInt},
	"X2": {"X2", 35, false, ConverterTwoBytesInt},
	"X3": {"X3", 43, false, ConverterDouble},
	"X4": {"X4", 46, false, ConverterTwoBytesInt},
	"X5": {"X5", 69, false, ConverterFourBytesInt},
	"X6": {"X6", 71, false, ConverterTwoBytesInt},
	"X7": {"X7", 100, false, ConverterOneByteInt},
}

// CharacteristicsByID is the same catalog keyed by numeric id.
var CharacteristicsByID = func() map[uint8]*CharacteristicDefinition {
	m := make(map[uint8]*CharacteristicDefinition, len(Characteristics))
	for _, def := range Characteristics {
		m[def.ID] = def
	}
	return m
}()

// Capabilities maps a capability name to its definition.
var Capabilities = map[string]CapabilityDefinition{
	"Speed":    {65, 0},
	"Incline":  {66, 1},
	"Pulse":    {70, 10},
	"Key":      {71, 7},
	"Distance": {77, 6},
	"Time":     {78, 11},
}

// LookupByName returns the characteristic definition for a case-sensitive
// name, or (nil, false) if unknown.
func LookupByName(name string) (*CharacteristicDefinition, bool) {
	def, ok := Characteristics[name]
	return def, ok
}

// LookupByID returns the characteristic definition for a numeric id, or
// (nil, false) if unknown.
func LookupByID(id uint8) (*CharacteristicDefinition, bool) {
	def, ok := CharacteristicsByID[id]
	return def, ok
}
