package protocol

import "strings"

// NormalizeUUID converts a UUID string to the internal matching format:
// lowercase, no dashes. The iFit service/characteristic UUIDs are custom
// 128-bit values, so unlike a generic GATT UUID helper this never needs to
// shorten a Bluetooth SIG base UUID down to its 16-bit form.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
