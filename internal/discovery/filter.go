// Package discovery finds iFit-capable equipment over BLE by matching the
// 4-hex-digit code displayed on the unit's console against a marker the
// equipment embeds in its advertisement's manufacturer data.
package discovery

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IFitDevice is a piece of equipment observed advertising an iFit display
// code.
type IFitDevice struct {
	Address          string
	Name             string
	ManufacturerData []byte
	Code             string
}

// normalizeCode lowercases and validates a 4-hex-digit display code.
func normalizeCode(code string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if len(normalized) != 4 {
		return "", fmt.Errorf("discovery: code must be 4 hex characters, got %q", code)
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("discovery: code must be 4 hex characters, got %q", code)
	}
	return normalized, nil
}

// extractDisplayedCode reads the 4-hex-digit code embedded in an
// advertisement's manufacturer data, if present. The equipment marks it by
// placing 0xDD three bytes from the end, followed by the code's two bytes
// in reversed order.
func extractDisplayedCode(manufacturerData []byte) (string, bool) {
	if len(manufacturerData) < 3 || manufacturerData[len(manufacturerData)-3] != 0xDD {
		return "", false
	}
	tail := manufacturerData[len(manufacturerData)-2:]
	reversed := []byte{tail[1], tail[0]}
	return hex.EncodeToString(reversed), true
}

// codeSuffix returns the exact manufacturer-data suffix ([0xDD, lo, hi])
// that identifies equipment displaying the given code, where lo/hi are the
// code's two bytes in reversed order.
func codeSuffix(code string) ([]byte, error) {
	normalized, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	reversed := normalized[2:4] + normalized[0:2]
	payload, err := hex.DecodeString("dd" + reversed)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid code %q: %w", code, err)
	}
	return payload, nil
}

// matchesCode reports whether manufacturerData carries the marker for code.
func matchesCode(manufacturerData []byte, suffix []byte) bool {
	if len(manufacturerData) < len(suffix) {
		return false
	}
	tail := manufacturerData[len(manufacturerData)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

// isIFitAdvertisement reports whether manufacturerData carries an iFit
// display-code marker at all (any code, not a specific one).
func isIFitAdvertisement(manufacturerData []byte) bool {
	_, ok := extractDisplayedCode(manufacturerData)
	return ok
}
