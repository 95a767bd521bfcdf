// Package codestore persists the CSV-backed activation code data the
// toolkit works with: the candidate-code catalog tried during discovery,
// and the append-only record of codes confirmed to work for a given piece
// of equipment.
package codestore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// CandidateCode is one row of the activation-code catalog: a code to try,
// and the equipment model it's associated with.
type CandidateCode struct {
	Code  string
	Model string
}

// LoadCandidateCodes reads a two-column (code, model) CSV catalog of
// activation codes to try during discovery. A model cell may carry
// alternate names separated by ';'; only the first is kept.
func LoadCandidateCodes(path string) ([]CandidateCode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codestore: open candidate codes: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("codestore: parse candidate codes: %w", err)
	}

	codes := make([]CandidateCode, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		code := strings.TrimSpace(row[0])
		model := strings.SplitN(strings.TrimSpace(row[1]), ";", 2)[0]
		codes = append(codes, CandidateCode{Code: code, Model: model})
	}
	return codes, nil
}

// Entry is a confirmed (ble_code, address, activation_code) mapping: the
// display code an equipment unit advertised, the BLE address it was found
// at, and the activation code that successfully enabled it.
type Entry struct {
	BLECode        string
	Address        string
	ActivationCode string
}

// Store is an append-only CSV record of confirmed activation codes, keyed
// by display code and address so future sessions can skip discovery.
type Store struct {
	path    string
	logger  *logrus.Logger
	mu      sync.Mutex
	entries []Entry
}

// Open loads an existing store from path, or starts an empty one if the
// file doesn't exist yet.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{path: path, logger: logger}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("codestore: open store: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("codestore: parse store: %w", err)
	}
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		s.entries = append(s.entries, Entry{BLECode: row[0], Address: row[1], ActivationCode: row[2]})
	}
	s.logger.WithField("entries", len(s.entries)).Debug("loaded codestore")
	return s, nil
}

// Lookup returns the activation code previously confirmed for the given
// display code and address, if any.
func (s *Store) Lookup(bleCode, address string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.BLECode == bleCode && e.Address == address {
			return e.ActivationCode, true
		}
	}
	return "", false
}

// All returns a copy of every stored entry.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Append records a new confirmed mapping, both in memory and on disk.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("codestore: open store for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{entry.BLECode, entry.Address, entry.ActivationCode}); err != nil {
		return fmt.Errorf("codestore: write entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("codestore: flush entry: %w", err)
	}

	s.entries = append(s.entries, entry)
	s.logger.WithFields(logrus.Fields{"ble_code": entry.BLECode, "address": entry.Address}).Info("recorded activation code")
	return nil
}
