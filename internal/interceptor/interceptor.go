// Package interceptor implements a man-in-the-middle BLE peripheral that
// impersonates a piece of iFit equipment to the manufacturer's app while
// proxying every request through to the real equipment, capturing the
// activation code the app sends during ENABLE.
package interceptor

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport"
)

// Message framing offsets, named the way the reference interceptor names
// them. The first data chunk of a request (index 0) carries the device and
// command bytes at fixed offsets because it begins with the request's own
// fixed-layout header (see protocol.BuildRequest).
const (
	firstPartIndex           = 0x00
	commandOffset            = 8
	deviceOffset             = 6
	firstPartContentStart    = 9
	continuationContentStart = 2
	minFinalMessageLength    = 20
)

// Config configures the peripheral identity an Interceptor advertises.
type Config struct {
	LocalName        string
	ManufacturerData []byte
}

// Interceptor proxies BLE traffic between the manufacturer's app (acting as
// the central, connected to our Peripheral) and the real equipment (which
// we reach as a Central through an EquipmentLink).
type Interceptor struct {
	peripheral transport.Peripheral
	link       transport.EquipmentLink
	logger     *logrus.Logger
	ctx        context.Context

	mu         sync.Mutex
	reqBuffer  []byte
	reqCommand protocol.Command
	reqDevice  protocol.SportsEquipment
	commandSet bool

	codeMu       sync.Mutex
	capturedCode string
	codeCh       chan string
}

// New returns an Interceptor wired between peripheral (facing the app) and
// link (the real equipment).
func New(peripheral transport.Peripheral, link transport.EquipmentLink, logger *logrus.Logger) *Interceptor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Interceptor{
		peripheral: peripheral,
		link:       link,
		logger:     logger,
		reqDevice:  protocol.General,
		codeCh:     make(chan string, 1),
	}
}

// Code returns a channel that receives the captured activation code exactly
// once, the first time ENABLE is observed.
func (in *Interceptor) Code() <-chan string {
	return in.codeCh
}

// Run wires up both proxy directions and advertises as cfg describes,
// blocking until ctx is canceled or advertising fails.
func (in *Interceptor) Run(ctx context.Context, cfg Config) error {
	in.ctx = ctx
	in.peripheral.HandleTXWrite(in.handleAppWrite)
	if err := in.link.SubscribeRX(in.handleEquipmentNotify); err != nil {
		return err
	}
	return in.peripheral.Advertise(ctx, transport.AdvertiseOptions{
		LocalName:        cfg.LocalName,
		ManufacturerData: cfg.ManufacturerData,
	})
}

// handleAppWrite reassembles one BLE write fragment from the app and, once
// a full request has arrived, forwards it to the real equipment.
func (in *Interceptor) handleAppWrite(data []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(data) == 0 {
		return
	}
	in.processFragment(data)
	if in.isCompleteMessage(data) {
		in.processCompleteRequest()
	}
}

func (in *Interceptor) processFragment(buffer []byte) {
	index := buffer[0]

	switch {
	case index == protocol.ChunkHeader:
		in.reqBuffer = nil
		in.logger.WithField("length", buffer[2]).Debug("received header, reassembling app request")

	case index == firstPartIndex:
		if len(buffer) > commandOffset {
			in.reqCommand = protocol.Command(buffer[commandOffset])
			in.reqDevice = protocol.SportsEquipment(buffer[deviceOffset])
			in.commandSet = true
		}
		contentLength := int(buffer[1])
		end := firstPartContentStart + contentLength
		if end <= len(buffer) {
			in.reqBuffer = append(in.reqBuffer, buffer[firstPartContentStart:end]...)
		}

	case index == protocol.ChunkEOF:
		if !in.commandSet && len(buffer) > commandOffset {
			in.reqCommand = protocol.Command(buffer[commandOffset])
			in.commandSet = true
		}

	default:
		if in.reqBuffer == nil {
			in.logger.Warn("continuation message without header, discarding")
			return
		}
		contentLength := int(buffer[1])
		end := continuationContentStart + contentLength
		if end <= len(buffer) {
			in.reqBuffer = append(in.reqBuffer, buffer[continuationContentStart:end]...)
		}
	}
}

func (in *Interceptor) isCompleteMessage(buffer []byte) bool {
	index := buffer[0]
	return index == protocol.ChunkEOF || (index == firstPartIndex && len(buffer) < minFinalMessageLength)
}

func (in *Interceptor) processCompleteRequest() {
	defer in.resetRequestState()

	if !in.commandSet {
		in.logger.Warn("complete request without command, discarding")
		return
	}

	payload := append([]byte(nil), in.reqBuffer...)
	command := in.reqCommand
	device := in.reqDevice

	in.logger.WithFields(logrus.Fields{
		"command": command,
		"device":  device,
		"bytes":   len(payload),
	}).Info("processing complete app request")

	if command == protocol.CmdEnable {
		in.captureCode(hex.EncodeToString(payload))
	}

	request := protocol.BuildRequest(device, command, payload)
	in.forwardToEquipment(request)
}

func (in *Interceptor) resetRequestState() {
	in.reqBuffer = nil
	in.commandSet = false
	in.reqCommand = 0
	in.reqDevice = protocol.General
}

func (in *Interceptor) forwardToEquipment(request []byte) {
	for _, chunk := range protocol.BuildWriteMessages(request) {
		if err := in.link.WriteTX(in.ctx, chunk, false); err != nil {
			in.logger.WithError(err).Error("failed to forward request to equipment")
			return
		}
	}
}

// handleEquipmentNotify passes a real equipment response straight through
// to the app, unmodified.
func (in *Interceptor) handleEquipmentNotify(data []byte) {
	if err := in.peripheral.NotifyRX(data); err != nil {
		in.logger.WithError(err).Warn("failed to relay notification to app")
	}
}

func (in *Interceptor) captureCode(code string) {
	in.codeMu.Lock()
	defer in.codeMu.Unlock()
	if in.capturedCode != "" {
		return
	}
	in.capturedCode = code
	in.logger.WithField("code", code).Info("captured activation code")
	select {
	case in.codeCh <- code:
	default:
	}
}

// CapturedCode returns the activation code captured so far, if any.
func (in *Interceptor) CapturedCode() (string, bool) {
	in.codeMu.Lock()
	defer in.codeMu.Unlock()
	return in.capturedCode, in.capturedCode != ""
}
