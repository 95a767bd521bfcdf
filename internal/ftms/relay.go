package ftms

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/groutine"
	"github.com/srg/ifit-ble/internal/ifitclient"
	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport/goble"
)

// minTargetValueLength is the shortest a SET_TARGET_SPEED/SET_TARGET_INCLINE
// control point write can be: opcode byte plus a uint16 target.
const minTargetValueLength = 3

// Config configures a Relay.
type Config struct {
	Name           string
	UpdateInterval time.Duration
}

// DefaultConfig returns the relay defaults: advertise as "iFit FTMS" and
// poll the equipment once a second.
func DefaultConfig() Config {
	return Config{Name: "iFit FTMS", UpdateInterval: time.Second}
}

// Relay bridges one connected iFit equipment client to a standard FTMS GATT
// server, so any FTMS-compatible app can control and monitor it.
type Relay struct {
	client *ifitclient.Client
	config Config
	logger *logrus.Logger

	mu     sync.RWMutex
	ranges Ranges

	featureValue      []byte
	speedRangeValue   []byte
	inclineRangeValue []byte

	controlPointChar *ble.Characteristic
	controlPointCh   chan []byte
	treadmillChar    *ble.Characteristic
	treadmillCh      chan []byte
	statusChar       *ble.Characteristic
	statusCh         chan []byte
}

// New returns a Relay bridging client to an FTMS server advertised per
// config, reporting ranges until the connected equipment's own metadata is
// read.
func New(client *ifitclient.Client, config Config, ranges Ranges, logger *logrus.Logger) *Relay {
	if config.UpdateInterval == 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Relay{
		client:            client,
		config:            config,
		logger:            logger,
		ranges:            ranges,
		featureValue:      EncodeFitnessMachineFeature(),
		speedRangeValue:   EncodeSupportedSpeedRange(ranges),
		inclineRangeValue: EncodeSupportedInclineRange(ranges),
		controlPointCh:    make(chan []byte, 4),
		treadmillCh:       make(chan []byte, 4),
		statusCh:          make(chan []byte, 4),
	}
}

// Run connects to the equipment, stands up the FTMS GATT server, and blocks
// polling and relaying data until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.client.Connect(ctx); err != nil {
		return fmt.Errorf("ftms: connecting to equipment: %w", err)
	}
	defer r.client.Disconnect()

	r.updateRangesFromEquipment()

	dev, err := goble.DeviceFactory()
	if err != nil {
		return fmt.Errorf("ftms: create peripheral device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	service, err := r.buildService()
	if err != nil {
		return err
	}
	if err := ble.AddService(service); err != nil {
		return fmt.Errorf("ftms: add FTMS service: %w", err)
	}

	notifyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	groutine.Go(notifyCtx, "ftms-notify-loop", r.notifyLoop)

	r.logger.WithField("name", r.config.Name).Info("FTMS relay advertising")
	return ble.AdvertiseNameAndServices(ctx, r.config.Name, service.UUID)
}

func (r *Relay) buildService() (*ble.Service, error) {
	service := ble.NewService(ble.MustParse(FTMSServiceUUID))

	featureChar := ble.NewCharacteristic(ble.MustParse(FitnessMachineFeatureUUID))
	featureChar.HandleRead(ble.ReadHandlerFunc(func(_ ble.Request, rsp ble.ResponseWriter) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, _ = rsp.Write(r.featureValue)
	}))
	service.AddCharacteristic(featureChar)

	speedRangeChar := ble.NewCharacteristic(ble.MustParse(SupportedSpeedRangeUUID))
	speedRangeChar.HandleRead(ble.ReadHandlerFunc(func(_ ble.Request, rsp ble.ResponseWriter) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, _ = rsp.Write(r.speedRangeValue)
	}))
	service.AddCharacteristic(speedRangeChar)

	inclineRangeChar := ble.NewCharacteristic(ble.MustParse(SupportedInclineRangeUUID))
	inclineRangeChar.HandleRead(ble.ReadHandlerFunc(func(_ ble.Request, rsp ble.ResponseWriter) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, _ = rsp.Write(r.inclineRangeValue)
	}))
	service.AddCharacteristic(inclineRangeChar)

	r.treadmillChar = ble.NewCharacteristic(ble.MustParse(TreadmillDataUUID))
	r.treadmillChar.HandleNotify(ble.NotifyHandlerFunc(r.relayLoop(r.treadmillCh)))
	service.AddCharacteristic(r.treadmillChar)

	r.statusChar = ble.NewCharacteristic(ble.MustParse(FitnessMachineStatusUUID))
	r.statusChar.HandleNotify(ble.NotifyHandlerFunc(r.relayLoop(r.statusCh)))
	service.AddCharacteristic(r.statusChar)

	r.controlPointChar = ble.NewCharacteristic(ble.MustParse(FitnessMachineControlPointUUID))
	r.controlPointChar.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, _ ble.ResponseWriter) {
		r.handleControlPointWrite(req.Data())
	}))
	r.controlPointChar.HandleIndicate(ble.NotifyHandlerFunc(r.relayLoop(r.controlPointCh)))
	service.AddCharacteristic(r.controlPointChar)

	return service, nil
}

// relayLoop returns a notify handler that forwards whatever arrives on ch to
// the subscribed central, until the subscription's context ends.
func (r *Relay) relayLoop(ch chan []byte) func(ble.Context, ble.Notifier) {
	return func(_ ble.Context, n ble.Notifier) {
		for {
			select {
			case data := <-ch:
				if _, err := n.Write(data); err != nil {
					return
				}
			case <-n.Context().Done():
				return
			}
		}
	}
}

func (r *Relay) handleControlPointWrite(value []byte) {
	r.logger.WithField("value", fmt.Sprintf("%x", value)).Debug("FTMS control point write")
	if len(value) == 0 {
		r.sendControlPointResponse(0x00, ResultInvalidParameter)
		return
	}

	opcode := value[0]
	switch ControlPointOpcode(opcode) {
	case OpRequestControl:
		r.sendControlPointResponse(opcode, ResultSuccess)
	case OpSetTargetSpeed:
		r.handleTargetSpeed(opcode, value)
	case OpSetTargetIncline:
		r.handleTargetIncline(opcode, value)
	case OpStartOrResume, OpStopOrPause:
		r.logger.Warn("start/stop control not supported by the equipment client")
		r.sendControlPointResponse(opcode, ResultOpCodeNotSupported)
	default:
		r.logger.WithField("opcode", opcode).Warn("unsupported control point opcode")
		r.sendControlPointResponse(opcode, ResultOpCodeNotSupported)
	}
}

func (r *Relay) handleTargetSpeed(opcode byte, value []byte) {
	if len(value) < minTargetValueLength {
		r.sendControlPointResponse(opcode, ResultInvalidParameter)
		return
	}
	raw := binary.LittleEndian.Uint16(value[1:3])
	kph := float64(raw) / 100

	r.mu.RLock()
	ranges := r.ranges
	r.mu.RUnlock()
	if kph < ranges.MinKph || kph > ranges.MaxKph {
		r.logger.WithField("kph", kph).Warn("target speed outside supported range")
		r.sendControlPointResponse(opcode, ResultInvalidParameter)
		return
	}

	r.logger.WithField("kph", kph).Info("setting target speed")
	go func() {
		if err := r.client.WriteCharacteristics(context.Background(), map[string]any{"Kph": kph}); err != nil {
			r.logger.WithError(err).Error("set_speed failed")
		}
	}()
	r.sendControlPointResponse(opcode, ResultSuccess)
}

func (r *Relay) handleTargetIncline(opcode byte, value []byte) {
	if len(value) < minTargetValueLength {
		r.sendControlPointResponse(opcode, ResultInvalidParameter)
		return
	}
	raw := int16(binary.LittleEndian.Uint16(value[1:3]))
	incline := float64(raw) / 10

	r.mu.RLock()
	ranges := r.ranges
	r.mu.RUnlock()
	if incline < ranges.MinInclinePercent || incline > ranges.MaxInclinePercent {
		r.logger.WithField("incline", incline).Warn("target incline outside supported range")
		r.sendControlPointResponse(opcode, ResultInvalidParameter)
		return
	}

	r.logger.WithField("incline", incline).Info("setting target incline")
	go func() {
		if err := r.client.WriteCharacteristics(context.Background(), map[string]any{"Incline": incline}); err != nil {
			r.logger.WithError(err).Error("set_incline failed")
		}
	}()
	r.sendControlPointResponse(opcode, ResultSuccess)
}

func (r *Relay) sendControlPointResponse(opcode byte, result ControlPointResult) {
	payload := EncodeControlPointResponse(opcode, result)
	select {
	case r.controlPointCh <- payload:
	default:
		r.logger.Warn("control point indicate channel full, dropping response")
	}
}

// notifyLoop polls the equipment client and pushes Treadmill Data/Status
// updates until ctx is canceled.
func (r *Relay) notifyLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.UpdateInterval)
	defer ticker.Stop()

	for {
		r.updateTreadmillData(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) updateTreadmillData(ctx context.Context) {
	values, err := r.client.ReadCharacteristics(ctx, "CurrentKph", "CurrentIncline", "Distance", "Pulse", "Mode")
	if err != nil {
		r.logger.WithError(err).Warn("failed to read equipment values for FTMS relay")
		return
	}

	data := TreadmillData{}
	if v, ok := values["CurrentKph"].(float64); ok {
		data.SpeedKph = &v
	}
	if v, ok := values["CurrentIncline"].(float64); ok {
		data.InclinePercent = &v
	}
	if v, ok := asFloat64(values["Distance"]); ok {
		data.DistanceM = &v
	}
	if pulse, ok := values["Pulse"].(protocol.PulseReading); ok && pulse.BPM > 0 {
		bpm := int(pulse.BPM)
		data.HeartRateBPM = &bpm
	}

	select {
	case r.treadmillCh <- EncodeTreadmillData(data):
	default:
	}

	if status, ok := statusFromMode(values["Mode"]); ok {
		select {
		case r.statusCh <- status:
		default:
		}
	}
}

// asFloat64 widens any of the equipment client's numeric value shapes
// (float64 from scaled characteristics, uint64 from raw integer ones) to a
// float64 for FTMS encoding.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func statusFromMode(mode any) ([]byte, bool) {
	m, ok := mode.(protocol.Mode)
	if !ok {
		return nil, false
	}
	switch m {
	case protocol.ModeActive:
		return EncodeStatusStarted(), true
	case protocol.ModePause, protocol.ModeSummary, protocol.ModeIdle:
		return EncodeStatusStopped(), true
	default:
		return nil, false
	}
}

func (r *Relay) updateRangesFromEquipment() {
	info := r.client.EquipmentInformation()
	if info == nil {
		return
	}

	ranges := r.ranges
	if v, ok := info.Values["MinKph"].(float64); ok {
		ranges.MinKph = v
	}
	if v, ok := info.Values["MaxKph"].(float64); ok {
		ranges.MaxKph = v
	}
	if v, ok := info.Values["MinIncline"].(float64); ok {
		ranges.MinInclinePercent = v
	}
	if v, ok := info.Values["MaxIncline"].(float64); ok {
		ranges.MaxInclinePercent = v
	}

	r.mu.Lock()
	r.ranges = ranges
	r.speedRangeValue = EncodeSupportedSpeedRange(ranges)
	r.inclineRangeValue = EncodeSupportedInclineRange(ranges)
	r.mu.Unlock()
}
