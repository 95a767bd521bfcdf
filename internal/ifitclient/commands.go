package ifitclient

import (
	"context"
	"fmt"

	"github.com/srg/ifit-ble/internal/protocol"
)

// sendCommand builds, sends, and validates a single command/response
// exchange, returning the parsed header alongside the raw response bytes.
func (c *Client) sendCommand(ctx context.Context, command protocol.Command, payload []byte) (protocol.CommandHeader, []byte, error) {
	equipment := protocol.General
	if info := c.EquipmentInformation(); info != nil {
		equipment = info.Equipment
	}

	request := protocol.BuildRequest(equipment, command, payload)
	response, err := c.sendRequest(ctx, request)
	if err != nil {
		return protocol.CommandHeader{}, nil, err
	}
	header, err := protocol.ParseCommandHeader(response, command)
	if err != nil {
		return protocol.CommandHeader{}, nil, err
	}
	return header, response, nil
}

// executeCommandConfigs runs a batch of initialization command configs
// against the connected equipment, applying each config's parsed value to
// the cached equipment information. A config is skipped (not failed) when
// it requires support the equipment doesn't report.
func (c *Client) executeCommandConfigs(ctx context.Context, configs []protocol.CommandConfig) {
	info := c.EquipmentInformation()
	if info == nil {
		return
	}

	for _, config := range configs {
		if config.CheckSupported && !commandSupported(info, config.Command) {
			c.logger.WithField("command", config.Command).Debug("command not supported, skipping")
			continue
		}

		_, response, err := c.sendCommand(ctx, config.Command, config.Payload)
		if err != nil {
			c.logger.WithError(err).WithField("command", config.Command).Warn("could not get command response")
			continue
		}
		c.applyCommandResponse(info, config, response)
	}
}

func commandSupported(info *protocol.EquipmentInformation, command protocol.Command) bool {
	for _, c := range info.SupportedCommands {
		if protocol.Command(c) == command {
			return true
		}
	}
	return false
}

func (c *Client) applyCommandResponse(info *protocol.EquipmentInformation, config protocol.CommandConfig, response []byte) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()

	switch config.Command {
	case protocol.CmdSupportedCapabilities:
		info.SupportedCapabilities = protocol.ParseFeaturesResponse(response)
		c.logger.WithField("capabilities", info.SupportedCapabilities).Info("supported capabilities")
	case protocol.CmdSupportedCommands:
		info.SupportedCommands = protocol.ParseFeaturesResponse(response)
		c.logger.WithField("commands", info.SupportedCommands).Info("supported commands")
	case protocol.CmdEquipmentReference:
		if value, ok := protocol.ParseEquipmentReferenceResponse(response); ok {
			info.ReferenceNumber = value
			info.HasReferenceNumber = true
			c.logger.WithField("reference_number", value).Info("reference number")
		}
	case protocol.CmdEquipmentFirmware:
		if value, ok := protocol.ParseEquipmentFirmwareResponse(response); ok {
			info.FirmwareVersion = value
			info.HasFirmwareVersion = true
			c.logger.WithField("firmware_version", value).Info("firmware version")
		}
	case protocol.CmdEquipmentSerial:
		if value, ok := protocol.ParseEquipmentSerialResponse(response); ok {
			info.SerialNumber = value
			info.HasSerialNumber = true
			c.logger.WithField("serial_number", value).Info("serial number")
		}
	}
}

// initializeEquipment runs the full discovery sequence: EQUIPMENT_INFORMATION
// must complete first since every later command needs the characteristic
// set and equipment type it establishes.
func (c *Client) initializeEquipment(ctx context.Context) error {
	header, response, err := c.sendCommand(ctx, protocol.CmdEquipmentInformation, nil)
	if err != nil {
		return fmt.Errorf("ifitclient: equipment information: %w", err)
	}

	ids := protocol.ParseEquipmentInformationResponse(response)
	info := protocol.NewEquipmentInformation(header.Equipment)
	info.SetCharacteristicsFromIDs(ids)

	c.infoMu.Lock()
	c.equipmentInfo = info
	c.infoMu.Unlock()

	c.executeCommandConfigs(ctx, protocol.CoreCommands)
	c.executeCommandConfigs(ctx, protocol.MetadataCommands)

	values, err := c.ReadCharacteristics(ctx, "MaxIncline", "MinIncline", "MaxKph", "MinKph", "MaxPulse", "Metric")
	if err != nil {
		c.logger.WithError(err).Warn("could not read min/max characteristics")
	} else {
		c.infoMu.Lock()
		for k, v := range values {
			info.Values[k] = v
		}
		c.infoMu.Unlock()
	}

	if c.activationCode != "" {
		if err := c.enableEquipment(ctx); err != nil {
			return err
		}
	}
	return nil
}
