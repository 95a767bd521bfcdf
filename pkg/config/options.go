package config

import (
	"time"

	"github.com/mcuadros/go-defaults"

	"github.com/srg/ifit-ble/internal/discovery"
	"github.com/srg/ifit-ble/internal/ftms"
	"github.com/srg/ifit-ble/internal/ifitclient"
)

// ConnectOptions configures a direct connection to one piece of iFit
// equipment, the way cmd/ifit's connect-family subcommands (info, read,
// write, watch, calibrate, try-codes) take it from flags.
type ConnectOptions struct {
	// Address is the BLE peripheral address to dial. Empty means scan and
	// connect to the first matching advertisement.
	Address string `default:""`

	// ActivationCode is an 8-byte hex string. Without it the client runs
	// monitor-only.
	ActivationCode string `default:""`

	ConnectTimeout  time.Duration `default:"30s"`
	ResponseTimeout time.Duration `default:"10s"`
}

// NewConnectOptions returns a ConnectOptions with its defaults applied.
func NewConnectOptions() ConnectOptions {
	opts := ConnectOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// ClientOptions translates a ConnectOptions into the ifitclient.Options the
// client package actually takes. The caller fills in Logger separately,
// since that's a concern of the CLI's log setup, not of connect options.
func (o ConnectOptions) ClientOptions() ifitclient.Options {
	return ifitclient.Options{
		ActivationCode:  o.ActivationCode,
		ResponseTimeout: o.ResponseTimeout,
	}
}

// ScanOptions configures a discovery scan, the way cmd/ifit's scan
// subcommand takes it from flags.
type ScanOptions struct {
	Duration time.Duration `default:"10s"`

	// Code restricts matches to equipment displaying this exact 4-hex-digit
	// code; empty matches any equipment advertising an iFit display code.
	Code string `default:""`
}

// NewScanOptions returns a ScanOptions with its defaults applied.
func NewScanOptions() ScanOptions {
	opts := ScanOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// DiscoveryOptions translates a ScanOptions into discovery.ScanOptions.
func (o ScanOptions) DiscoveryOptions() discovery.ScanOptions {
	return discovery.ScanOptions{Duration: o.Duration, Code: o.Code}
}

// FtmsConfig configures the FTMS relay, the way cmd/ifit's relay subcommand
// takes it from flags.
type FtmsConfig struct {
	Name           string        `default:"iFit FTMS"`
	UpdateInterval time.Duration `default:"1s"`

	SpeedIncrement   float64 `default:"0.1"`
	InclineIncrement float64 `default:"0.5"`
}

// NewFtmsConfig returns an FtmsConfig with its defaults applied.
func NewFtmsConfig() FtmsConfig {
	cfg := FtmsConfig{}
	defaults.SetDefaults(&cfg)
	return cfg
}

// RelayConfig translates an FtmsConfig into the ftms.Config the relay
// package actually takes.
func (c FtmsConfig) RelayConfig() ftms.Config {
	return ftms.Config{Name: c.Name, UpdateInterval: c.UpdateInterval}
}

// RelayRanges seeds ftms.Ranges with this config's increments; the bounds
// themselves come from the connected equipment's reported capabilities.
func (c FtmsConfig) RelayRanges() ftms.Ranges {
	return ftms.Ranges{SpeedIncrement: c.SpeedIncrement, InclineIncrement: c.InclineIncrement}
}
