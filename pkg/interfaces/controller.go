// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
	"time"
)

// DeviceInfo is a point-in-time projection of a known device. It is derived
// on demand from the protocol client's live device list and never persisted.
type DeviceInfo struct {
	ID            int      `json:"id"`             // protocol-assigned device index
	Name          string   `json:"name"`           // display name
	Index         int      `json:"index"`          // ordinal within the current device list
	ActuatorCount int      `json:"actuator_count"` // number of intensity actuators
	ActuatorTypes []string `json:"actuator_types"` // ordered actuator type names
}

// CommandResult is the value record returned by device commands.
type CommandResult struct {
	Success  bool     `json:"success"`
	Device   string   `json:"device"`
	Speed    float64  `json:"speed,omitempty"`
	Position *float64 `json:"position,omitempty"`
	Duration float64  `json:"duration,omitempty"` // seconds
	Status   string   `json:"status,omitempty"`
}

// DeviceController is the bridge surface consumed by the HTTP route layer.
type DeviceController interface {
	// Initialize connects to the Intiface server and performs an initial
	// scan. No-op when already initialized and connected. Fails with a
	// RateLimitError inside the retry backoff window.
	Initialize(ctx context.Context) error

	// ScanDevices discovers devices, replaces the device list wholesale
	// and resets the active device index to 0
	ScanDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetAllDevices returns projections of all known devices
	GetAllDevices() []DeviceInfo

	// GetActiveDevice returns the active device projection, or nil when
	// no devices are known
	GetActiveDevice() *DeviceInfo

	// SetActiveDevice selects a device by list index
	SetActiveDevice(index int) (DeviceInfo, error)

	// Vibrate dispatches an intensity command to the active device's
	// first actuator. A non-zero duration schedules an independent
	// deferred stop.
	Vibrate(ctx context.Context, speed float64, position *float64, duration time.Duration) (CommandResult, error)

	// Linear moves the active device to a position over the given duration
	Linear(ctx context.Context, position float64, duration time.Duration) (CommandResult, error)

	// Stop halts all actuators on the active device
	Stop(ctx context.Context) (CommandResult, error)

	// Shutdown stops devices and disconnects best-effort, then
	// unconditionally resets local state
	Shutdown(ctx context.Context)

	// Status fields
	IsConnected() bool
	HasDevices() bool
	Initialized() bool
	DeviceCount() int
	ActiveIndex() int
	ClientState() string
	ServerURL() string
}
