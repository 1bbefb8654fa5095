// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines the narrow contracts between the bridge core,
// the buttplug protocol client, and the HTTP route layer. The bridge only
// sees these interfaces, which keeps the protocol implementation swappable
// and the manager testable with a simulated client.
package interfaces

import (
	"context"
	"time"
)

// Actuator is a single controllable feature on a device.
type Actuator interface {
	// Index returns the protocol-assigned feature index on the device
	Index() int

	// Type returns the actuator type name (e.g., "Vibrate", "Oscillate")
	Type() string

	// SupportsPosition reports whether a positional command can be
	// dispatched alongside the intensity for this actuator
	SupportsPosition() bool

	// Command sends an intensity command in [0.0, 1.0]
	Command(ctx context.Context, level float64) error

	// CommandWithPosition sends a combined intensity and position command.
	// Returns errors.ErrPositionUnsupported when the actuator cannot take
	// a position; callers fall back to Command.
	CommandWithPosition(ctx context.Context, level, position float64) error
}

// Device is a single device known to the protocol client.
type Device interface {
	// Name returns the device display name
	Name() string

	// Index returns the protocol-assigned device index
	Index() int

	// Actuators returns the device's intensity actuators in protocol order
	Actuators() []Actuator

	// Linear moves the device to a position over the given duration.
	// Returns errors.ErrPositionUnsupported when the device has no
	// positional feature.
	Linear(ctx context.Context, position float64, duration time.Duration) error

	// Stop halts all actuators on the device
	Stop(ctx context.Context) error
}

// ProtocolClient is the connection to the external device-control server.
type ProtocolClient interface {
	// Connect opens the websocket connection and performs the protocol
	// handshake
	Connect(ctx context.Context, url string) error

	// Disconnect closes the connection
	Disconnect(ctx context.Context) error

	// Connected reports whether the connection is live
	Connected() bool

	// StartScanning asks the server to begin device discovery
	StartScanning(ctx context.Context) error

	// StopScanning asks the server to end device discovery
	StopScanning(ctx context.Context) error

	// Devices returns a snapshot of the currently known devices in
	// protocol index order
	Devices() []Device
}
