// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package buttplug

import (
	"context"
	"time"

	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
	"github.com/soothill/haptic-bridge/pkg/interfaces"
)

// positionMoveDuration is how long a combined intensity+position dispatch
// asks a positional feature to take to reach its target.
const positionMoveDuration = 500 * time.Millisecond

// Device is a device known to the Intiface server.
type Device struct {
	client    *Client
	name      string
	index     uint32
	actuators []*Actuator        // intensity features, protocol order
	linear    []featureAttribute // positional features, protocol order
}

func newDevice(c *Client, entry deviceEntry) *Device {
	d := &Device{
		client: c,
		name:   entry.DeviceName,
		index:  entry.DeviceIndex,
		linear: entry.DeviceMessages.LinearCmd,
	}
	for i, attr := range entry.DeviceMessages.ScalarCmd {
		actuatorType := attr.ActuatorType
		if actuatorType == "" {
			actuatorType = "Vibrate"
		}
		d.actuators = append(d.actuators, &Actuator{
			device:       d,
			featureIndex: uint32(i),
			actuatorType: actuatorType,
			stepCount:    attr.StepCount,
		})
	}
	return d
}

// Name returns the device display name.
func (d *Device) Name() string {
	return d.name
}

// Index returns the protocol-assigned device index.
func (d *Device) Index() int {
	return int(d.index)
}

// Actuators returns the device's intensity actuators in protocol order.
func (d *Device) Actuators() []interfaces.Actuator {
	actuators := make([]interfaces.Actuator, len(d.actuators))
	for i, a := range d.actuators {
		actuators[i] = a
	}
	return actuators
}

// Linear moves the device's first positional feature to the given position
// over the given duration.
func (d *Device) Linear(ctx context.Context, position float64, duration time.Duration) error {
	if len(d.linear) == 0 {
		return apperrors.ErrPositionUnsupported
	}
	_, err := d.client.request(ctx, &envelope{LinearCmd: &linearCmd{
		DeviceIndex: d.index,
		Vectors: []vectorEntry{{
			Index:    0,
			Duration: uint32(duration.Milliseconds()),
			Position: position,
		}},
	}})
	return err
}

// Stop halts all actuators on the device.
func (d *Device) Stop(ctx context.Context) error {
	_, err := d.client.request(ctx, &envelope{StopDeviceCmd: &stopDeviceCmd{
		DeviceIndex: d.index,
	}})
	return err
}

// Actuator is a single intensity feature on a device.
type Actuator struct {
	device       *Device
	featureIndex uint32
	actuatorType string
	stepCount    uint32
}

// Index returns the feature index on the device.
func (a *Actuator) Index() int {
	return int(a.featureIndex)
}

// Type returns the actuator type name (e.g., "Vibrate").
func (a *Actuator) Type() string {
	return a.actuatorType
}

// SupportsPosition reports whether the owning device has a positional
// feature, which is queryable from the device's advertised messages rather
// than probed by trial dispatch.
func (a *Actuator) SupportsPosition() bool {
	return len(a.device.linear) > 0
}

// Command sends an intensity command in [0.0, 1.0].
func (a *Actuator) Command(ctx context.Context, level float64) error {
	_, err := a.device.client.request(ctx, &envelope{ScalarCmd: &scalarCmd{
		DeviceIndex: a.device.index,
		Scalars: []scalarEntry{{
			Index:        a.featureIndex,
			Scalar:       level,
			ActuatorType: a.actuatorType,
		}},
	}})
	return err
}

// CommandWithPosition sends the intensity command and a positional move in
// one dispatch. Returns errors.ErrPositionUnsupported when the device has no
// positional feature.
func (a *Actuator) CommandWithPosition(ctx context.Context, level, position float64) error {
	if !a.SupportsPosition() {
		return apperrors.ErrPositionUnsupported
	}
	if err := a.Command(ctx, level); err != nil {
		return err
	}
	return a.device.Linear(ctx, position, positionMoveDuration)
}
