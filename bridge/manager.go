// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package bridge owns the lifecycle of the connection to the Intiface server,
// the set of currently known devices, and the active device selection.
//
// The Manager is the only stateful component in the bridge. It serializes
// state mutation behind a single mutex, enforces a retry backoff on
// connection attempts, and dispatches clamped commands against the active
// device. Network dispatch happens outside the lock so a slow command does
// not block status reads.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soothill/haptic-bridge/buttplug"
	"github.com/soothill/haptic-bridge/config"
	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
	"github.com/soothill/haptic-bridge/pkg/interfaces"
	"github.com/soothill/haptic-bridge/pkg/logger"
	"github.com/soothill/haptic-bridge/pkg/metrics"
)

// commandTimeout bounds deferred and shutdown-time dispatches that run
// without a caller context.
const commandTimeout = 5 * time.Second

// Manager owns the single connection to the Intiface server and the current
// device selection. Construct with New and share one instance per process.
type Manager struct {
	serverURL      string
	clientName     string
	scanWindow     time.Duration
	connectTimeout time.Duration
	retryDelay     time.Duration

	newClient func() interfaces.ProtocolClient
	now       func() time.Time

	mu          sync.Mutex
	client      interfaces.ProtocolClient
	devices     []interfaces.Device
	activeIndex int
	initialized bool
	lastAttempt time.Time
}

// New creates a Manager from configuration. The returned manager is not yet
// connected; call Initialize.
func New(cfg *config.Config) *Manager {
	clientName := cfg.Intiface.ClientName
	return &Manager{
		serverURL:      cfg.Intiface.URL,
		clientName:     clientName,
		scanWindow:     cfg.Intiface.ScanTimeout,
		connectTimeout: cfg.Intiface.ConnectTimeout,
		retryDelay:     cfg.Intiface.RetryDelay,
		newClient: func() interfaces.ProtocolClient {
			return buttplug.NewClient(clientName)
		},
		now: time.Now,
	}
}

// SetServerURL overrides the websocket URL, used when the server address
// comes from mDNS discovery rather than configuration.
func (m *Manager) SetServerURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverURL = url
}

// Initialize connects to the Intiface server and performs an initial scan.
//
// Calling Initialize on an already initialized, connected manager is a
// no-op. A call within the retry backoff window of a prior attempt fails
// with a RateLimitError without contacting the server; this prevents
// hammering a remote server during outages.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info().Msg("Initialize called")

	if m.initialized && m.client != nil && m.client.Connected() {
		logger.Info().Msg("Already initialized and connected")
		return nil
	}

	now := m.now()
	if !m.lastAttempt.IsZero() {
		if elapsed := now.Sub(m.lastAttempt); elapsed < m.retryDelay {
			logger.Info().Dur("retry_delay", m.retryDelay).Msg("Connection attempt too recent")
			return apperrors.NewRateLimitError(m.retryDelay - elapsed)
		}
	}
	m.lastAttempt = now

	// A stale disconnected handle is discarded before retrying.
	if m.client != nil && !m.client.Connected() {
		logger.Info().Msg("Client exists but disconnected, cleaning up")
		m.client = nil
		m.devices = nil
		m.initialized = false
	}

	metrics.ConnectAttempts.Inc()
	client := m.newClient()

	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	logger.Info().Str("url", m.serverURL).Msg("Connecting to Intiface")
	if err := client.Connect(connectCtx, m.serverURL); err != nil {
		metrics.ConnectFailures.Inc()
		logger.Error().Err(err).Str("url", m.serverURL).Msg("Failed to connect to Intiface")
		return apperrors.NewConnectionError("connect", m.serverURL, err)
	}
	m.client = client

	if _, err := m.scanLocked(ctx); err != nil {
		return err
	}

	m.initialized = true
	return nil
}

// ScanDevices discovers devices, replaces the device list wholesale and
// resets the active device index to 0 regardless of its prior value.
func (m *Manager) ScanDevices(ctx context.Context) ([]interfaces.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanLocked(ctx)
}

// scanLocked signals start discovery, waits the scan window, signals stop
// discovery and samples the client's device list once. The fixed-duration
// wait means devices appearing after the window are invisible until the
// next scan; sessions are short-lived and device counts small, so the
// trade-off is acceptable.
func (m *Manager) scanLocked(ctx context.Context) ([]interfaces.DeviceInfo, error) {
	if m.client == nil {
		return nil, apperrors.NewConnectionError("scan", m.serverURL, apperrors.ErrNoClient)
	}
	if !m.client.Connected() {
		return nil, apperrors.NewConnectionError("scan", m.serverURL, apperrors.ErrNotConnected)
	}

	logger.Info().Dur("scan_window", m.scanWindow).Msg("Scanning for devices")
	metrics.ScansTotal.Inc()
	start := m.now()

	if err := m.client.StartScanning(ctx); err != nil {
		return nil, apperrors.NewConnectionError("start scanning", m.serverURL, err)
	}

	select {
	case <-ctx.Done():
		_ = m.client.StopScanning(context.Background())
		return nil, apperrors.NewConnectionError("scan", m.serverURL, ctx.Err())
	case <-time.After(m.scanWindow):
	}

	if err := m.client.StopScanning(ctx); err != nil {
		return nil, apperrors.NewConnectionError("stop scanning", m.serverURL, err)
	}

	m.devices = m.client.Devices()
	m.activeIndex = 0

	metrics.ScanDuration.Observe(m.now().Sub(start).Seconds())
	metrics.DevicesDiscovered.Set(float64(len(m.devices)))
	logger.Info().Int("count", len(m.devices)).Msg("Device scan complete")

	return m.allDevicesLocked(), nil
}

// deviceInfoLocked projects the device at list index i.
func (m *Manager) deviceInfoLocked(i int) interfaces.DeviceInfo {
	device := m.devices[i]
	actuators := device.Actuators()
	types := make([]string, len(actuators))
	for j, a := range actuators {
		types[j] = a.Type()
	}
	return interfaces.DeviceInfo{
		ID:            device.Index(),
		Name:          device.Name(),
		Index:         i,
		ActuatorCount: len(actuators),
		ActuatorTypes: types,
	}
}

func (m *Manager) allDevicesLocked() []interfaces.DeviceInfo {
	infos := make([]interfaces.DeviceInfo, len(m.devices))
	for i := range m.devices {
		infos[i] = m.deviceInfoLocked(i)
	}
	return infos
}

// GetAllDevices returns projections of all known devices.
func (m *Manager) GetAllDevices() []interfaces.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allDevicesLocked()
}

// GetActiveDevice returns the active device projection, or nil when no
// devices are known.
func (m *Manager) GetActiveDevice() *interfaces.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil
	}
	info := m.deviceInfoLocked(m.activeIndex)
	return &info
}

// SetActiveDevice selects a device by list index. An out-of-range index is
// an error, not clamped.
func (m *Manager) SetActiveDevice(index int) (interfaces.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.devices) {
		return interfaces.DeviceInfo{}, apperrors.NewNotFoundError(index)
	}
	m.activeIndex = index
	return m.deviceInfoLocked(index), nil
}

// activeDevice snapshots the active device without holding the lock across
// dispatch.
func (m *Manager) activeDevice() interfaces.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil
	}
	return m.devices[m.activeIndex]
}

// Vibrate dispatches an intensity command to the active device's first
// actuator. Speed and position are clamped into [0.0, 1.0] as a second line
// of defense behind the HTTP-layer validation. When the actuator reports
// positional capability the combined command is used; if the positional
// send comes back unsupported the dispatch falls back to intensity only.
//
// A non-zero duration schedules an independent deferred stop for the same
// actuator. The deferred stop is fire-and-forget: it is not tracked, is not
// cancelled by later commands or scans, and its failure is logged but never
// surfaced.
func (m *Manager) Vibrate(ctx context.Context, speed float64, position *float64, duration time.Duration) (interfaces.CommandResult, error) {
	device := m.activeDevice()
	if device == nil {
		return interfaces.CommandResult{}, apperrors.NewNoActiveDeviceError()
	}
	actuators := device.Actuators()
	if len(actuators) == 0 {
		return interfaces.CommandResult{}, apperrors.NewNoActiveDeviceError()
	}

	speed = clamp(speed)
	if position != nil {
		clamped := clamp(*position)
		position = &clamped
	}

	logger.Info().
		Str("device_name", device.Name()).
		Float64("speed", speed).
		Msg("Vibrating device")

	actuator := actuators[0]
	var err error
	if position != nil && actuator.SupportsPosition() {
		err = actuator.CommandWithPosition(ctx, speed, *position)
		if errors.Is(err, apperrors.ErrPositionUnsupported) {
			err = actuator.Command(ctx, speed)
		}
	} else {
		err = actuator.Command(ctx, speed)
	}
	if err != nil {
		metrics.CommandErrors.WithLabelValues("vibrate").Inc()
		logger.Error().Err(err).Msg("Error sending vibrate command")
		return interfaces.CommandResult{}, apperrors.NewCommandError("vibrate", device.Name(), err)
	}
	metrics.CommandsTotal.WithLabelValues("vibrate").Inc()

	if duration > 0 {
		go m.stopAfterDelay(actuator, duration)
	}

	result := interfaces.CommandResult{
		Success: true,
		Device:  device.Name(),
		Speed:   speed,
	}
	if position != nil {
		result.Position = position
	}
	if duration > 0 {
		result.Duration = duration.Seconds()
	}
	return result, nil
}

// stopAfterDelay sends a zero-intensity command to an actuator after the
// given duration. It holds only the actuator handle it was given; device
// list replacement does not redirect or cancel it.
func (m *Manager) stopAfterDelay(actuator interfaces.Actuator, duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	<-timer.C

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := actuator.Command(ctx, 0); err != nil {
		metrics.DeferredStopErrors.Inc()
		logger.Error().Err(err).Msg("Error stopping vibration after time limit")
		return
	}
	metrics.DeferredStops.Inc()
	logger.Info().Dur("duration", duration).Msg("Stopped vibration after time limit")
}

// Linear moves the active device to a clamped position over the given
// duration.
func (m *Manager) Linear(ctx context.Context, position float64, duration time.Duration) (interfaces.CommandResult, error) {
	device := m.activeDevice()
	if device == nil {
		return interfaces.CommandResult{}, apperrors.NewNoActiveDeviceError()
	}

	position = clamp(position)

	if err := device.Linear(ctx, position, duration); err != nil {
		metrics.CommandErrors.WithLabelValues("linear").Inc()
		logger.Error().Err(err).Msg("Error sending linear command")
		return interfaces.CommandResult{}, apperrors.NewCommandError("linear", device.Name(), err)
	}
	metrics.CommandsTotal.WithLabelValues("linear").Inc()

	return interfaces.CommandResult{
		Success:  true,
		Device:   device.Name(),
		Position: &position,
		Duration: duration.Seconds(),
	}, nil
}

// Stop halts all actuators on the active device. This is the device-level
// stop primitive, distinct from the per-actuator zero command the deferred
// timer sends.
func (m *Manager) Stop(ctx context.Context) (interfaces.CommandResult, error) {
	device := m.activeDevice()
	if device == nil {
		return interfaces.CommandResult{}, apperrors.NewNoActiveDeviceError()
	}

	if err := device.Stop(ctx); err != nil {
		metrics.CommandErrors.WithLabelValues("stop").Inc()
		logger.Error().Err(err).Msg("Error stopping device")
		return interfaces.CommandResult{}, apperrors.NewCommandError("stop", device.Name(), err)
	}
	metrics.CommandsTotal.WithLabelValues("stop").Inc()

	return interfaces.CommandResult{
		Success: true,
		Device:  device.Name(),
		Status:  "stopped",
	}, nil
}

// Shutdown stops every device and disconnects, best-effort, then
// unconditionally resets local state. Shutdown must release local state
// even when the remote server is unreachable, so remote failures are
// logged and suppressed. Safe to call repeatedly.
func (m *Manager) Shutdown(ctx context.Context) {
	logger.Info().Msg("Shutdown called")

	m.mu.Lock()
	client := m.client
	devices := m.devices
	m.client = nil
	m.devices = nil
	m.activeIndex = 0
	m.initialized = false
	m.mu.Unlock()

	if client != nil && client.Connected() {
		for _, device := range devices {
			stopCtx, cancel := context.WithTimeout(ctx, commandTimeout)
			if err := device.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Str("device_name", device.Name()).Msg("Failed to stop device during shutdown")
			}
			cancel()
		}
		if err := client.Disconnect(ctx); err != nil {
			logger.Error().Err(err).Msg("Error during client disconnect")
		} else {
			logger.Info().Msg("Disconnected from Intiface")
		}
	}

	logger.Info().Msg("Shutdown complete")
}

// IsConnected reports whether a live connection to the server exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.Connected()
}

// HasDevices reports whether any devices are known.
func (m *Manager) HasDevices() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices) > 0
}

// Initialized reports whether the manager completed an initialize cycle.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// DeviceCount returns the number of known devices.
func (m *Manager) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// ActiveIndex returns the current active device index.
func (m *Manager) ActiveIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeIndex
}

// ClientState describes the connection handle for diagnostics.
func (m *Manager) ClientState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.client == nil:
		return "not created"
	case m.client.Connected():
		return "connected"
	default:
		return "disconnected"
	}
}

// ServerURL returns the configured or discovered websocket URL.
func (m *Manager) ServerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverURL
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
