// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package buttplug implements a websocket client for the buttplug v3 device
// control protocol as served by Intiface Central and intiface-engine.
//
// The client performs the RequestServerInfo handshake, keeps the server's
// device list current from DeviceAdded/DeviceRemoved events, answers pings
// when the server requires them, and exposes scanning and per-device command
// primitives. Request round-trips run behind a circuit breaker so a dead
// server fails fast instead of stacking up blocked writes.
package buttplug

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
	"github.com/soothill/haptic-bridge/pkg/interfaces"
	"github.com/soothill/haptic-bridge/pkg/logger"
)

const (
	writeTimeout     = 5 * time.Second
	handshakeTimeout = 10 * time.Second

	breakerFailureThreshold = 3
	breakerResetTimeout     = 15 * time.Second
)

// Client is a connection to an Intiface server. A Client is single-use: once
// disconnected it cannot be reconnected, matching the bridge's policy of
// discarding stale handles.
type Client struct {
	name string

	mu        sync.RWMutex // guards conn, connected, devices, done
	conn      *websocket.Conn
	connected bool
	devices   map[uint32]*Device
	done      chan struct{}

	writeMu sync.Mutex // serializes websocket writes

	pendingMu sync.Mutex
	pending   map[uint32]chan *envelope

	nextID  uint32
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a new client identifying itself to the server by name.
func NewClient(name string) *Client {
	return &Client{
		name:    name,
		devices: make(map[uint32]*Device),
		pending: make(map[uint32]chan *envelope),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "intiface",
			MaxRequests: 1,
			Timeout:     breakerResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
		}),
	}
}

// Connect dials the server, performs the protocol handshake and fetches the
// initial device list.
func (c *Client) Connect(ctx context.Context, serverURL string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)

	reply, err := c.request(ctx, &envelope{RequestServerInfo: &requestServerInfo{
		ClientName:     c.name,
		MessageVersion: specVersion,
	}})
	if err != nil {
		c.shutdownConn(err)
		return err
	}
	if reply.ServerInfo == nil {
		err = fmt.Errorf("unexpected handshake reply")
		c.shutdownConn(err)
		return err
	}

	logger.Info().
		Str("server_name", reply.ServerInfo.ServerName).
		Uint32("message_version", reply.ServerInfo.MessageVersion).
		Msg("Connected to Intiface server")

	if reply.ServerInfo.MaxPingTime > 0 {
		go c.pingLoop(time.Duration(reply.ServerInfo.MaxPingTime) * time.Millisecond)
	}

	reply, err = c.request(ctx, &envelope{RequestDeviceList: &messageBase{}})
	if err != nil {
		c.shutdownConn(err)
		return err
	}
	if reply.DeviceList != nil {
		c.setDevices(reply.DeviceList.Devices)
	}

	return nil
}

// Disconnect sends a close frame and tears down the connection. It never
// fails; a connection that is already gone is left gone.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil
	}

	deadline := time.Now().Add(writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.shutdownConn(nil)
	return nil
}

// Connected reports whether the connection is live.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// StartScanning asks the server to begin device discovery.
func (c *Client) StartScanning(ctx context.Context) error {
	_, err := c.request(ctx, &envelope{StartScanning: &messageBase{}})
	return err
}

// StopScanning asks the server to end device discovery.
func (c *Client) StopScanning(ctx context.Context) error {
	_, err := c.request(ctx, &envelope{StopScanning: &messageBase{}})
	return err
}

// Devices returns a snapshot of the currently known devices in protocol
// index order.
func (c *Client) Devices() []interfaces.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].index < devices[j].index
	})

	result := make([]interfaces.Device, len(devices))
	for i, d := range devices {
		result[i] = d
	}
	return result
}

// request sends a message and waits for its reply, routed by message ID.
// Round-trips run behind the circuit breaker.
func (c *Client) request(ctx context.Context, env *envelope) (*envelope, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, env)
	})
	if err != nil {
		return nil, err
	}
	return res.(*envelope), nil
}

func (c *Client) roundTrip(ctx context.Context, env *envelope) (*envelope, error) {
	c.mu.RLock()
	connected := c.connected
	done := c.done
	c.mu.RUnlock()
	if !connected {
		return nil, apperrors.ErrConnectionClosed
	}

	id := atomic.AddUint32(&c.nextID, 1)
	env.setID(id)

	ch := make(chan *envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(env); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Error != nil {
			return nil, &ServerError{Code: reply.Error.ErrorCode, Message: reply.Error.ErrorMessage}
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return nil, apperrors.ErrConnectionClosed
	}
}

func (c *Client) send(env *envelope) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return apperrors.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON([]*envelope{env})
}

// readLoop drains the connection, routing replies to waiting requests and
// applying server-pushed device events.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var batch []envelope
		if err := conn.ReadJSON(&batch); err != nil {
			c.shutdownConn(err)
			return
		}
		for i := range batch {
			c.dispatch(&batch[i])
		}
	}
}

func (c *Client) dispatch(env *envelope) {
	switch {
	case env.DeviceAdded != nil:
		c.addDevice(env.DeviceAdded.deviceEntry)
	case env.DeviceRemoved != nil:
		c.removeDevice(env.DeviceRemoved.DeviceIndex)
	case env.ScanningFinished != nil:
		logger.Debug().Msg("Server reported scanning finished")
	default:
		id := env.replyID()
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- env
		} else {
			logger.Debug().Uint32("id", id).Msg("Dropping unmatched server message")
		}
	}
}

func (c *Client) addDevice(entry deviceEntry) {
	device := newDevice(c, entry)
	c.mu.Lock()
	c.devices[entry.DeviceIndex] = device
	c.mu.Unlock()
	logger.Info().
		Str("device_name", entry.DeviceName).
		Uint32("device_index", entry.DeviceIndex).
		Int("actuators", len(device.actuators)).
		Msg("Device added")
}

func (c *Client) removeDevice(index uint32) {
	c.mu.Lock()
	delete(c.devices, index)
	c.mu.Unlock()
	logger.Info().Uint32("device_index", index).Msg("Device removed")
}

func (c *Client) setDevices(entries []deviceEntry) {
	devices := make(map[uint32]*Device, len(entries))
	for _, entry := range entries {
		devices[entry.DeviceIndex] = newDevice(c, entry)
	}
	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()
}

// pingLoop answers the server's ping requirement at half the allowed
// interval. A failed ping tears the connection down.
func (c *Client) pingLoop(maxPingTime time.Duration) {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()

	ticker := time.NewTicker(maxPingTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			_, err := c.roundTrip(ctx, &envelope{Ping: &messageBase{}})
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("Ping failed, closing connection")
				c.shutdownConn(err)
				return
			}
		}
	}
}

// shutdownConn marks the connection dead exactly once, closing the socket
// and releasing any blocked requests.
func (c *Client) shutdownConn(cause error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	_ = conn.Close()
	close(done)

	if cause != nil {
		logger.Warn().Err(cause).Msg("Intiface connection closed")
	}
}
