// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package buttplug

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
)

// fakeIntiface is an in-process websocket server speaking just enough of the
// protocol to exercise the client
type fakeIntiface struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	devices     []deviceEntry
	maxPingTime uint32
	failScalar  bool
	pushOnScan  []deviceEntry // pushed as DeviceAdded after StartScanning

	scalarCmds []scalarCmd
	linearCmds []linearCmd
	stopCmds   []stopDeviceCmd
	pings      int
}

func newFakeIntiface(t *testing.T) *fakeIntiface {
	s := &fakeIntiface{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeIntiface) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeIntiface) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var batch []envelope
		if err := conn.ReadJSON(&batch); err != nil {
			return
		}
		for i := range batch {
			if err := s.reply(conn, &batch[i]); err != nil {
				return
			}
		}
	}
}

func (s *fakeIntiface) reply(conn *websocket.Conn, env *envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	write := func(out envelope) error {
		return conn.WriteJSON([]envelope{out})
	}

	switch {
	case env.RequestServerInfo != nil:
		return write(envelope{ServerInfo: &serverInfo{
			messageBase:    messageBase{ID: env.RequestServerInfo.ID},
			ServerName:     "Fake Intiface",
			MessageVersion: specVersion,
			MaxPingTime:    s.maxPingTime,
		}})
	case env.RequestDeviceList != nil:
		return write(envelope{DeviceList: &deviceList{
			messageBase: messageBase{ID: env.RequestDeviceList.ID},
			Devices:     s.devices,
		}})
	case env.StartScanning != nil:
		if err := write(envelope{Ok: &messageBase{ID: env.StartScanning.ID}}); err != nil {
			return err
		}
		for _, entry := range s.pushOnScan {
			if err := write(envelope{DeviceAdded: &deviceAdded{deviceEntry: entry}}); err != nil {
				return err
			}
		}
		return nil
	case env.StopScanning != nil:
		if err := write(envelope{Ok: &messageBase{ID: env.StopScanning.ID}}); err != nil {
			return err
		}
		return write(envelope{ScanningFinished: &messageBase{}})
	case env.ScalarCmd != nil:
		if s.failScalar {
			return write(envelope{Error: &serverError{
				messageBase:  messageBase{ID: env.ScalarCmd.ID},
				ErrorMessage: "device disconnected",
				ErrorCode:    3,
			}})
		}
		s.scalarCmds = append(s.scalarCmds, *env.ScalarCmd)
		return write(envelope{Ok: &messageBase{ID: env.ScalarCmd.ID}})
	case env.LinearCmd != nil:
		s.linearCmds = append(s.linearCmds, *env.LinearCmd)
		return write(envelope{Ok: &messageBase{ID: env.LinearCmd.ID}})
	case env.StopDeviceCmd != nil:
		s.stopCmds = append(s.stopCmds, *env.StopDeviceCmd)
		return write(envelope{Ok: &messageBase{ID: env.StopDeviceCmd.ID}})
	case env.Ping != nil:
		s.pings++
		return write(envelope{Ok: &messageBase{ID: env.Ping.ID}})
	}
	return nil
}

func vibratorEntry(name string, index uint32) deviceEntry {
	return deviceEntry{
		DeviceName:  name,
		DeviceIndex: index,
		DeviceMessages: deviceMessageAttrs{
			ScalarCmd: []featureAttribute{{ActuatorType: "Vibrate", StepCount: 20}},
		},
	}
}

func connectClient(t *testing.T, server *fakeIntiface) *Client {
	t.Helper()
	client := NewClient("Test Client")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx, server.url()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestConnect(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 0)}

	client := connectClient(t, server)

	if !client.Connected() {
		t.Error("Connected() = false, want true")
	}

	devices := client.Devices()
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d, want 1", len(devices))
	}
	if devices[0].Name() != "Test Vibrator" {
		t.Errorf("device name = %q, want %q", devices[0].Name(), "Test Vibrator")
	}
	if devices[0].Index() != 0 {
		t.Errorf("device index = %d, want 0", devices[0].Index())
	}
}

func TestConnect_BadURL(t *testing.T) {
	client := NewClient("Test Client")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Connect(ctx, "ws://127.0.0.1:1"); err == nil {
		t.Error("Connect() to unreachable address should fail")
	}
	if client.Connected() {
		t.Error("Connected() = true after failed connect")
	}
}

func TestDeviceAttributes(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{{
		DeviceName:  "Combo Device",
		DeviceIndex: 2,
		DeviceMessages: deviceMessageAttrs{
			ScalarCmd: []featureAttribute{
				{ActuatorType: "Vibrate"},
				{ActuatorType: "Oscillate"},
			},
			LinearCmd: []featureAttribute{{FeatureDescriptor: "Stroker"}},
		},
	}}

	client := connectClient(t, server)
	devices := client.Devices()
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d, want 1", len(devices))
	}

	actuators := devices[0].Actuators()
	if len(actuators) != 2 {
		t.Fatalf("Actuators() returned %d, want 2", len(actuators))
	}
	if actuators[0].Type() != "Vibrate" {
		t.Errorf("actuator 0 type = %q, want %q", actuators[0].Type(), "Vibrate")
	}
	if actuators[1].Type() != "Oscillate" {
		t.Errorf("actuator 1 type = %q, want %q", actuators[1].Type(), "Oscillate")
	}
	if !actuators[0].SupportsPosition() {
		t.Error("SupportsPosition() = false for device with a linear feature")
	}
}

func TestDefaultActuatorType(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{{
		DeviceName:  "Legacy Device",
		DeviceIndex: 0,
		DeviceMessages: deviceMessageAttrs{
			ScalarCmd: []featureAttribute{{}}, // no ActuatorType advertised
		},
	}}

	client := connectClient(t, server)
	actuators := client.Devices()[0].Actuators()
	if len(actuators) != 1 || actuators[0].Type() != "Vibrate" {
		t.Errorf("missing actuator type should default to Vibrate, got %+v", actuators)
	}
}

func TestScanning_DeviceAdded(t *testing.T) {
	server := newFakeIntiface(t)
	server.pushOnScan = []deviceEntry{vibratorEntry("Scanned Device", 5)}

	client := connectClient(t, server)
	ctx := context.Background()

	if err := client.StartScanning(ctx); err != nil {
		t.Fatalf("StartScanning() error = %v", err)
	}

	// The pushed DeviceAdded arrives asynchronously
	deadline := time.After(2 * time.Second)
	for len(client.Devices()) == 0 {
		select {
		case <-deadline:
			t.Fatal("DeviceAdded event never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := client.StopScanning(ctx); err != nil {
		t.Fatalf("StopScanning() error = %v", err)
	}

	devices := client.Devices()
	if devices[0].Name() != "Scanned Device" {
		t.Errorf("device name = %q, want %q", devices[0].Name(), "Scanned Device")
	}
	if devices[0].Index() != 5 {
		t.Errorf("device index = %d, want 5", devices[0].Index())
	}
}

func TestScalarCommand(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 1)}

	client := connectClient(t, server)
	actuator := client.Devices()[0].Actuators()[0]

	if err := actuator.Command(context.Background(), 0.5); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.scalarCmds) != 1 {
		t.Fatalf("server received %d scalar commands, want 1", len(server.scalarCmds))
	}
	cmd := server.scalarCmds[0]
	if cmd.DeviceIndex != 1 {
		t.Errorf("DeviceIndex = %d, want 1", cmd.DeviceIndex)
	}
	if len(cmd.Scalars) != 1 || cmd.Scalars[0].Scalar != 0.5 {
		t.Errorf("Scalars = %+v, want one entry at 0.5", cmd.Scalars)
	}
	if cmd.Scalars[0].ActuatorType != "Vibrate" {
		t.Errorf("ActuatorType = %q, want %q", cmd.Scalars[0].ActuatorType, "Vibrate")
	}
}

func TestLinearCommand(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{{
		DeviceName:  "Stroker",
		DeviceIndex: 0,
		DeviceMessages: deviceMessageAttrs{
			LinearCmd: []featureAttribute{{}},
		},
	}}

	client := connectClient(t, server)
	device := client.Devices()[0]

	if err := device.Linear(context.Background(), 0.25, 750*time.Millisecond); err != nil {
		t.Fatalf("Linear() error = %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.linearCmds) != 1 {
		t.Fatalf("server received %d linear commands, want 1", len(server.linearCmds))
	}
	vec := server.linearCmds[0].Vectors
	if len(vec) != 1 {
		t.Fatalf("Vectors = %+v, want one entry", vec)
	}
	if vec[0].Duration != 750 {
		t.Errorf("Duration = %d ms, want 750", vec[0].Duration)
	}
	if vec[0].Position != 0.25 {
		t.Errorf("Position = %v, want 0.25", vec[0].Position)
	}
}

func TestLinear_NoPositionalFeature(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 0)}

	client := connectClient(t, server)
	device := client.Devices()[0]

	err := device.Linear(context.Background(), 0.5, time.Second)
	if err != apperrors.ErrPositionUnsupported {
		t.Errorf("Linear() error = %v, want ErrPositionUnsupported", err)
	}
}

func TestCommandWithPosition(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{{
		DeviceName:  "Combo Device",
		DeviceIndex: 0,
		DeviceMessages: deviceMessageAttrs{
			ScalarCmd: []featureAttribute{{ActuatorType: "Vibrate"}},
			LinearCmd: []featureAttribute{{}},
		},
	}}

	client := connectClient(t, server)
	actuator := client.Devices()[0].Actuators()[0]

	if err := actuator.CommandWithPosition(context.Background(), 0.7, 0.3); err != nil {
		t.Fatalf("CommandWithPosition() error = %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.scalarCmds) != 1 {
		t.Errorf("server received %d scalar commands, want 1", len(server.scalarCmds))
	}
	if len(server.linearCmds) != 1 {
		t.Fatalf("server received %d linear commands, want 1", len(server.linearCmds))
	}
	if server.linearCmds[0].Vectors[0].Position != 0.3 {
		t.Errorf("Position = %v, want 0.3", server.linearCmds[0].Vectors[0].Position)
	}
}

func TestStopDeviceCommand(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 4)}

	client := connectClient(t, server)
	device := client.Devices()[0]

	if err := device.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.stopCmds) != 1 || server.stopCmds[0].DeviceIndex != 4 {
		t.Errorf("stop commands = %+v, want one for device 4", server.stopCmds)
	}
}

func TestServerError(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 0)}
	server.failScalar = true

	client := connectClient(t, server)
	actuator := client.Devices()[0].Actuators()[0]

	err := actuator.Command(context.Background(), 0.5)
	if err == nil {
		t.Fatal("Command() should surface the server error")
	}
	serverErr, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("Command() error = %T, want *ServerError", err)
	}
	if serverErr.Code != 3 {
		t.Errorf("ServerError.Code = %d, want 3", serverErr.Code)
	}
}

func TestPing(t *testing.T) {
	server := newFakeIntiface(t)
	server.maxPingTime = 40 // milliseconds

	client := connectClient(t, server)
	_ = client

	time.Sleep(150 * time.Millisecond)

	server.mu.Lock()
	defer server.mu.Unlock()
	if server.pings == 0 {
		t.Error("server received no pings")
	}
}

func TestDisconnect(t *testing.T) {
	server := newFakeIntiface(t)

	client := connectClient(t, server)
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if client.Connected() {
		t.Error("Connected() = true after Disconnect")
	}

	// Repeated disconnects are safe
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}

	// Requests on a dead connection fail immediately
	if err := client.StartScanning(context.Background()); err == nil {
		t.Error("StartScanning() should fail after Disconnect")
	}
}

func TestDeviceRemoved(t *testing.T) {
	server := newFakeIntiface(t)
	server.devices = []deviceEntry{vibratorEntry("Test Vibrator", 0)}

	client := connectClient(t, server)
	if len(client.Devices()) != 1 {
		t.Fatal("expected one device after connect")
	}

	client.removeDevice(0)
	if len(client.Devices()) != 0 {
		t.Error("device should be gone after DeviceRemoved")
	}
}
