// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package buttplug

import "fmt"

// specVersion is the buttplug message spec version this client speaks.
const specVersion = 3

// The wire format is a JSON array of single-key objects, the key naming the
// message type and the value carrying its fields, e.g.
//
//	[{"StartScanning": {"Id": 2}}]
//
// envelope models one such object; absent message types are nil pointers and
// omitted from the encoding.
type envelope struct {
	RequestServerInfo *requestServerInfo `json:"RequestServerInfo,omitempty"`
	ServerInfo        *serverInfo        `json:"ServerInfo,omitempty"`
	RequestDeviceList *messageBase       `json:"RequestDeviceList,omitempty"`
	DeviceList        *deviceList        `json:"DeviceList,omitempty"`
	DeviceAdded       *deviceAdded       `json:"DeviceAdded,omitempty"`
	DeviceRemoved     *deviceRemoved     `json:"DeviceRemoved,omitempty"`
	StartScanning     *messageBase       `json:"StartScanning,omitempty"`
	StopScanning      *messageBase       `json:"StopScanning,omitempty"`
	ScanningFinished  *messageBase       `json:"ScanningFinished,omitempty"`
	ScalarCmd         *scalarCmd         `json:"ScalarCmd,omitempty"`
	LinearCmd         *linearCmd         `json:"LinearCmd,omitempty"`
	StopDeviceCmd     *stopDeviceCmd     `json:"StopDeviceCmd,omitempty"`
	Ping              *messageBase       `json:"Ping,omitempty"`
	Ok                *messageBase       `json:"Ok,omitempty"`
	Error             *serverError       `json:"Error,omitempty"`
}

// messageBase carries the message ID shared by all message types.
type messageBase struct {
	ID uint32 `json:"Id"`
}

type requestServerInfo struct {
	messageBase
	ClientName     string `json:"ClientName"`
	MessageVersion uint32 `json:"MessageVersion"`
}

type serverInfo struct {
	messageBase
	ServerName     string `json:"ServerName"`
	MessageVersion uint32 `json:"MessageVersion"`
	MaxPingTime    uint32 `json:"MaxPingTime"` // milliseconds, 0 disables pings
}

type serverError struct {
	messageBase
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// featureAttribute describes one controllable feature of a device.
type featureAttribute struct {
	FeatureDescriptor string `json:"FeatureDescriptor,omitempty"`
	ActuatorType      string `json:"ActuatorType,omitempty"`
	StepCount         uint32 `json:"StepCount,omitempty"`
}

// deviceMessageAttrs lists the command messages a device accepts.
type deviceMessageAttrs struct {
	ScalarCmd []featureAttribute `json:"ScalarCmd,omitempty"`
	LinearCmd []featureAttribute `json:"LinearCmd,omitempty"`
}

type deviceEntry struct {
	DeviceName     string             `json:"DeviceName"`
	DeviceIndex    uint32             `json:"DeviceIndex"`
	DeviceMessages deviceMessageAttrs `json:"DeviceMessages"`
}

type deviceList struct {
	messageBase
	Devices []deviceEntry `json:"Devices"`
}

type deviceAdded struct {
	messageBase
	deviceEntry
}

type deviceRemoved struct {
	messageBase
	DeviceIndex uint32 `json:"DeviceIndex"`
}

type scalarEntry struct {
	Index        uint32  `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

type scalarCmd struct {
	messageBase
	DeviceIndex uint32        `json:"DeviceIndex"`
	Scalars     []scalarEntry `json:"Scalars"`
}

type vectorEntry struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"` // milliseconds
	Position float64 `json:"Position"`
}

type linearCmd struct {
	messageBase
	DeviceIndex uint32        `json:"DeviceIndex"`
	Vectors     []vectorEntry `json:"Vectors"`
}

type stopDeviceCmd struct {
	messageBase
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// setID stamps the message ID onto whichever outbound message is present.
func (e *envelope) setID(id uint32) {
	switch {
	case e.RequestServerInfo != nil:
		e.RequestServerInfo.ID = id
	case e.RequestDeviceList != nil:
		e.RequestDeviceList.ID = id
	case e.StartScanning != nil:
		e.StartScanning.ID = id
	case e.StopScanning != nil:
		e.StopScanning.ID = id
	case e.ScalarCmd != nil:
		e.ScalarCmd.ID = id
	case e.LinearCmd != nil:
		e.LinearCmd.ID = id
	case e.StopDeviceCmd != nil:
		e.StopDeviceCmd.ID = id
	case e.Ping != nil:
		e.Ping.ID = id
	}
}

// replyID returns the message ID of an inbound reply, or 0 for server-pushed
// events (DeviceAdded, DeviceRemoved, ScanningFinished).
func (e *envelope) replyID() uint32 {
	switch {
	case e.Ok != nil:
		return e.Ok.ID
	case e.Error != nil:
		return e.Error.ID
	case e.ServerInfo != nil:
		return e.ServerInfo.ID
	case e.DeviceList != nil:
		return e.DeviceList.ID
	}
	return 0
}

// ServerError is a protocol-level error returned by the Intiface server.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("intiface server error %d: %s", e.Code, e.Message)
}
