package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Telegate MQTT namespace.
//
// Device traffic uses the flat scheme: devices/{imei}/{channel}
// where {imei} is the device's external identifier and {channel} is
// "telemetry" (device → platform) or "command" (platform → device).
const (
	// TopicPrefixDevices is the base for all device topics.
	TopicPrefixDevices = "devices"

	// TopicPrefixSystem is the base for gateway system topics.
	TopicPrefixSystem = "telegate/system"
)

// Topics provides builders for Telegate MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceTelemetry("358000000000001")
//	// Returns: "devices/358000000000001/telemetry"
type Topics struct{}

// DeviceTelemetry returns the telemetry topic for a single device.
//
// Example: devices/358000000000001/telemetry
func (Topics) DeviceTelemetry(imei string) string {
	return fmt.Sprintf("%s/%s/telemetry", TopicPrefixDevices, imei)
}

// DeviceCommand returns the command topic for a single device.
//
// Example: devices/358000000000001/command
func (Topics) DeviceCommand(imei string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevices, imei)
}

// AllDeviceTelemetry returns a pattern matching telemetry from every device.
//
// Pattern: devices/+/telemetry
func (Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/+/telemetry", TopicPrefixDevices)
}

// SystemStatus returns the gateway status topic (online/offline/LWT).
//
// Example: telegate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// RenderCommandTopic substitutes {imei} in a command topic template.
//
// Example: RenderCommandTopic("devices/{imei}/command", "358...") ->
// "devices/358.../command". Templates without the placeholder are
// returned unchanged.
func RenderCommandTopic(template, imei string) string {
	return strings.ReplaceAll(template, "{imei}", imei)
}
