package telemetry

import (
	"reflect"
	"testing"

	"github.com/telegate/telegate/internal/device"
)

func TestExtractIMEI(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"telemetry topic", "devices/358000000000001/telemetry", "358000000000001"},
		{"command topic", "devices/358000000000001/command", "358000000000001"},
		{"deep topic", "devices/358000000000001/telemetry/extra", "358000000000001"},
		{"wrong namespace", "sensors/358000000000001/telemetry", ""},
		{"too few segments", "devices/358000000000001", ""},
		{"single segment", "devices", ""},
		{"empty topic", "", ""},
		{"empty imei segment", "devices//telemetry", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractIMEI(tt.topic); got != tt.want {
				t.Errorf("ExtractIMEI(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want device.Payload
	}{
		{
			name: "json object",
			raw:  `{"temperature": 21.5, "charging": true}`,
			want: device.Payload{"temperature": 21.5, "charging": true},
		},
		{
			name: "nested object",
			raw:  `{"gps": {"lat": 51.5, "lon": -0.1}}`,
			want: device.Payload{"gps": map[string]any{"lat": 51.5, "lon": -0.1}},
		},
		{
			name: "json number wrapped",
			raw:  `42`,
			want: device.Payload{"value": 42.0},
		},
		{
			name: "json string wrapped",
			raw:  `"ok"`,
			want: device.Payload{"value": "ok"},
		},
		{
			name: "json array wrapped",
			raw:  `[1, 2, 3]`,
			want: device.Payload{"value": []any{1.0, 2.0, 3.0}},
		},
		{
			name: "json null wrapped",
			raw:  `null`,
			want: device.Payload{"value": nil},
		},
		{
			name: "malformed json wrapped as text",
			raw:  `{"temperature": 21.5`,
			want: device.Payload{"value": `{"temperature": 21.5`},
		},
		{
			name: "plain text wrapped",
			raw:  `BATTERY LOW`,
			want: device.Payload{"value": "BATTERY LOW"},
		},
		{
			name: "empty body wrapped",
			raw:  ``,
			want: device.Payload{"value": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodePayload([]byte(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodePayload(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
