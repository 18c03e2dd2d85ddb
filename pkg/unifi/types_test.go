package unifi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

func TestFlexibleTimeFormats(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"millis", "1767225600000", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"seconds", "1767225600", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", `"2026-01-01T00:00:00Z"`, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ft flexibleTime
			require.NoError(t, json.Unmarshal([]byte(tc.in), &ft))
			assert.True(t, ft.Time.Equal(tc.want), "got %s", ft.Time)
		})
	}
}

func TestFlexibleTimeNullAndEmpty(t *testing.T) {
	var ft flexibleTime
	require.NoError(t, json.Unmarshal([]byte("null"), &ft))
	assert.True(t, ft.IsZero())
	require.NoError(t, json.Unmarshal([]byte(`""`), &ft))
	assert.True(t, ft.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ft))
}

func TestRawEventToModel(t *testing.T) {
	record := []byte(`{
		"_id": "evt1",
		"key": "EVT_AP_Lost_Contact",
		"time": 1767225600000,
		"msg": "AP office disconnected",
		"ap": "aa:bb:cc:dd:ee:ff",
		"ap_name": "office-ap",
		"ssid": "corp"
	}`)
	var evt rawEvent
	require.NoError(t, json.Unmarshal(record, &evt))
	evt.raw = record

	m := evt.toModel()
	assert.Equal(t, "EVT_AP_Lost_Contact", m.Type)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", m.DeviceMAC)
	assert.Equal(t, "office-ap", m.DeviceName)
	assert.Equal(t, "AP office disconnected", m.Message)
	assert.Equal(t, "evt1", m.Raw["_id"])
	assert.Equal(t, "corp", m.Raw["ssid"], "unmapped attributes stay available for templates")
}

func TestRawEventDeviceIdentityPrecedence(t *testing.T) {
	e := rawEvent{AP: "ap-mac", APName: "ap", SW: "sw-mac", SWName: "sw", GW: "gw-mac"}
	mac, name := e.deviceIdentity()
	assert.Equal(t, "ap-mac", mac)
	assert.Equal(t, "ap", name)

	e = rawEvent{SW: "sw-mac", SWName: "sw", GW: "gw-mac"}
	mac, _ = e.deviceIdentity()
	assert.Equal(t, "sw-mac", mac)

	e = rawEvent{Hostname: "laptop"}
	mac, name = e.deviceIdentity()
	assert.Empty(t, mac)
	assert.Equal(t, "laptop", name)
}

func TestRawIPSEventToModel(t *testing.T) {
	record := []byte(`{
		"_id": "ips1",
		"timestamp": 1767225600,
		"src_ip": "203.0.113.5",
		"src_port": 51234,
		"dest_ip": "192.168.1.10",
		"dest_port": 443,
		"proto": "TCP",
		"inner_alert_signature": "ET SCAN Nmap Probe",
		"inner_alert_signature_id": 2850123,
		"inner_alert_category": "Attempted Recon",
		"inner_alert_severity": 2,
		"inner_alert_action": "blocked"
	}`)
	var evt rawIPSEvent
	require.NoError(t, json.Unmarshal(record, &evt))

	m := evt.toModel()
	assert.Equal(t, "ET SCAN Nmap Probe", m.Signature)
	assert.Equal(t, int64(2850123), m.SignatureID)
	assert.True(t, m.Blocked())
	assert.True(t, m.Cybersecure())
	assert.Equal(t, 51234, m.SrcPort)
}

func TestRawDeviceToModel(t *testing.T) {
	record := []byte(`{
		"mac": "aa:bb:cc:dd:ee:ff",
		"name": "core-switch",
		"model": "USW-24-POE",
		"type": "usw",
		"state": 1,
		"uptime": 864000,
		"general_temperature": 52.5,
		"system-stats": {"cpu": "12.3", "mem": "44.0"},
		"total_max_power": 95,
		"port_table": [{"poe_power": "6.5"}, {"poe_power": "12.0"}, {}]
	}`)
	var dev rawDevice
	require.NoError(t, json.Unmarshal(record, &dev))

	m := dev.toModel()
	assert.Equal(t, models.DeviceTypeSwitch, m.Type)
	assert.Equal(t, "connected", m.State)
	require.NotNil(t, m.CPUPct)
	assert.InDelta(t, 12.3, *m.CPUPct, 0.001)
	require.NotNil(t, m.MemPct)
	assert.InDelta(t, 44.0, *m.MemPct, 0.001)
	require.NotNil(t, m.TemperatureC)
	assert.InDelta(t, 52.5, *m.TemperatureC, 0.001)
	require.NotNil(t, m.UptimeSeconds)
	assert.InDelta(t, 10.0, m.UptimeDays(), 0.001)
	require.NotNil(t, m.PoEUsedW)
	assert.InDelta(t, 18.5, *m.PoEUsedW, 0.001)
}

func TestRawDeviceMissingStats(t *testing.T) {
	var dev rawDevice
	require.NoError(t, json.Unmarshal([]byte(`{"mac": "aa:bb", "type": "uap", "state": 0}`), &dev))

	m := dev.toModel()
	assert.Equal(t, models.DeviceTypeAP, m.Type)
	assert.Equal(t, "offline", m.State)
	assert.Nil(t, m.CPUPct)
	assert.Nil(t, m.MemPct)
	assert.Nil(t, m.TemperatureC)
	assert.Nil(t, m.UptimeSeconds)
}

func TestDeviceTypeFromWire(t *testing.T) {
	assert.Equal(t, models.DeviceTypeAP, deviceTypeFromWire("uap"))
	assert.Equal(t, models.DeviceTypeSwitch, deviceTypeFromWire("usw"))
	assert.Equal(t, models.DeviceTypeGateway, deviceTypeFromWire("ugw"))
	assert.Equal(t, models.DeviceTypeGateway, deviceTypeFromWire("usg"))
	assert.Equal(t, models.DeviceTypeUDM, deviceTypeFromWire("udm"))
	assert.Equal(t, models.DeviceTypeUnknown, deviceTypeFromWire("mystery"))
}
