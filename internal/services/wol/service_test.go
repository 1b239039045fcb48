package wol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

type mockWOLClient struct {
	calls    int
	wakeFunc func(addr string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(addr string, mac net.HardwareAddr) error {
	m.calls++
	if m.wakeFunc != nil {
		return m.wakeFunc(addr, mac)
	}
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWake_Success(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedAddr string

	wolClient := &mockWOLClient{
		wakeFunc: func(addr string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedAddr = addr
			return nil
		},
	}

	svc := NewWithClient(testLogger(), wolClient)

	cfg := models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
		Port:        9,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.Nil(t, result.Error)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", result.Target)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255:9", capturedAddr)
}

func TestWake_DefaultPort(t *testing.T) {
	var capturedAddr string
	wolClient := &mockWOLClient{
		wakeFunc: func(addr string, mac net.HardwareAddr) error {
			capturedAddr = addr
			return nil
		},
	}

	svc := NewWithClient(testLogger(), wolClient)

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "aa-bb-cc-dd-ee-ff",
		BroadcastIP: "255.255.255.255",
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.Equal(t, "255.255.255.255:9", capturedAddr)
}

func TestWake_InvalidMAC(t *testing.T) {
	tests := []struct {
		name string
		mac  string
	}{
		{name: "garbage", mac: "invalid-mac"},
		{name: "empty", mac: ""},
		{name: "eui-64", mac: "02:00:5e:10:00:00:00:01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wolClient := &mockWOLClient{}
			svc := NewWithClient(testLogger(), wolClient)

			result, err := svc.Wake(context.Background(), models.WOLConfig{
				MACAddress:  tt.mac,
				BroadcastIP: "192.168.1.255",
			})

			require.NoError(t, err)
			assert.False(t, result.PacketSent)
			require.Error(t, result.Error)
			assert.Contains(t, result.Error.Error(), "invalid MAC address")
			assert.Equal(t, 0, wolClient.calls, "nothing may be transmitted for a rejected address")
		})
	}
}

func TestWake_InvalidBroadcastIP(t *testing.T) {
	wolClient := &mockWOLClient{}
	svc := NewWithClient(testLogger(), wolClient)

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "not-an-ip",
	})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid broadcast IP")
	assert.Equal(t, 0, wolClient.calls)
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(addr string, mac net.HardwareAddr) error {
			return errors.New("network error")
		},
	}

	svc := NewWithClient(testLogger(), wolClient)

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "network error")
	assert.Equal(t, 1, wolClient.calls, "failed sends are not retried")
}

func TestWake_ContextCancelled(t *testing.T) {
	wolClient := &mockWOLClient{}
	svc := NewWithClient(testLogger(), wolClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Wake(ctx, models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.Equal(t, context.Canceled, result.Error)
	assert.Equal(t, 0, wolClient.calls)
}

func TestMagicPacket_Layout(t *testing.T) {
	mac, err := ParseMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)

	b, err := MagicPacket(mac)
	require.NoError(t, err)

	require.Len(t, b, 6+16*6)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 6), b[:6])
	for i := 0; i < 16; i++ {
		off := 6 + i*6
		assert.Equal(t, []byte(mac), b[off:off+6], "repetition %d", i)
	}
}

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("01-23-45-67-89-ab")
	require.NoError(t, err)
	assert.Equal(t, "01:23:45:67:89:ab", mac.String())

	_, err = ParseMAC("0123.4567.89ab.cdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 6 bytes")
}
