package nvs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nvs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetCommitGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("wifi")

	h.SetStr("ssid", "doorbell-net")
	require.NoError(t, h.Commit())

	v, ok, err := h.GetStr("ssid")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "doorbell-net", v)
}

func TestUncommittedWritesNotPersistedAcrossHandles(t *testing.T) {
	s := openTestStore(t)
	h1 := s.OpenNamespace("sip")
	h1.SetU8("sip_enabled", 1)
	// No Commit() call.

	h2 := s.OpenNamespace("sip")
	_, ok, err := h2.GetU8("sip_enabled")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPendingReadVisibleBeforeCommit(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("camera")
	h.SetU8("quality", 80)

	v, ok, err := h.GetU8("quality")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(80), v)
}

func TestTypedGetters(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("camera")
	h.SetU8("framesize", 5)
	h.SetI8("brightness", -2)
	h.SetU16("aud_volume", 7000)
	h.SetU32("aac_bitr", 64000)
	require.NoError(t, h.Commit())

	u8, ok, err := h.GetU8("framesize")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(5), u8)

	i8, ok, err := h.GetI8("brightness")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int8(-2), i8)

	u16, ok, err := h.GetU16("aud_volume")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(7000), u16)

	u32, ok, err := h.GetU32("aac_bitr")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(64000), u32)
}

func TestEraseKeyRemovesValueOnCommit(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("wifi")
	h.SetStr("password", "hunter2")
	require.NoError(t, h.Commit())

	h.EraseKey("password")
	require.NoError(t, h.Commit())

	_, ok, err := h.GetStr("password")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEraseAllClearsNamespaceOnly(t *testing.T) {
	s := openTestStore(t)
	wifi := s.OpenNamespace("wifi")
	wifi.SetStr("ssid", "net")
	require.NoError(t, wifi.Commit())

	sip := s.OpenNamespace("sip")
	sip.SetStr("sip_user", "620")
	require.NoError(t, sip.Commit())

	wifi.EraseAll()
	require.NoError(t, wifi.Commit())

	_, ok, err := wifi.GetStr("ssid")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := sip.GetStr("sip_user")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "620", v)
}

func TestSetOverwritesOnCommit(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("wifi")
	h.SetStr("ssid", "first")
	require.NoError(t, h.Commit())

	h.SetStr("ssid", "second")
	require.NoError(t, h.Commit())

	v, ok, err := h.GetStr("ssid")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", v)
}

func TestDecodeIntoSIPConfig(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("sip")
	h.SetStr("sip_user", "620")
	h.SetStr("sip_password", "secret")
	h.SetStr("sip_displayname", "Doorbell")
	h.SetStr("sip_target", "**610")
	h.SetU8("sip_enabled", 1)
	h.SetU8("sip_verbose", 0)
	require.NoError(t, h.Commit())

	var cfg SIPConfig
	require.NoError(t, h.Decode(&cfg))
	require.Equal(t, "620", cfg.User)
	require.Equal(t, "secret", cfg.Password)
	require.Equal(t, "Doorbell", cfg.DisplayName)
	require.Equal(t, "**610", cfg.Target)
	require.Equal(t, uint8(1), cfg.Enabled)
	require.Equal(t, uint8(0), cfg.Verbose)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	h := s.OpenNamespace("system")

	_, ok, err := h.GetStr("timezone")
	require.NoError(t, err)
	require.False(t, ok)
}
