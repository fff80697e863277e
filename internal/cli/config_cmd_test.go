package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/orderbot/internal/config"
)

func TestParseValue_KeepsPhoneNumbers(t *testing.T) {
	assert.Equal(t, "+15550100", parseValue("+15550100"))
	assert.Equal(t, "007", parseValue("007"))
	assert.Equal(t, "v18.0", parseValue("v18.0"))
	assert.Equal(t, -3, parseValue("-3"))
}

func TestMaskSecrets(t *testing.T) {
	v := map[string]any{
		"phoneNumberId": "12345",
		"accessToken":   "EAAB-secret",
		"appSecret":     "${WA_APP_SECRET}",
		"nested":        map[string]any{"password": "s3cret", "nick": "shopbot"},
	}
	got := maskSecrets("whatsapp", v).(map[string]any)
	assert.Equal(t, "12345", got["phoneNumberId"])
	assert.Equal(t, masked, got["accessToken"])
	assert.Equal(t, "${WA_APP_SECRET}", got["appSecret"], "env references are not secrets")
	nested := got["nested"].(map[string]any)
	assert.Equal(t, masked, nested["password"])
	assert.Equal(t, "shopbot", nested["nick"])

	assert.Equal(t, "EAAB-secret", v["accessToken"], "input must not be modified")
	assert.Equal(t, masked, maskSecrets("token", "abc"))
	assert.Equal(t, 18790, maskSecrets("port", 18790))
}

func TestWriteValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeValue(&buf, "loopback"))
	assert.Equal(t, "loopback\n", buf.String())

	buf.Reset()
	require.NoError(t, writeValue(&buf, map[string]any{"port": 18790}))
	assert.Equal(t, "port: 18790\n", buf.String())

	buf.Reset()
	require.NoError(t, writeValue(&buf, []any{"a", "b"}))
	assert.Equal(t, "- a\n- b\n", buf.String())
}

func TestConfigSetGetUnset(t *testing.T) {
	setupHome(t)

	set := newConfigSetCmd()
	set.SetArgs([]string{"gateway.port", "19000"})
	require.NoError(t, set.Execute())

	set = newConfigSetCmd()
	set.SetArgs([]string{"business.phone", "+15550123"})
	require.NoError(t, set.Execute())

	cfg, err := config.Load(paths.Config)
	require.NoError(t, err)
	assert.Equal(t, 19000, cfg.Gateway.Port)
	assert.Equal(t, "+15550123", cfg.Business.Phone)

	unset := newConfigUnsetCmd()
	unset.SetArgs([]string{"gateway.port"})
	require.NoError(t, unset.Execute())

	raw, err := config.LoadRaw(paths.Config)
	require.NoError(t, err)
	_, ok := config.GetValueAtPath(raw, []string{"gateway", "port"})
	assert.False(t, ok)

	unset = newConfigUnsetCmd()
	unset.SetArgs([]string{"gateway.port"})
	unset.SilenceErrors = true
	unset.SilenceUsage = true
	assert.Error(t, unset.Execute())
}

func TestWarnInvalid(t *testing.T) {
	setupHome(t)
	require.NoError(t, os.WriteFile(paths.Config, []byte("gateway:\n  port: 99999\n"), 0o600))

	var buf bytes.Buffer
	warnInvalid(&buf)
	assert.Contains(t, buf.String(), "gateway.port")
}
