package fan

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out two hwmon chips, one of which is the target. Like
// applesmc, the target exposes fan2_min writable and fan2_max read-only.
func fakeSysfs(t *testing.T) (root, chipDir string) {
	t.Helper()
	root = t.TempDir()

	other := filepath.Join(root, "hwmon0")
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "name"), []byte("coretemp\n"), 0o644))

	chipDir = filepath.Join(root, "hwmon1")
	require.NoError(t, os.MkdirAll(chipDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chipDir, "name"), []byte("applesmc\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chipDir, "fan2_min"), []byte("1800\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chipDir, "fan2_max"), []byte("6000\n"), 0o444))

	return root, chipDir
}

func newTestHwmon(root string) *Hwmon {
	return NewHwmon(root, "applesmc", map[string]string{
		string(ChannelHDDMaxRPM): "fan2_min",
		"read_only_attr":         "fan2_max",
		"missing_attr":           "fan9_max",
	}, logger.Nop())
}

func TestHwmonWritesChannel(t *testing.T) {
	root, chipDir := fakeSysfs(t)
	h := newTestHwmon(root)

	require.NoError(t, Apply(h, ChannelHDDMaxRPM, 5400))

	data, err := os.ReadFile(filepath.Join(chipDir, "fan2_min"))
	require.NoError(t, err)
	assert.Equal(t, "5400", string(data))
}

func TestHwmonReadOnlyAttributeIsWriteError(t *testing.T) {
	root, chipDir := fakeSysfs(t)
	h := newTestHwmon(root)

	err := Apply(h, ChannelKey("read_only_attr"), 5400)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrWrite))
	assert.True(t, errors.HasCode(err, ErrReadOnlyChannel))

	data, err := os.ReadFile(filepath.Join(chipDir, "fan2_max"))
	require.NoError(t, err)
	assert.Equal(t, "6000\n", string(data), "read-only attribute is left untouched")

	// The session was still released.
	s, err := h.Open()
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestHwmonChipNotFound(t *testing.T) {
	root, _ := fakeSysfs(t)
	h := NewHwmon(root, "nct6775", nil, logger.Nop())

	_, err := h.Open()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrConnection))

	// A failed open must not leave the controller busy.
	_, err = h.Open()
	assert.True(t, errors.HasCode(err, ErrConnection))
}

func TestHwmonMissingRoot(t *testing.T) {
	h := NewHwmon(filepath.Join(t.TempDir(), "absent"), "applesmc", nil, logger.Nop())

	_, err := h.Open()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrConnection))
}

func TestHwmonUnknownChannel(t *testing.T) {
	root, _ := fakeSysfs(t)
	h := newTestHwmon(root)

	err := Apply(h, ChannelKey("cpu_fan_rpm_min"), 1000)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrWrite))
	assert.True(t, errors.HasCode(err, ErrUnknownChannel))
}

func TestHwmonMissingAttributeIsWriteError(t *testing.T) {
	root, chipDir := fakeSysfs(t)
	h := newTestHwmon(root)

	err := Apply(h, ChannelKey("missing_attr"), 1000)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrWrite))

	_, statErr := os.Stat(filepath.Join(chipDir, "fan9_max"))
	assert.True(t, os.IsNotExist(statErr), "attributes are never created")
}

func TestHwmonSingleSession(t *testing.T) {
	root, _ := fakeSysfs(t)
	h := newTestHwmon(root)

	s, err := h.Open()
	require.NoError(t, err)

	_, err = h.Open()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrSessionBusy))

	require.NoError(t, s.Close())

	err = s.Close()
	assert.True(t, errors.HasCode(err, ErrSessionClosed))

	err = s.SetChannel(ChannelHDDMaxRPM, 1)
	assert.True(t, errors.HasCode(err, ErrSessionClosed))

	s2, err := h.Open()
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}
