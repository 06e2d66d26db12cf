package writelog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEmptyPathDisabled(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	assert.Nil(t, l)
	l.WriteOK(1, 21, "dev", "voltage0", "sampling_frequency", 1.0) // no panic on nil
}

func TestWriteOKAndFailAppendLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "writes.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	l.WriteOK(0x12345678, 21, "ad9361-phy", "voltage0", "sampling_frequency", 100e6)
	l.WriteFail(0x12345678, 25, "ad9361-phy", "", "frequency", errors.New("device not found"))
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(content)
	assert.Contains(t, s, "OK")
	assert.Contains(t, s, "FAIL")
	assert.Contains(t, s, "stream=0x12345678")
	assert.Contains(t, s, "device not found")
}
