package audio

import (
	"encoding/hex"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendForPlatformMatchesRuntimeGOOS(t *testing.T) {
	backend, err := backendForPlatform()
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		require.NoError(t, err)
		assert.NotZero(t, backend)
	default:
		assert.Error(t, err)
	}
}

func TestHexToASCIIDecodesDeviceID(t *testing.T) {
	encoded := hex.EncodeToString([]byte("front:CARD=PCH"))
	decoded, err := hexToASCII(encoded)
	require.NoError(t, err)
	assert.Equal(t, "front:CARD=PCH", decoded)
}

func TestHexToASCIIRejectsInvalidInput(t *testing.T) {
	_, err := hexToASCII("not-hex")
	assert.Error(t, err)
}
