package marketapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfleet/supervisor/internal/marketapi"
)

func TestTagRoundTrip(t *testing.T) {
	for _, tag := range []string{"gpu_1", "gpu_10", "render-farm_3", ""} {
		wire := marketapi.EncodeTag(tag)
		decoded, err := marketapi.DecodeTag(wire)
		require.NoError(t, err)
		assert.Equal(t, tag, decoded)
	}
}

func TestDecodeTag_StripsTrailingNULs(t *testing.T) {
	wire := marketapi.EncodeTag("tag_1\x00\x00\x00")
	decoded, err := marketapi.DecodeTag(wire)
	require.NoError(t, err)
	assert.Equal(t, "tag_1", decoded)
}
