//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/audiomon/internal/device"
)

func TestPulseEnumerateIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	p := NewPulse("", "audiomon-test", nil)
	devices, err := p.Enumerate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	id, ok, err := p.CurrentDefault(ctx, device.ClassOutput)
	require.NoError(t, err)
	if ok {
		_, found := device.FindID(devices, id)
		require.True(t, found, "default sink %q not enumerated", id)
	}
}
