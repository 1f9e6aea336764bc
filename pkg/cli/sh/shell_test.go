package sh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/sim"
)

func TestShellSlot(t *testing.T) {
	simConf := sim.NewConfig()
	simConf.ImagePath = ""
	simConf.MemorySize = 1 << 20
	simConf.CRCStripped = false
	s, err := New(simConf, sd.NewConfig())
	require.NoError(t, err)
	require.True(t, s.Driver.IsCardInserted())

	require.NoError(t, s.InitCard(context.Background()))
	require.True(t, s.Driver.Ready())

	require.NoError(t, s.Shell.Process("remove"))
	require.False(t, s.Driver.Ready())
	require.False(t, s.Driver.IsCardInserted())
	require.Error(t, s.Shell.Process("remove"))

	require.NoError(t, s.Shell.Process("insert"))
	require.True(t, s.Driver.IsCardInserted())
	require.Error(t, s.Shell.Process("insert"))
	require.NoError(t, s.InitCard(context.Background()))
	require.True(t, s.Driver.Ready())
}
