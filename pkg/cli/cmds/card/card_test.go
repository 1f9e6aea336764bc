package card

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/regs"
	"github.com/robotalks/sdcard.go/pkg/sd/sim"
)

func TestParseBlocks(t *testing.T) {
	testCases := []struct {
		args        []string
		addr, count uint32
		ok          bool
	}{
		{[]string{"0"}, 0, 1, true},
		{[]string{"0x10", "4"}, 16, 4, true},
		{[]string{"7", "0"}, 0, 0, false},
		{[]string{"x"}, 0, 0, false},
		{[]string{"1", "y"}, 0, 0, false},
		{nil, 0, 0, false},
		{[]string{"1", "2", "3"}, 0, 0, false},
	}
	for _, tc := range testCases {
		addr, count, err := ParseBlocks(tc.args)
		if !tc.ok {
			require.Error(t, err, "%v", tc.args)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.addr, addr)
		require.Equal(t, tc.count, count)
	}
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "512 B", FormatSize(512))
	require.Equal(t, "16 MiB", FormatSize(16<<20))
	require.Equal(t, "1.5 GiB", FormatSize(3<<29))
}

func TestFormatStatus(t *testing.T) {
	st := regs.DecodeCardStatus(regs.EncodeCardStatus(regs.StateTran, true, false, 0))
	lines := FormatStatus(st)
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "tran")

	st = regs.DecodeCardStatus(regs.EncodeCardStatus(regs.StateTran, false, false, 1<<31))
	lines = FormatStatus(st)
	require.Len(t, lines, 4)
	require.Contains(t, lines[3], "80000000")
}

func TestFormatCard(t *testing.T) {
	conf := sim.NewConfig()
	conf.ImagePath = ""
	conf.MemorySize = 16 << 20
	conf.CRCStripped = false
	host, err := conf.NewHost()
	require.NoError(t, err)
	d := sd.NewDriver(host, nil)
	require.NoError(t, d.InitTransport())
	require.NoError(t, d.InitCard(context.Background()))

	fields, err := DecodeCSDFields(d.Card())
	require.NoError(t, err)
	require.Equal(t, uint32(0), fields.Structure)
	require.Len(t, fields.Raw, 32)
	require.Len(t, FormatCSD(fields), 8)

	info := msgs.NewCardInfo("slot0", d)
	lines := FormatInfo(info)
	require.Contains(t, lines[1], "EMUSD")
	require.Contains(t, lines[4], "16 MiB")

	_, err = DecodeCSDFields(sd.Card{})
	require.Equal(t, sd.ErrNotAcquired, err)
}
