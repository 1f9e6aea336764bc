package sd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

var (
	errInjected = errors.New("injected")

	// READ_BL_LEN=11, WRITE_BL_LEN=9, FILE_FORMAT_GRP=1.
	testCSD = [4]uint32{0x00000000, 0x000b03cb, 0xc0038000, 0x02408001}
	testCID = [4]uint32{0x03534453, 0x55303247, 0x80123456, 0x78013677}
	testSCR = []byte{0x02, 0x25, 0x80, 0x02, 0, 0, 0, 0}

	healthyInit = []string{
		"CMD0", "CMD8", "CMD55", "ACMD41", "CMD2", "CMD3", "CMD9", "CMD7",
		"CMD55", "ACMD51", "CMD55", "ACMD6", "CMD16", "CMD13", "CMD55", "ACMD13",
	}
)

type responder func(cmd *Command, data *Data) error

type fakeTransport struct {
	t         *testing.T
	log       []string
	args      []uint32
	data      []Data
	respond   map[string]responder
	app       bool
	maxBlocks uint32
	stripped  bool
	inserted  bool

	configured []TransportConfig
	clocks     []ClockTier
	widths     []BusWidth
	listeners  []PresenceListener
}

func statusResponse(word uint32) responder {
	return func(cmd *Command, data *Data) error {
		cmd.Response[0] = word
		return nil
	}
}

func failWith(err error) responder {
	return func(cmd *Command, data *Data) error {
		return err
	}
}

func fillData(b []byte) responder {
	return func(cmd *Command, data *Data) error {
		copy(data.Buffer, b)
		cmd.Response[0] = 0x900
		return nil
	}
}

func readBlocks(cmd *Command, data *Data) error {
	for n := uint32(0); n < data.BlockCount; n++ {
		block := data.Buffer[n*data.BlockSize : (n+1)*data.BlockSize]
		for i := range block {
			block[i] = byte(cmd.Argument/BlockSize + n)
		}
	}
	cmd.Response[0] = 0x900
	return nil
}

func newFakeTransport(t *testing.T) *fakeTransport {
	sdStatus := make([]byte, regs.SDStatusBytes)
	sdStatus[0] = 0x80
	sdStatus[8] = 0x04
	return &fakeTransport{
		t:         t,
		maxBlocks: 16,
		inserted:  true,
		respond: map[string]responder{
			"CMD0":   statusResponse(0),
			"CMD8":   statusResponse(0x1aa),
			"CMD55":  statusResponse(0x120),
			"ACMD41": statusResponse(0x80ff8000),
			"CMD2": func(cmd *Command, data *Data) error {
				cmd.Response = testCID
				return nil
			},
			"CMD3": statusResponse(0x12340500),
			"CMD9": func(cmd *Command, data *Data) error {
				cmd.Response = testCSD
				return nil
			},
			"CMD7":   statusResponse(0x700),
			"ACMD51": fillData(testSCR),
			"ACMD6":  statusResponse(0x920),
			"CMD16":  statusResponse(0x900),
			"CMD13":  statusResponse(0x900),
			"ACMD13": fillData(sdStatus),
			"CMD17":  readBlocks,
			"CMD18":  readBlocks,
			"CMD24":  statusResponse(0x900),
			"CMD25":  statusResponse(0x900),
		},
	}
}

func (f *fakeTransport) Transfer(cmd *Command, data *Data) error {
	key := fmt.Sprintf("CMD%d", cmd.Index)
	if f.app {
		key = "A" + key
	}
	f.app = cmd.Index == CmdAppCmd
	f.log = append(f.log, key)
	f.args = append(f.args, cmd.Argument)
	if data != nil {
		f.data = append(f.data, *data)
	}
	fn, ok := f.respond[key]
	require.Truef(f.t, ok, "unexpected command %s", key)
	return fn(cmd, data)
}

func (f *fakeTransport) Configure(conf TransportConfig) error {
	f.configured = append(f.configured, conf)
	return nil
}

func (f *fakeTransport) SetClock(c ClockTier) error {
	f.clocks = append(f.clocks, c)
	return nil
}

func (f *fakeTransport) SetBusWidth(w BusWidth) error {
	f.widths = append(f.widths, w)
	return nil
}

func (f *fakeTransport) Reset(ResetMode) error           { return nil }
func (f *fakeTransport) SendInitializationClocks() error { return nil }
func (f *fakeTransport) MaxBlocksPerTransfer() uint32    { return f.maxBlocks }
func (f *fakeTransport) R2CRCStripped() bool             { return f.stripped }
func (f *fakeTransport) IsCardInserted() bool            { return f.inserted }

func (f *fakeTransport) AddPresenceListener(l PresenceListener) {
	f.listeners = append(f.listeners, l)
}

func (f *fakeTransport) count(key string) int {
	n := 0
	for _, k := range f.log {
		if k == key {
			n++
		}
	}
	return n
}

func (f *fakeTransport) reset() {
	f.log, f.args, f.data = nil, nil, nil
}

func testConfig() *Config {
	conf := NewConfig()
	conf.VoltageRetries = 10
	conf.StatusPollLimit = 10
	return conf
}

func initDriver(t *testing.T, f *fakeTransport) *Driver {
	d := NewDriver(f, testConfig())
	require.NoError(t, d.InitCard(context.Background()))
	f.reset()
	return d
}

func TestInitCard(t *testing.T) {
	f := newFakeTransport(t)
	d := NewDriver(f, testConfig())
	require.NoError(t, d.InitTransport())
	require.NoError(t, d.InitCard(context.Background()))
	require.True(t, d.Ready())
	require.Equal(t, healthyInit, f.log)
	require.Equal(t, []ClockTier{ClockDefault}, f.clocks)
	require.Equal(t, []BusWidth{BusWidth4}, f.widths)

	// argument of CMD8, ACMD41, CMD9, CMD7, ACMD6, CMD16, CMD13.
	require.Equal(t, uint32(0x1aa), f.args[1])
	require.Equal(t, uint32(0x00310000), f.args[3])
	require.Equal(t, uint32(0x12340000), f.args[6])
	require.Equal(t, uint32(0x12340000), f.args[7])
	require.Equal(t, uint32(0x12340000), f.args[10])
	require.Equal(t, uint32(2), f.args[11])
	require.Equal(t, uint32(512), f.args[12])
	require.Equal(t, uint32(0x12340000), f.args[13])

	card := d.Card()
	require.Equal(t, uint16(0x1234), card.RCA)
	require.Equal(t, regs.OCR(0x80ff8000), card.OCR)
	require.Equal(t, testCID, card.CID)
	require.Equal(t, testCSD, card.CSD)
	require.Equal(t, [2]uint32{0x02258002, 0}, card.SCR)
	require.True(t, card.Has(AcquiredOCR|AcquiredCID|AcquiredRCA|AcquiredCSD|AcquiredSCR|AcquiredStatus|AcquiredSDStatus))

	cid, err := card.DecodedCID()
	require.NoError(t, err)
	require.Equal(t, "SU02G", cid.ProductName)
	scr, err := card.DecodedSCR()
	require.NoError(t, err)
	require.True(t, scr.Supports4Bit())
	st, err := card.DecodedSDStatus()
	require.NoError(t, err)
	require.Equal(t, 4, st.BusWidthBits())
	require.Equal(t, 10, st.SpeedClassValue())

	capacity, err := d.CapacityBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(4076863488), capacity)
	blocks, err := d.BlockCount()
	require.NoError(t, err)
	require.Equal(t, uint64(4076863488/512), blocks)
	rl, err := d.MaxReadBlockLength()
	require.NoError(t, err)
	require.Equal(t, uint16(2048), rl)
	wl, err := d.MaxWriteBlockLength()
	require.NoError(t, err)
	require.Equal(t, uint16(512), wl)
	ff, err := d.FileFormat()
	require.NoError(t, err)
	require.Equal(t, regs.FileFormatReserved, ff)
}

func TestInitCardHighCapacityRequest(t *testing.T) {
	f := newFakeTransport(t)
	conf := testConfig()
	conf.HighCapacity = true
	require.NoError(t, NewDriver(f, conf).InitCard(context.Background()))
	require.Equal(t, uint32(0x40310000), f.args[3])
}

func TestInitCardShortCircuit(t *testing.T) {
	testCases := []struct {
		key  string
		kind string
	}{
		{"CMD0", "transport"},
		{"CMD8", "transport"},
		{"ACMD41", "retry-exhausted"},
		{"CMD2", "transport"},
		{"CMD3", "transport"},
		{"CMD9", "transport"},
		{"CMD7", "transport"},
		{"ACMD51", "transport"},
		{"ACMD6", "transport"},
		{"CMD16", "transport"},
		{"CMD13", "transport"},
		{"ACMD13", "transport"},
	}
	steps := InitSteps()
	require.Len(t, steps, len(testCases))

	for n, tc := range testCases {
		t.Run(steps[n], func(t *testing.T) {
			f := newFakeTransport(t)
			f.respond[tc.key] = failWith(errInjected)
			conf := testConfig()
			conf.VoltageRetries = 1
			d := NewDriver(f, conf)
			err := d.InitCard(context.Background())
			require.Error(t, err)
			require.False(t, d.Ready())
			require.Equal(t, tc.kind, ErrorKind(err))
			require.True(t, strings.HasPrefix(err.Error(), "init "+steps[n]+": "), err.Error())

			last := 0
			for i, k := range healthyInit {
				if k == tc.key {
					last = i
					break
				}
			}
			require.Equal(t, healthyInit[:last+1], f.log)
		})
	}
}

func TestInitCardVoltageRetries(t *testing.T) {
	testCases := []struct {
		name     string
		readyAt  int
		retries  int
		attempts int
		err      error
	}{
		{"ready immediately", 1, 1000, 1, nil},
		{"ready on third", 3, 1000, 3, nil},
		{"ready on last", 5, 5, 5, nil},
		{"never ready", 0, 5, 5, ErrRetryExhausted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeTransport(t)
			attempts := 0
			f.respond["ACMD41"] = func(cmd *Command, data *Data) error {
				attempts++
				cmd.Response[0] = 0x00ff8000
				if attempts == tc.readyAt {
					cmd.Response[0] |= uint32(regs.OCRPowerUp)
				}
				return nil
			}
			conf := testConfig()
			conf.VoltageRetries = tc.retries
			err := NewDriver(f, conf).InitCard(context.Background())
			require.Equal(t, tc.attempts, attempts)
			require.Equal(t, tc.attempts, f.count("CMD55")-countAfterVoltage(f))
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.True(t, IsRetryExhausted(err))
				require.False(t, IsTransportError(err))
				require.NotContains(t, f.log, "CMD2")
			}
		})
	}
}

// countAfterVoltage counts CMD55 issued after the voltage negotiation.
func countAfterVoltage(f *fakeTransport) int {
	n := 0
	seen := false
	for _, k := range f.log {
		if k == "CMD2" {
			seen = true
		}
		if seen && k == "CMD55" {
			n++
		}
	}
	return n
}

func TestInitCardVoltageTransportErrorsConsumeAttempts(t *testing.T) {
	f := newFakeTransport(t)
	attempts := 0
	f.respond["ACMD41"] = func(cmd *Command, data *Data) error {
		attempts++
		if attempts < 3 {
			return errInjected
		}
		cmd.Response[0] = 0x80ff8000
		return nil
	}
	require.NoError(t, NewDriver(f, testConfig()).InitCard(context.Background()))
	require.Equal(t, 3, attempts)
}

func TestInitCardProtocolErrors(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		respond func() responder
		step    string
		cmd     uint8
	}{
		{"check pattern mismatch", "CMD8", func() responder { return statusResponse(0x1ab) }, "interface condition", CmdSendIfCond},
		{"select wrong state", "CMD7", func() responder { return statusResponse(0x900) }, "select card", CmdSelectCard},
		{"status not ready", "CMD13", func() responder { return statusResponse(0x800) }, "card status", CmdSendStatus},
		{"app cmd not acknowledged", "CMD55", func() responder {
			calls := 0
			return func(cmd *Command, data *Data) error {
				calls++
				if calls == 1 {
					cmd.Response[0] = 0x120
				}
				return nil
			}
		}, "configuration register", CmdAppCmd},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeTransport(t)
			f.respond[tc.key] = tc.respond()
			d := NewDriver(f, testConfig())
			err := d.InitCard(context.Background())
			require.True(t, IsProtocolError(err))
			require.False(t, d.Ready())
			require.Contains(t, err.Error(), tc.step)
			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.cmd, perr.Cmd)
		})
	}

	f := newFakeTransport(t)
	f.respond["CMD8"] = statusResponse(0x1ab)
	require.Error(t, NewDriver(f, testConfig()).InitCard(context.Background()))
	require.Equal(t, []string{"CMD0", "CMD8"}, f.log)
}

func TestInitCardCanceled(t *testing.T) {
	f := newFakeTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewDriver(f, testConfig()).InitCard(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, f.log)
}

func TestReinitResetsReadiness(t *testing.T) {
	f := newFakeTransport(t)
	d := initDriver(t, f)
	f.respond["CMD2"] = failWith(errInjected)
	require.Error(t, d.InitCard(context.Background()))
	require.False(t, d.Ready())
	_, err := d.CapacityBytes()
	require.Equal(t, ErrNotAcquired, err)
	require.Equal(t, ErrNotInitialized, d.ReadBlocks(context.Background(), make([]byte, 512), 0, 1))
}

func TestInitTransportIdempotent(t *testing.T) {
	f := newFakeTransport(t)
	d := NewDriver(f, nil)
	require.NoError(t, d.InitTransport())
	require.NoError(t, d.InitTransport())
	require.Equal(t, []TransportConfig{{Frequency: 400000, ReadWatermarkLevel: 64, WriteWatermarkLevel: 64}}, f.configured)
}

func TestQueriesBeforeInit(t *testing.T) {
	d := NewDriver(newFakeTransport(t), testConfig())
	_, err := d.CapacityBytes()
	require.Equal(t, ErrNotAcquired, err)
	_, err = d.MaxReadBlockLength()
	require.Equal(t, ErrNotAcquired, err)
	_, err = d.FileFormat()
	require.Equal(t, ErrNotAcquired, err)
	card := d.Card()
	_, err = card.DecodedCID()
	require.Equal(t, ErrNotAcquired, err)
	require.Equal(t, ErrNotInitialized, d.ReadBlocks(context.Background(), make([]byte, 512), 0, 1))
	require.Equal(t, uint32(1), d.MaxBurst())
}

func TestUnsupportedCSD(t *testing.T) {
	f := newFakeTransport(t)
	f.respond["CMD9"] = func(cmd *Command, data *Data) error {
		cmd.Response = [4]uint32{0x40000000, 0x00090000, 0, 0}
		return nil
	}
	d := initDriver(t, f)
	_, err := d.CapacityBytes()
	require.Equal(t, ErrUnsupportedCard, err)
	require.True(t, IsUnsupportedCard(err))
	require.True(t, errors.Is(err, regs.ErrUnsupportedCSD))
	require.Equal(t, "unsupported card: unsupported CSD structure", err.Error())
	_, err = d.MaxWriteBlockLength()
	require.Equal(t, ErrUnsupportedCard, err)
}

func TestCRCStrippedRegisters(t *testing.T) {
	f := newFakeTransport(t)
	f.stripped = true
	f.respond["CMD9"] = func(cmd *Command, data *Data) error {
		cmd.Response = [4]uint32{0x00002600, 0x325b5900, 0xffc00380, 0x00024008}
		return nil
	}
	d := initDriver(t, f)
	capacity, err := d.CapacityBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(268435456), capacity)
	require.Equal(t, uint32(1), d.MaxBurst())
}

func TestReadBlocksSegmented(t *testing.T) {
	testCases := []struct {
		name      string
		maxBlocks uint32
		count     uint32
		cmds      []string
		counts    []uint32
	}{
		{"bursts of four", 16, 10, []string{"CMD18", "CMD18", "CMD18"}, []uint32{4, 4, 2}},
		{"transport limit", 2, 5, []string{"CMD18", "CMD18", "CMD17"}, []uint32{2, 2, 1}},
		{"single block", 16, 1, []string{"CMD17"}, []uint32{1}},
		{"one block per transfer", 1, 3, []string{"CMD17", "CMD17", "CMD17"}, []uint32{1, 1, 1}},
		{"zero transport limit", 0, 2, []string{"CMD17", "CMD17"}, []uint32{1, 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeTransport(t)
			f.maxBlocks = tc.maxBlocks
			d := initDriver(t, f)
			const addr = 7
			buf := make([]byte, tc.count*BlockSize)
			require.NoError(t, d.ReadBlocks(context.Background(), buf, addr, tc.count))

			var cmds []string
			for _, k := range f.log {
				if k != "CMD13" {
					cmds = append(cmds, k)
				}
			}
			require.Equal(t, tc.cmds, cmds)
			require.Equal(t, len(tc.counts), f.count("CMD13"))
			require.Len(t, f.data, len(tc.counts))
			for n, data := range f.data {
				require.Equal(t, tc.counts[n], data.BlockCount)
				require.Equal(t, uint32(BlockSize), data.BlockSize)
				require.Len(t, data.Buffer, int(tc.counts[n]*BlockSize))
				require.Equal(t, data.BlockCount > 1, data.AutoStop)
				require.False(t, data.Write)
			}
			for n := uint32(0); n < tc.count; n++ {
				require.Equal(t, byte(addr+n), buf[n*BlockSize])
				require.Equal(t, byte(addr+n), buf[(n+1)*BlockSize-1])
			}
		})
	}
}

func TestReadBlocksAddressing(t *testing.T) {
	testCases := []struct {
		name string
		ocr  uint32
		args []uint32
	}{
		{"byte addressed", 0x80ff8000, []uint32{0x900, 100 * 512, 0x900, 104 * 512}},
		{"block addressed", 0xc0ff8000, []uint32{0x900, 100, 0x900, 104}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeTransport(t)
			f.respond["ACMD41"] = statusResponse(tc.ocr)
			d := initDriver(t, f)
			require.NoError(t, d.ReadBlocks(context.Background(), make([]byte, 5*BlockSize), 100, 5))
			// CMD13 carries RCA 0x1234.
			expect := append([]uint32(nil), tc.args...)
			expect[0], expect[2] = 0x12340000, 0x12340000
			require.Equal(t, expect, f.args)
		})
	}
}

func TestReadBlocksErrors(t *testing.T) {
	f := newFakeTransport(t)
	d := initDriver(t, f)
	require.Equal(t, ErrShortBuffer, d.ReadBlocks(context.Background(), make([]byte, 1023), 0, 2))
	require.Empty(t, f.log)

	require.NoError(t, d.ReadBlocks(context.Background(), nil, 0, 0))
	require.Empty(t, f.log)

	calls := 0
	f.respond["CMD18"] = func(cmd *Command, data *Data) error {
		calls++
		if calls == 2 {
			return errInjected
		}
		return readBlocks(cmd, data)
	}
	err := d.ReadBlocks(context.Background(), make([]byte, 10*BlockSize), 0, 10)
	require.True(t, IsTransportError(err))
	require.True(t, errors.Is(err, errInjected))
	require.Equal(t, []string{"CMD13", "CMD18", "CMD13", "CMD18"}, f.log)

	f.reset()
	f.respond["CMD13"] = failWith(errInjected)
	err = d.ReadBlocks(context.Background(), make([]byte, BlockSize), 0, 1)
	require.True(t, IsTransportError(err))
	require.Equal(t, []string{"CMD13"}, f.log)
}

func TestReadBlocksOutOfRange(t *testing.T) {
	const (
		byteAddressed  = 0x80ff8000
		blockAddressed = 0xc0ff8000
		// blocks of testCSD.
		capacity = 7962624
	)
	csdV2 := func(cmd *Command, data *Data) error {
		cmd.Response = [4]uint32{0x40000000, 0x00090000, 0, 0}
		return nil
	}

	testCases := []struct {
		name        string
		ocr         uint32
		csd         responder
		addr, count uint32
		arg         uint32
		err         error
	}{
		{"last block", byteAddressed, nil, capacity - 1, 1, (capacity - 1) * BlockSize, nil},
		{"past capacity", byteAddressed, nil, capacity, 1, 0, ErrOutOfRange},
		{"straddles capacity", byteAddressed, nil, capacity - 1, 2, 0, ErrOutOfRange},
		{"last byte address", byteAddressed, csdV2, 1<<23 - 1, 1, 0xfffffe00, nil},
		{"byte address overflow", byteAddressed, csdV2, 1 << 23, 1, 0, ErrOutOfRange},
		{"byte address overflow in burst", byteAddressed, csdV2, 1<<23 - 1, 2, 0, ErrOutOfRange},
		{"last block address", blockAddressed, csdV2, 0xffffffff, 1, 0xffffffff, nil},
		{"block address overflow", blockAddressed, csdV2, 0xffffffff, 2, 0, ErrOutOfRange},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeTransport(t)
			f.respond["ACMD41"] = statusResponse(tc.ocr)
			if tc.csd != nil {
				f.respond["CMD9"] = tc.csd
			}
			d := initDriver(t, f)
			buf := make([]byte, tc.count*BlockSize)
			err := d.ReadBlocks(context.Background(), buf, tc.addr, tc.count)
			if tc.err != nil {
				require.Equal(t, tc.err, err)
				require.Empty(t, f.log)
				require.Equal(t, tc.err, d.WriteBlocks(context.Background(), buf, tc.addr, tc.count))
				require.Empty(t, f.log)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.arg, f.args[len(f.args)-1])
		})
	}
}

func TestReadBlocksStatusPolling(t *testing.T) {
	f := newFakeTransport(t)
	d := initDriver(t, f)
	polls := 0
	f.respond["CMD13"] = func(cmd *Command, data *Data) error {
		polls++
		cmd.Response[0] = 0xa00
		if polls > 3 {
			cmd.Response[0] = 0x900
		}
		return nil
	}
	require.NoError(t, d.ReadBlocks(context.Background(), make([]byte, BlockSize), 0, 1))
	require.Equal(t, 4, polls)
	require.Equal(t, 1, f.count("CMD17"))

	f.reset()
	f.respond["CMD13"] = statusResponse(0xa00)
	err := d.ReadBlocks(context.Background(), make([]byte, BlockSize), 0, 1)
	require.True(t, errors.Is(err, ErrNotReady))
	require.Equal(t, testConfig().StatusPollLimit, f.count("CMD13"))
	require.Zero(t, f.count("CMD17"))
}

func TestWriteBlocks(t *testing.T) {
	f := newFakeTransport(t)
	d := initDriver(t, f)
	require.Equal(t, uint32(1), d.MaxWriteBurst())
	buf := make([]byte, 3*BlockSize)
	for i := range buf {
		buf[i] = byte(i / BlockSize)
	}
	require.NoError(t, d.WriteBlocks(context.Background(), buf, 10, 3))
	require.Equal(t, 3, f.count("CMD24"))
	require.Len(t, f.data, 3)
	for n, data := range f.data {
		require.True(t, data.Write)
		require.False(t, data.AutoStop)
		require.Equal(t, byte(n), data.Buffer[0])
	}
	require.Equal(t, uint32(12*512), f.args[len(f.args)-1])
}

func TestReadAt(t *testing.T) {
	f := newFakeTransport(t)
	d := initDriver(t, f)
	p := make([]byte, 2*BlockSize)
	n, err := d.ReadAt(p, 3*BlockSize)
	require.NoError(t, err)
	require.Equal(t, len(p), n)
	require.Equal(t, byte(3), p[0])
	require.Equal(t, byte(4), p[BlockSize])

	_, err = d.ReadAt(p, 100)
	require.Equal(t, ErrUnaligned, err)
	_, err = d.ReadAt(make([]byte, 100), 0)
	require.Equal(t, ErrUnaligned, err)
	_, err = d.WriteAt(p, -512)
	require.Equal(t, ErrUnaligned, err)

	f.reset()
	for _, off := range []int64{1 << 41, 1<<41 + 2*BlockSize, 7962624 * BlockSize} {
		_, err = d.ReadAt(p, off)
		require.Equal(t, ErrOutOfRange, err, "%x", off)
		_, err = d.WriteAt(p, off)
		require.Equal(t, ErrOutOfRange, err, "%x", off)
	}
	require.Empty(t, f.log)
}

func TestPresence(t *testing.T) {
	f := newFakeTransport(t)
	d := NewDriver(f, testConfig())
	require.True(t, d.IsCardInserted())

	var inserted, removed int
	d.OnCardInserted(func() { inserted++ })
	d.OnCardRemoved(func() { removed++ })
	ch := make(PresenceChan, 1)
	d.AddPresenceListener(ch)
	require.Len(t, f.listeners, 3)

	for _, l := range f.listeners {
		l.CardInserted()
	}
	require.Equal(t, 1, inserted)
	require.Equal(t, 0, removed)
	require.Equal(t, PresenceEvent{Inserted: true}, <-ch)

	for _, l := range f.listeners {
		l.CardRemoved()
		l.CardRemoved()
	}
	require.Equal(t, 2, removed)
	require.Equal(t, PresenceEvent{}, <-ch)
	select {
	case <-ch:
		t.Fatal("event not dropped")
	default:
	}
}

func TestEject(t *testing.T) {
	d := initDriver(t, newFakeTransport(t))
	require.True(t, d.Ready())
	d.Eject()
	require.False(t, d.Ready())
	_, err := d.CapacityBytes()
	require.Equal(t, ErrNotAcquired, err)
}
