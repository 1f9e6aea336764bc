package sd

import (
	"flag"
	"os"
	"strconv"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// Config defines the driver options.
type Config struct {
	// VoltageRetries is the maximum number of ACMD41 attempts.
	VoltageRetries int
	// StatusPollLimit bounds SEND_STATUS polling before a transfer.
	// 0 polls forever.
	StatusPollLimit int
	// HighCapacity requests HCS during voltage negotiation.
	HighCapacity bool
	// InitFrequency is the host clock used by InitTransport.
	InitFrequency uint32
	// ReadWatermark and WriteWatermark are the host FIFO levels.
	ReadWatermark  uint32
	WriteWatermark uint32
}

// BlockSize is the transfer unit of all data commands.
const BlockSize = 512

const (
	checkPattern  = 0xAA
	ifCondVoltage = 0x100
	// 2.8-2.9V, 3.2-3.3V and 3.3-3.4V.
	ocrVoltageWindow = regs.OCR28to29 | regs.OCR32to33 | regs.OCR33to34
	busWidth4Arg     = 0x2
)

var defaultConfig = Config{
	VoltageRetries:  1000,
	StatusPollLimit: 100000,
	InitFrequency:   400000,
	ReadWatermark:   64,
	WriteWatermark:  64,
}

func init() {
	if val := os.Getenv("SDCARD_VOLTAGE_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.VoltageRetries = n
		}
	}
	if val := os.Getenv("SDCARD_STATUS_POLL_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.StatusPollLimit = n
		}
	}
	if val := os.Getenv("SDCARD_HIGH_CAPACITY"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			defaultConfig.HighCapacity = b
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.VoltageRetries, "sd-voltage-retries", defaultConfig.VoltageRetries, "Max ACMD41 attempts.")
	flag.IntVar(&defaultConfig.StatusPollLimit, "sd-status-polls", defaultConfig.StatusPollLimit, "Max SEND_STATUS polls before a transfer, 0 for unbounded.")
	flag.BoolVar(&defaultConfig.HighCapacity, "sd-hcs", defaultConfig.HighCapacity, "Request high capacity support.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewDriver creates a Driver on the transport using current config.
func (c *Config) NewDriver(t Transport) *Driver {
	return NewDriver(t, c)
}
