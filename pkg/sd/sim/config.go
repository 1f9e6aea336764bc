package sim

import (
	"flag"
	"log"
	"os"
	"strconv"
)

// Config defines the emulated card and host.
type Config struct {
	// ImagePath is the card image file, empty uses MemorySize bytes of memory.
	ImagePath  string
	MemorySize int64
	// BusyPolls is the number of ACMD41 replies before power up completes.
	BusyPolls int
	// WriteBusyPolls is the number of SEND_STATUS replies without
	// READY_FOR_DATA after a write.
	WriteBusyPolls int
	// HighCapacity emulates a block addressed card with a version 2.0 CSD.
	HighCapacity bool
	// MaxBlocks is the host limit of blocks per transfer.
	MaxBlocks uint32
	// CRCStripped emulates a host delivering R2 without CRC7 and end bit.
	CRCStripped bool
	RCA         uint16
}

var defaultConfig = Config{
	MemorySize: 16 << 20,
	BusyPolls:  2,
	MaxBlocks:  16,
	RCA:        0xb368,
}

func init() {
	if val := os.Getenv("SDCARD_SIM_IMAGE"); val != "" {
		defaultConfig.ImagePath = val
	}
	if val := os.Getenv("SDCARD_SIM_BUSY_POLLS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.BusyPolls = n
		}
	}
	if val := os.Getenv("SDCARD_SIM_CRC_STRIPPED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			defaultConfig.CRCStripped = b
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ImagePath, "sim-image", defaultConfig.ImagePath, "Emulated card image file.")
	flag.Int64Var(&defaultConfig.MemorySize, "sim-size", defaultConfig.MemorySize, "Emulated card size without image.")
	flag.IntVar(&defaultConfig.BusyPolls, "sim-busy", defaultConfig.BusyPolls, "ACMD41 busy replies before ready.")
	flag.BoolVar(&defaultConfig.HighCapacity, "sim-hc", defaultConfig.HighCapacity, "Emulate a high capacity card.")
	flag.BoolVar(&defaultConfig.CRCStripped, "sim-crc-stripped", defaultConfig.CRCStripped, "Strip CRC from R2 responses.")
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

// NewMedium opens the configured medium.
func (c *Config) NewMedium() (Medium, error) {
	if c.ImagePath != "" {
		return OpenImage(c.ImagePath)
	}
	return NewMemory(c.MemorySize), nil
}

// NewHost creates a Host with a card inserted.
func (c *Config) NewHost() (*Host, error) {
	medium, err := c.NewMedium()
	if err != nil {
		return nil, err
	}
	card, err := NewCard(medium, c)
	if err != nil {
		return nil, err
	}
	host := NewHost(c)
	host.Insert(card)
	return host, nil
}

// MustNewHost creates a Host and fails on error.
func (c *Config) MustNewHost() *Host {
	host, err := c.NewHost()
	if err != nil {
		log.Fatalln(err)
	}
	return host
}
