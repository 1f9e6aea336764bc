package sd

import (
	"context"
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// MaxBurst returns the most blocks moved by one read command.
func (d *Driver) MaxBurst() uint32 {
	return d.maxBurst(d.card.ReadBlLen())
}

// MaxWriteBurst returns the most blocks moved by one write command.
func (d *Driver) MaxWriteBurst() uint32 {
	r, err := d.card.CSDRegister()
	if err != nil {
		return 1
	}
	return d.maxBurst(r.Field(regs.CSDWriteBlLen))
}

func (d *Driver) maxBurst(blLen uint32) uint32 {
	burst := uint32(1)
	if blLen > 9 && blLen < 32 {
		burst = (uint32(1) << blLen) / BlockSize
	}
	if limit := d.transport.MaxBlocksPerTransfer(); limit < burst {
		burst = limit
	}
	if burst < 1 {
		burst = 1
	}
	return burst
}

func (d *Driver) blockArg(addr uint32) uint32 {
	if d.card.HighCapacity() {
		return addr
	}
	return addr * BlockSize
}

// waitReady polls SEND_STATUS until the card is ready for data.
func (d *Driver) waitReady(ctx context.Context) error {
	for polls := 0; d.conf.StatusPollLimit <= 0 || polls < d.conf.StatusPollLimit; polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := d.sendStatus()
		if err != nil {
			return err
		}
		if st.ReadyForData {
			return nil
		}
	}
	return ErrNotReady
}

// addressLimit is one past the last block a command argument can address.
func (d *Driver) addressLimit() uint64 {
	if d.card.HighCapacity() {
		return math.MaxUint32 + 1
	}
	return (math.MaxUint32 + 1) / BlockSize
}

func (d *Driver) checkTransfer(buf []byte, addr, count uint32) error {
	if !d.ready {
		return ErrNotInitialized
	}
	if uint64(len(buf)) < uint64(count)*BlockSize {
		return ErrShortBuffer
	}
	if count == 0 {
		return nil
	}
	end := uint64(addr) + uint64(count)
	if end > d.addressLimit() {
		return ErrOutOfRange
	}
	// Only CSD v1 tells the capacity.
	if blocks, err := d.BlockCount(); err == nil && end > blocks {
		return ErrOutOfRange
	}
	return nil
}

// ReadBlocks reads count 512-byte blocks starting at block addr into buf.
// Either all blocks are read or an error is returned.
func (d *Driver) ReadBlocks(ctx context.Context, buf []byte, addr, count uint32) error {
	if err := d.checkTransfer(buf, addr, count); err != nil {
		return err
	}
	return d.transferBlocks(ctx, buf, addr, count, d.MaxBurst(), false)
}

// WriteBlocks writes count 512-byte blocks from buf starting at block addr.
func (d *Driver) WriteBlocks(ctx context.Context, buf []byte, addr, count uint32) error {
	if err := d.checkTransfer(buf, addr, count); err != nil {
		return err
	}
	return d.transferBlocks(ctx, buf, addr, count, d.MaxWriteBurst(), true)
}

func (d *Driver) transferBlocks(ctx context.Context, buf []byte, addr, count, maxBurst uint32, write bool) error {
	for count > 0 {
		if err := d.waitReady(ctx); err != nil {
			return errors.Wrapf(err, "block %d", addr)
		}
		burst := count
		if burst > maxBurst {
			burst = maxBurst
		}
		data := &Data{
			BlockSize:  BlockSize,
			BlockCount: burst,
			Buffer:     buf[:burst*BlockSize],
			Write:      write,
		}
		index := CmdReadSingleBlock
		if write {
			index = CmdWriteBlock
		}
		if burst > 1 {
			index = CmdReadMultipleBlock
			if write {
				index = CmdWriteMultiple
			}
			data.AutoStop = true
		}
		glog.V(4).Infof("CMD%d block %d x %d", index, addr, burst)
		if _, err := d.command(index, d.blockArg(addr), ResponseR1, data); err != nil {
			return errors.Wrapf(err, "block %d", addr)
		}
		buf = buf[burst*BlockSize:]
		addr += burst
		count -= burst
	}
	return nil
}

func blockRange(p []byte, off int64) (addr, count uint32, err error) {
	if off < 0 || off%BlockSize != 0 || len(p)%BlockSize != 0 {
		return 0, 0, ErrUnaligned
	}
	if off/BlockSize > math.MaxUint32 || uint64(len(p)/BlockSize) > math.MaxUint32 {
		return 0, 0, ErrOutOfRange
	}
	return uint32(off / BlockSize), uint32(len(p) / BlockSize), nil
}

// ReadAt implements io.ReaderAt. Offset and length must be block aligned.
func (d *Driver) ReadAt(p []byte, off int64) (int, error) {
	addr, count, err := blockRange(p, off)
	if err != nil {
		return 0, err
	}
	if err := d.ReadBlocks(context.Background(), p, addr, count); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt. Offset and length must be block aligned.
func (d *Driver) WriteAt(p []byte, off int64) (int, error) {
	addr, count, err := blockRange(p, off)
	if err != nil {
		return 0, err
	}
	if err := d.WriteBlocks(context.Background(), p, addr, count); err != nil {
		return 0, err
	}
	return len(p), nil
}
