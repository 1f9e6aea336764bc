// Package msgs defines card events published by slot monitors.
//
// Producer: slot monitor (sdmon)
// Consumer: event subscribers (sdwatch, websocket clients, event logs)
package msgs

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/regs"
)

// CardInfo describes an initialized card.
type CardInfo struct {
	Slot                string `protobuf:"bytes,1,opt,name=slot,proto3" json:"slot,omitempty"`
	RCA                 uint32 `protobuf:"varint,2,opt,name=rca,proto3" json:"rca,omitempty"`
	ManufacturerID      uint32 `protobuf:"varint,3,opt,name=manufacturer_id,json=manufacturerId,proto3" json:"manufacturer_id,omitempty"`
	OEMID               string `protobuf:"bytes,4,opt,name=oem_id,json=oemId,proto3" json:"oem_id,omitempty"`
	ProductName         string `protobuf:"bytes,5,opt,name=product_name,json=productName,proto3" json:"product_name,omitempty"`
	Revision            string `protobuf:"bytes,6,opt,name=revision,proto3" json:"revision,omitempty"`
	SerialNumber        uint32 `protobuf:"varint,7,opt,name=serial_number,json=serialNumber,proto3" json:"serial_number,omitempty"`
	ManufactureDate     string `protobuf:"bytes,8,opt,name=manufacture_date,json=manufactureDate,proto3" json:"manufacture_date,omitempty"`
	CapacityBytes       uint64 `protobuf:"varint,9,opt,name=capacity_bytes,json=capacityBytes,proto3" json:"capacity_bytes,omitempty"`
	MaxReadBlockLength  uint32 `protobuf:"varint,10,opt,name=max_read_block_length,json=maxReadBlockLength,proto3" json:"max_read_block_length,omitempty"`
	MaxWriteBlockLength uint32 `protobuf:"varint,11,opt,name=max_write_block_length,json=maxWriteBlockLength,proto3" json:"max_write_block_length,omitempty"`
	FileFormat          string `protobuf:"bytes,12,opt,name=file_format,json=fileFormat,proto3" json:"file_format,omitempty"`
	SpecVersion         string `protobuf:"bytes,13,opt,name=spec_version,json=specVersion,proto3" json:"spec_version,omitempty"`
	BusWidth            uint32 `protobuf:"varint,14,opt,name=bus_width,json=busWidth,proto3" json:"bus_width,omitempty"`
	SpeedClass          uint32 `protobuf:"varint,15,opt,name=speed_class,json=speedClass,proto3" json:"speed_class,omitempty"`
	HighCapacity        bool   `protobuf:"varint,16,opt,name=high_capacity,json=highCapacity,proto3" json:"high_capacity,omitempty"`
	Cid                 []byte `protobuf:"bytes,17,opt,name=cid,proto3" json:"cid,omitempty"`
	Csd                 []byte `protobuf:"bytes,18,opt,name=csd,proto3" json:"csd,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *CardInfo) TypeID() uint32 { return CardInfoTypeID }

// NewMessage implements SerializableMessage.
func (m *CardInfo) NewMessage() SerializableMessage { return &CardInfo{} }

// ProtoMessage implements proto.Message.
func (m *CardInfo) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CardInfo) Reset() { *m = CardInfo{} }

// String implements proto.Message.
func (m *CardInfo) String() string { return proto.CompactTextString(m) }

// CardInserted is the event of a card inserted into the slot.
type CardInserted struct {
	Slot string `protobuf:"bytes,1,opt,name=slot,proto3" json:"slot,omitempty"`
	Time int64  `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *CardInserted) TypeID() uint32 { return CardInsertedTypeID }

// NewMessage implements SerializableMessage.
func (m *CardInserted) NewMessage() SerializableMessage { return &CardInserted{} }

// ProtoMessage implements proto.Message.
func (m *CardInserted) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CardInserted) Reset() { *m = CardInserted{} }

// String implements proto.Message.
func (m *CardInserted) String() string { return proto.CompactTextString(m) }

// CardRemoved is the event of a card removed from the slot.
type CardRemoved struct {
	Slot string `protobuf:"bytes,1,opt,name=slot,proto3" json:"slot,omitempty"`
	Time int64  `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *CardRemoved) TypeID() uint32 { return CardRemovedTypeID }

// NewMessage implements SerializableMessage.
func (m *CardRemoved) NewMessage() SerializableMessage { return &CardRemoved{} }

// ProtoMessage implements proto.Message.
func (m *CardRemoved) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CardRemoved) Reset() { *m = CardRemoved{} }

// String implements proto.Message.
func (m *CardRemoved) String() string { return proto.CompactTextString(m) }

// CardReady is the event of a card completing initialization.
type CardReady struct {
	Info *CardInfo `protobuf:"bytes,1,opt,name=info,proto3" json:"info,omitempty"`
	Time int64     `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *CardReady) TypeID() uint32 { return CardReadyTypeID }

// NewMessage implements SerializableMessage.
func (m *CardReady) NewMessage() SerializableMessage { return &CardReady{} }

// ProtoMessage implements proto.Message.
func (m *CardReady) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CardReady) Reset() { *m = CardReady{} }

// String implements proto.Message.
func (m *CardReady) String() string { return proto.CompactTextString(m) }

// InitFailed is the event of a failed initialization attempt.
type InitFailed struct {
	Slot    string `protobuf:"bytes,1,opt,name=slot,proto3" json:"slot,omitempty"`
	Kind    string `protobuf:"bytes,2,opt,name=kind,proto3" json:"kind,omitempty"`
	Error   string `protobuf:"bytes,3,opt,name=error,proto3" json:"error,omitempty"`
	Attempt uint32 `protobuf:"varint,4,opt,name=attempt,proto3" json:"attempt,omitempty"`
	Time    int64  `protobuf:"varint,5,opt,name=time,proto3" json:"time,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *InitFailed) TypeID() uint32 { return InitFailedTypeID }

// NewMessage implements SerializableMessage.
func (m *InitFailed) NewMessage() SerializableMessage { return &InitFailed{} }

// ProtoMessage implements proto.Message.
func (m *InitFailed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *InitFailed) Reset() { *m = InitFailed{} }

// String implements proto.Message.
func (m *InitFailed) String() string { return proto.CompactTextString(m) }

// GroupCard is the type ID group of card events.
const GroupCard uint32 = 0x00010000

// TypeIDs
const (
	CardInfoTypeID     uint32 = GroupCard | 0x0000
	CardInsertedTypeID uint32 = GroupCard | TypeIDKindEvent | 0x0001
	CardRemovedTypeID  uint32 = GroupCard | TypeIDKindEvent | 0x0002
	CardReadyTypeID    uint32 = GroupCard | TypeIDKindEvent | 0x0003
	InitFailedTypeID   uint32 = GroupCard | TypeIDKindEvent | 0x0004
)

// NewCardInserted creates a CardInserted event.
func NewCardInserted(slot string, t time.Time) *CardInserted {
	return &CardInserted{Slot: slot, Time: t.UnixNano()}
}

// NewCardRemoved creates a CardRemoved event.
func NewCardRemoved(slot string, t time.Time) *CardRemoved {
	return &CardRemoved{Slot: slot, Time: t.UnixNano()}
}

// NewInitFailed creates an InitFailed event.
func NewInitFailed(slot string, attempt int, err error, t time.Time) *InitFailed {
	return &InitFailed{
		Slot:    slot,
		Kind:    sd.ErrorKind(err),
		Error:   err.Error(),
		Attempt: uint32(attempt),
		Time:    t.UnixNano(),
	}
}

// NewCardReady creates a CardReady event.
func NewCardReady(info *CardInfo, t time.Time) *CardReady {
	return &CardReady{Info: info, Time: t.UnixNano()}
}

// NewCardInfo collects information of the card initialized by the driver.
// Fields not available from the card are left empty.
func NewCardInfo(slot string, d *sd.Driver) *CardInfo {
	card := d.Card()
	info := &CardInfo{
		Slot:         slot,
		RCA:          uint32(card.RCA),
		HighCapacity: card.HighCapacity(),
	}
	if cid, err := card.DecodedCID(); err == nil {
		info.ManufacturerID = uint32(cid.ManufacturerID)
		info.OEMID = cid.OEMID
		info.ProductName = cid.ProductName
		info.Revision = cid.RevisionString()
		info.SerialNumber = cid.SerialNumber
		info.ManufactureDate = fmt.Sprintf("%04d-%02d", cid.Year, cid.Month)
		info.Cid = regs.BytesFromWords(card.CID[:])
	}
	if card.Has(sd.AcquiredCSD) {
		info.Csd = regs.BytesFromWords(card.CSD[:])
	}
	if c, err := d.CapacityBytes(); err == nil {
		info.CapacityBytes = c
	}
	if l, err := d.MaxReadBlockLength(); err == nil {
		info.MaxReadBlockLength = uint32(l)
	}
	if l, err := d.MaxWriteBlockLength(); err == nil {
		info.MaxWriteBlockLength = uint32(l)
	}
	if f, err := d.FileFormat(); err == nil {
		info.FileFormat = f.String()
	}
	if scr, err := card.DecodedSCR(); err == nil {
		info.SpecVersion = scr.SpecVersion()
	}
	if st, err := card.DecodedSDStatus(); err == nil {
		info.BusWidth = uint32(st.BusWidthBits())
		info.SpeedClass = uint32(st.SpeedClassValue())
	}
	return info
}
