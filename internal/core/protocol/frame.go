package protocol

import (
	"fmt"
	"io"
	"math"
)

// MaxCount bounds every count field of a frame (events, entities,
// components per entity) as well as payload lengths.
const MaxCount = math.MaxInt16

// typeId:int16 flags:byte payloadLen:int16
const itemHeaderSize = 5

// EntityBlock groups the component items of one network entity.
type EntityBlock struct {
	NetworkID  NetworkID
	Components []Item
}

// Frame is what one Flush writes to a peer.
//
// Wire layout, all integers little-endian:
//
//	eventCount:int16
//	  { typeId:int16 flags:byte payloadLen:int16 payload }*
//	entityCount:int16
//	  { networkEntityId:int64 componentCount:int16
//	      { typeId:int16 flags:byte payloadLen:int16 payload }* }*
type Frame struct {
	Events   []Item
	Entities []EntityBlock
}

// Empty reports whether the frame carries no items at all.
func (f *Frame) Empty() bool {
	return len(f.Events) == 0 && len(f.Entities) == 0
}

// Len returns the number of items in the frame.
func (f *Frame) Len() int {
	n := len(f.Events)
	for i := range f.Entities {
		n += len(f.Entities[i].Components)
	}
	return n
}

// Size returns the encoded length of the frame in bytes.
func (f *Frame) Size() int {
	n := 4
	for i := range f.Events {
		n += itemHeaderSize + len(f.Events[i].Payload)
	}
	for i := range f.Entities {
		n += 10
		for j := range f.Entities[i].Components {
			n += itemHeaderSize + len(f.Entities[i].Components[j].Payload)
		}
	}
	return n
}

// Items flattens the frame in wire order. Component items carry the network
// id of their block; events carry NoEntity.
func (f *Frame) Items() []Item {
	items := make([]Item, 0, f.Len())
	for _, ev := range f.Events {
		ev.NetworkID = NoEntity
		items = append(items, ev)
	}
	for _, block := range f.Entities {
		for _, c := range block.Components {
			c.NetworkID = block.NetworkID
			items = append(items, c)
		}
	}
	return items
}

// Split cuts the frame into frames whose event and entity counts fit the
// int16 count fields. A frame that already fits is returned as is.
func (f *Frame) Split() []*Frame {
	if len(f.Events) <= MaxCount && len(f.Entities) <= MaxCount {
		return []*Frame{f}
	}

	var frames []*Frame
	events, entities := f.Events, f.Entities
	for len(events) > 0 || len(entities) > 0 {
		part := &Frame{}
		n := min(len(events), MaxCount)
		part.Events, events = events[:n], events[n:]
		m := min(len(entities), MaxCount)
		part.Entities, entities = entities[:m], entities[m:]
		frames = append(frames, part)
	}
	return frames
}

// Validate checks every count and payload length against the wire limits.
func (f *Frame) Validate() error {
	if len(f.Events) > MaxCount {
		return fmt.Errorf("%w: %d events", ErrFrameTooLarge, len(f.Events))
	}
	if len(f.Entities) > MaxCount {
		return fmt.Errorf("%w: %d entities", ErrFrameTooLarge, len(f.Entities))
	}
	for i := range f.Events {
		if err := ValidateItem(f.Events[i]); err != nil {
			return err
		}
	}
	for i := range f.Entities {
		if len(f.Entities[i].Components) > MaxCount {
			return fmt.Errorf("%w: %d components on entity %s",
				ErrFrameTooLarge, len(f.Entities[i].Components), f.Entities[i].NetworkID)
		}
		for j := range f.Entities[i].Components {
			if err := ValidateItem(f.Entities[i].Components[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateItem checks that the item's payload fits the int16 length field.
func ValidateItem(item Item) error {
	if len(item.Payload) > MaxCount {
		return fmt.Errorf("%w: type %d carries %d bytes (max %d)",
			ErrPayloadTooLarge, item.TypeID, len(item.Payload), MaxCount)
	}
	return nil
}

// EncodeFrame writes f to w. Callers should pass a buffer and write the
// result to the socket in one call.
func EncodeFrame(w io.Writer, f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	enc := NewWriter(w)
	if err := enc.WriteInt16(int16(len(f.Events))); err != nil {
		return err
	}
	for i := range f.Events {
		if err := encodeItem(enc, &f.Events[i]); err != nil {
			return err
		}
	}

	if err := enc.WriteInt16(int16(len(f.Entities))); err != nil {
		return err
	}
	for i := range f.Entities {
		block := &f.Entities[i]
		if err := enc.WriteInt64(int64(block.NetworkID)); err != nil {
			return err
		}
		if err := enc.WriteInt16(int16(len(block.Components))); err != nil {
			return err
		}
		for j := range block.Components {
			if err := encodeItem(enc, &block.Components[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeItem(enc *Writer, item *Item) error {
	if err := enc.WriteInt16(int16(item.TypeID)); err != nil {
		return err
	}
	if err := enc.WriteUint8(byte(item.Flags)); err != nil {
		return err
	}
	if err := enc.WriteInt16(int16(len(item.Payload))); err != nil {
		return err
	}
	return enc.WriteBytes(item.Payload)
}

// DecodeFrame reads one frame from r.
func DecodeFrame(r *Reader) (*Frame, error) {
	eventCount, err := readCount(r, "event count")
	if err != nil {
		return nil, err
	}

	f := &Frame{}
	if eventCount > 0 {
		f.Events = make([]Item, eventCount)
	}
	for i := range f.Events {
		if err = decodeItem(r, &f.Events[i]); err != nil {
			return nil, err
		}
	}

	entityCount, err := readCount(r, "entity count")
	if err != nil {
		return nil, err
	}
	if entityCount > 0 {
		f.Entities = make([]EntityBlock, entityCount)
	}
	for i := range f.Entities {
		block := &f.Entities[i]
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		block.NetworkID = NetworkID(id)

		componentCount, err := readCount(r, "component count")
		if err != nil {
			return nil, err
		}
		block.Components = make([]Item, componentCount)
		for j := range block.Components {
			block.Components[j].NetworkID = block.NetworkID
			if err = decodeItem(r, &block.Components[j]); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func decodeItem(r *Reader, item *Item) error {
	typeID, err := r.ReadInt16()
	if err != nil {
		return err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return err
	}
	size, err := readCount(r, "payload length")
	if err != nil {
		return err
	}
	payload, err := r.ReadBytes(size)
	if err != nil {
		return err
	}
	item.TypeID = TypeID(typeID)
	item.Flags = Flags(flags)
	item.Payload = payload
	return nil
}

func readCount(r *Reader, what string) (int, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative %s %d", ErrInvalidFrame, what, n)
	}
	return int(n), nil
}
