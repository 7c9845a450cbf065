package protocol

import "fmt"

// TypeID is the developer-assigned tag of a replicated component or event
// type.
type TypeID int16

// NetworkID identifies a replicated entity across the mesh. It is chosen by
// the peer that first replicates the entity.
type NetworkID uint64

// NoEntity tags items that belong to no entity, i.e. events. It is never
// assigned to an entity.
const NoEntity NetworkID = 0

func (id NetworkID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Flags describe what an item carries.
type Flags uint8

const (
	FlagEvent Flags = 1 << iota
	FlagRemoved
)

func (f Flags) IsEvent() bool    { return f&FlagEvent != 0 }
func (f Flags) WasRemoved() bool { return f&FlagRemoved != 0 }

// Item is one serialized component or event, either staged for sending or
// decoded from a peer's frame.
type Item struct {
	NetworkID NetworkID
	TypeID    TypeID
	Flags     Flags
	Payload   []byte
}
