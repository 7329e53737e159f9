package visioncapture

// Feature nodes are the named, typed, access-controlled control points a
// camera exposes. Access modes are dynamic (firmware may flip a node between
// read-write and read-only depending on device state), so Present/Readable/
// Writable must be consulted immediately before every use and never cached.

// Node is the capability-query surface shared by every feature node.
//
// Implementations must answer the three queries live on every call: the
// answer for a node can legitimately change between two consecutive calls
// (for example Width becomes read-only once acquisition starts).
type Node interface {
	// Name returns the feature name, e.g. "AcquisitionMode".
	Name() string
	// Present reports whether the feature exists on this device/firmware.
	Present() bool
	// Readable reports whether the current access mode allows reads.
	Readable() bool
	// Writable reports whether the current access mode allows writes.
	Writable() bool
}

// ValueNode is implemented by nodes whose current value has a human-readable
// form. Used by the diagnostics reporter; mirrors the vendor "value to
// string" facility.
type ValueNode interface {
	Node
	ValueString() (string, error)
}

// EnumEntry is one selectable entry of an enumeration node, with its
// symbolic name and device-side integer value.
type EnumEntry struct {
	Name  string
	Value int64
}

// EnumNode is an enumeration feature: a current entry plus a set of
// selectable entries.
type EnumNode interface {
	Node
	// Current returns the currently selected entry.
	Current() (EnumEntry, error)
	// Entry looks up a selectable entry by symbolic name.
	Entry(name string) (EnumEntry, bool)
	// SetEntry selects the entry with the given symbolic name.
	SetEntry(name string) error
}

// IntNode is a ranged integer feature. Min/Max/Inc are live values: for
// geometry nodes the valid offset range shrinks as width/height grow.
type IntNode interface {
	Node
	Value() (int64, error)
	SetValue(v int64) error
	Min() int64
	Max() int64
	// Inc is the legal step between values. A zero increment (or zero max)
	// signals the node is not a true ranged control and must not be written.
	Inc() int64
}

// FloatNode is a ranged floating-point feature (exposure time, frame rate).
type FloatNode interface {
	Node
	Value() (float64, error)
	SetValue(v float64) error
	Min() float64
	Max() float64
}

// BoolNode is a boolean feature.
type BoolNode interface {
	Node
	Value() (bool, error)
	SetValue(v bool) error
}

// StringNode is a read-mostly string feature (serial numbers, vendor names).
type StringNode interface {
	Node
	Value() (string, error)
}

// CommandNode is an execute-only feature such as TriggerSoftware.
type CommandNode interface {
	Node
	Execute() error
}

// CategoryNode groups related features, e.g. "DeviceInformation".
type CategoryNode interface {
	Node
	Features() []Node
}

// NodeMap is a typed lookup over one of a device's feature trees.
//
// Lookups return nil when the feature is absent or has a different type;
// callers go through the accessor helpers, which fold a nil result into
// ErrNodeUnavailable.
type NodeMap interface {
	Enum(name string) EnumNode
	Int(name string) IntNode
	Float(name string) FloatNode
	Bool(name string) BoolNode
	String(name string) StringNode
	Command(name string) CommandNode
	Category(name string) CategoryNode
}
