package visioncapture

// Accessor helpers: every device mutation in this module goes through one of
// these. Each helper re-checks node presence and access mode immediately
// before acting; a check made moments earlier proves nothing, since access
// modes are dynamic and firmware-dependent. On failure they return a
// taxonomy error naming the node and operation, and never touch the device.

// setEnum selects an enumeration entry by symbolic name.
func setEnum(nm NodeMap, name, entry string) error {
	n := nm.Enum(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "set "+entry, ErrNodeUnavailable)
	}
	if !n.Writable() {
		return nodeErr(name, "set "+entry, ErrNodeNotWritable)
	}
	if _, ok := n.Entry(entry); !ok {
		return nodeErr(name, "set "+entry, ErrNodeUnavailable)
	}
	if err := n.SetEntry(entry); err != nil {
		return nodeErr(name, "set "+entry, err)
	}
	return nil
}

// currentEnum reads the currently selected entry of an enumeration.
func currentEnum(nm NodeMap, name string) (EnumEntry, error) {
	n := nm.Enum(name)
	if n == nil || !n.Present() {
		return EnumEntry{}, nodeErr(name, "read entry", ErrNodeUnavailable)
	}
	if !n.Readable() {
		return EnumEntry{}, nodeErr(name, "read entry", ErrNodeNotReadable)
	}
	e, err := n.Current()
	if err != nil {
		return EnumEntry{}, nodeErr(name, "read entry", err)
	}
	return e, nil
}

// setInt writes an integer value, rejecting values outside the node's live
// min/max rather than clamping.
func setInt(nm NodeMap, name string, v int64) error {
	n := nm.Int(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "set value", ErrNodeUnavailable)
	}
	if !n.Writable() {
		return nodeErr(name, "set value", ErrNodeNotWritable)
	}
	if v < n.Min() || v > n.Max() {
		return nodeErr(name, "set value", ErrValueOutOfRange)
	}
	if err := n.SetValue(v); err != nil {
		return nodeErr(name, "set value", err)
	}
	return nil
}

// setRangedInt is setInt for nodes that must behave as true ranged controls:
// a zero increment or zero max signals a node that only pretends to be one
// (seen on some firmware for Width/Height) and must not be written.
func setRangedInt(nm NodeMap, name string, v int64) error {
	n := nm.Int(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "set value", ErrNodeUnavailable)
	}
	if !n.Readable() || !n.Writable() {
		return nodeErr(name, "set value", ErrNodeNotWritable)
	}
	if n.Inc() == 0 || n.Max() == 0 {
		return nodeErr(name, "set value", ErrNodeUnavailable)
	}
	if v < n.Min() || v > n.Max() {
		return nodeErr(name, "set value", ErrValueOutOfRange)
	}
	if err := n.SetValue(v); err != nil {
		return nodeErr(name, "set value", err)
	}
	return nil
}

// readInt reads an integer value.
func readInt(nm NodeMap, name string) (int64, error) {
	n := nm.Int(name)
	if n == nil || !n.Present() {
		return 0, nodeErr(name, "read value", ErrNodeUnavailable)
	}
	if !n.Readable() {
		return 0, nodeErr(name, "read value", ErrNodeNotReadable)
	}
	v, err := n.Value()
	if err != nil {
		return 0, nodeErr(name, "read value", err)
	}
	return v, nil
}

// setFloat writes a float value. Range policy is the caller's: the exposure
// step clamps before calling, frame rate passes through.
func setFloat(nm NodeMap, name string, v float64) error {
	n := nm.Float(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "set value", ErrNodeUnavailable)
	}
	if !n.Readable() || !n.Writable() {
		return nodeErr(name, "set value", ErrNodeNotWritable)
	}
	if err := n.SetValue(v); err != nil {
		return nodeErr(name, "set value", err)
	}
	return nil
}

// floatRange reads the live min/max of a float node.
func floatRange(nm NodeMap, name string) (min, max float64, err error) {
	n := nm.Float(name)
	if n == nil || !n.Present() {
		return 0, 0, nodeErr(name, "read range", ErrNodeUnavailable)
	}
	if !n.Readable() {
		return 0, 0, nodeErr(name, "read range", ErrNodeNotReadable)
	}
	return n.Min(), n.Max(), nil
}

// setBool writes a boolean value.
func setBool(nm NodeMap, name string, v bool) error {
	n := nm.Bool(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "set value", ErrNodeUnavailable)
	}
	if !n.Writable() {
		return nodeErr(name, "set value", ErrNodeNotWritable)
	}
	if err := n.SetValue(v); err != nil {
		return nodeErr(name, "set value", err)
	}
	return nil
}

// readString reads a string value.
func readString(nm NodeMap, name string) (string, error) {
	n := nm.String(name)
	if n == nil || !n.Present() {
		return "", nodeErr(name, "read value", ErrNodeUnavailable)
	}
	if !n.Readable() {
		return "", nodeErr(name, "read value", ErrNodeNotReadable)
	}
	v, err := n.Value()
	if err != nil {
		return "", nodeErr(name, "read value", err)
	}
	return v, nil
}

// execCommand fires an execute-only node such as TriggerSoftware. Command
// nodes report executability through Writable, matching vendor WO access.
func execCommand(nm NodeMap, name string) error {
	n := nm.Command(name)
	if n == nil || !n.Present() {
		return nodeErr(name, "execute", ErrNodeUnavailable)
	}
	if !n.Writable() {
		return nodeErr(name, "execute", ErrNodeNotWritable)
	}
	if err := n.Execute(); err != nil {
		return nodeErr(name, "execute", err)
	}
	return nil
}
