// Package nodetree is an in-memory feature tree: a mutable NodeMap whose
// nodes carry live access modes, ranges and write hooks. Device
// implementations build their GenICam, stream and transport-layer trees out
// of it; tests use it directly to stand in for firmware behaviour (nodes
// that vanish, flip to read-only, or constrain each other's ranges).
package nodetree

import (
	"fmt"
	"strconv"
	"sync"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
)

// Access is a node's current access mode. Firmware changes it at runtime, so
// every node re-reads it under the tree lock on each capability query.
type Access int

const (
	NA Access = iota // not available
	RO
	WO
	RW
)

func (a Access) readable() bool { return a == RO || a == RW }
func (a Access) writable() bool { return a == WO || a == RW }

// Tree is a thread-safe feature tree. One lock covers the whole tree: node
// writes are rare (configuration time) and hooks frequently touch sibling
// nodes, so finer locking buys nothing.
type Tree struct {
	mu       sync.Mutex
	nodes    map[string]treeNode
	observer func(name string, value any)
}

type treeNode interface {
	visioncapture.Node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{nodes: make(map[string]treeNode)}
}

// Observe installs a write observer invoked (outside hooks, inside the tree
// lock) after every successful value write. Tests use it to assert write
// ordering.
func (t *Tree) Observe(fn func(name string, value any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = fn
}

// Remove deletes a node, simulating a feature the firmware does not expose.
func (t *Tree) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, name)
}

// SetAccess changes a node's access mode. No-op for unknown names.
func (t *Tree) SetAccess(name string, a Access) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch n := t.nodes[name].(type) {
	case *Enum:
		n.access = a
	case *Int:
		n.access = a
	case *Float:
		n.access = a
	case *Bool:
		n.access = a
	case *String:
		n.access = a
	case *Command:
		n.access = a
	case *Category:
		n.access = a
	}
}

// notify runs the write observer outside the tree lock; observers may query
// the tree.
func (t *Tree) notify(name string, value any) {
	t.mu.Lock()
	obs := t.observer
	t.mu.Unlock()
	if obs != nil {
		obs(name, value)
	}
}

// base carries what every node shares. Access checks take the tree lock so
// hook-driven access flips are observed immediately.
type base struct {
	tree   *Tree
	name   string
	access Access
}

func (b *base) Name() string { return b.name }

func (b *base) Present() bool {
	b.tree.mu.Lock()
	defer b.tree.mu.Unlock()
	_, ok := b.tree.nodes[b.name]
	return ok
}

func (b *base) Readable() bool {
	b.tree.mu.Lock()
	defer b.tree.mu.Unlock()
	return b.access.readable()
}

func (b *base) Writable() bool {
	b.tree.mu.Lock()
	defer b.tree.mu.Unlock()
	return b.access.writable()
}

// Enum is an enumeration node. Entries keep insertion order; device-side
// values are assigned sequentially.
type Enum struct {
	base
	entries []visioncapture.EnumEntry
	current int
	// OnWrite, when set, runs before the selection commits, outside the tree
	// lock so it may query sibling nodes. An error vetoes the write
	// (firmware-style cross-node constraints).
	OnWrite func(entry string) error
}

// AddEnum registers an enumeration node. The initial selection is the first
// entry unless SetCurrent is called.
func (t *Tree) AddEnum(name string, access Access, entries ...string) *Enum {
	n := &Enum{base: base{tree: t, name: name, access: access}}
	for i, e := range entries {
		n.entries = append(n.entries, visioncapture.EnumEntry{Name: e, Value: int64(i)})
	}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

// SetCurrent selects an entry without access checks or hooks (device-side
// initialisation). Panics on unknown entries: that is a test-fixture bug.
func (n *Enum) SetCurrent(entry string) *Enum {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	for i, e := range n.entries {
		if e.Name == entry {
			n.current = i
			return n
		}
	}
	panic(fmt.Sprintf("nodetree: enum %s has no entry %q", n.name, entry))
}

func (n *Enum) Current() (visioncapture.EnumEntry, error) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.access.readable() {
		return visioncapture.EnumEntry{}, fmt.Errorf("node %s not readable", n.name)
	}
	return n.entries[n.current], nil
}

func (n *Enum) Entry(name string) (visioncapture.EnumEntry, bool) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	for _, e := range n.entries {
		if e.Name == name {
			return e, true
		}
	}
	return visioncapture.EnumEntry{}, false
}

func (n *Enum) SetEntry(name string) error {
	n.tree.mu.Lock()
	if !n.access.writable() {
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s not writable", n.name)
	}
	idx := -1
	for i, e := range n.entries {
		if e.Name == name {
			idx = i
			break
		}
	}
	hook := n.OnWrite
	n.tree.mu.Unlock()

	if idx < 0 {
		return fmt.Errorf("enum %s has no entry %q", n.name, name)
	}
	if hook != nil {
		if err := hook(name); err != nil {
			return err
		}
	}

	n.tree.mu.Lock()
	n.current = idx
	n.tree.mu.Unlock()
	n.tree.notify(n.name, name)
	return nil
}

func (n *Enum) ValueString() (string, error) {
	e, err := n.Current()
	if err != nil {
		return "", err
	}
	return e.Name, nil
}

// Int is a ranged integer node. Range bounds are live: hooks on other nodes
// may shrink or grow them (offset maxima track width/height).
type Int struct {
	base
	val, min, max, inc int64
	OnWrite            func(v int64) error
}

func (t *Tree) AddInt(name string, access Access, val, min, max, inc int64) *Int {
	n := &Int{base: base{tree: t, name: name, access: access}, val: val, min: min, max: max, inc: inc}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *Int) Value() (int64, error) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.access.readable() {
		return 0, fmt.Errorf("node %s not readable", n.name)
	}
	return n.val, nil
}

func (n *Int) SetValue(v int64) error {
	n.tree.mu.Lock()
	if !n.access.writable() {
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s not writable", n.name)
	}
	if v < n.min || v > n.max {
		min, max := n.min, n.max
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s: %d outside [%d, %d]", n.name, v, min, max)
	}
	hook := n.OnWrite
	n.tree.mu.Unlock()

	if hook != nil {
		if err := hook(v); err != nil {
			return err
		}
	}

	n.tree.mu.Lock()
	n.val = v
	n.tree.mu.Unlock()
	n.tree.notify(n.name, v)
	return nil
}

func (n *Int) Min() int64 { n.tree.mu.Lock(); defer n.tree.mu.Unlock(); return n.min }
func (n *Int) Max() int64 { n.tree.mu.Lock(); defer n.tree.mu.Unlock(); return n.max }
func (n *Int) Inc() int64 { n.tree.mu.Lock(); defer n.tree.mu.Unlock(); return n.inc }

// SetRange adjusts the live range, clamping the current value into it.
// Safe to call from write hooks.
func (n *Int) SetRange(min, max int64) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.min, n.max = min, max
	if n.val < min {
		n.val = min
	}
	if n.val > max {
		n.val = max
	}
}

func (n *Int) ValueString() (string, error) {
	v, err := n.Value()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Float is a ranged floating-point node.
type Float struct {
	base
	val, min, max float64
	OnWrite       func(v float64) error
}

func (t *Tree) AddFloat(name string, access Access, val, min, max float64) *Float {
	n := &Float{base: base{tree: t, name: name, access: access}, val: val, min: min, max: max}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *Float) Value() (float64, error) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.access.readable() {
		return 0, fmt.Errorf("node %s not readable", n.name)
	}
	return n.val, nil
}

func (n *Float) SetValue(v float64) error {
	n.tree.mu.Lock()
	if !n.access.writable() {
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s not writable", n.name)
	}
	if v < n.min || v > n.max {
		min, max := n.min, n.max
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s: %g outside [%g, %g]", n.name, v, min, max)
	}
	hook := n.OnWrite
	n.tree.mu.Unlock()

	if hook != nil {
		if err := hook(v); err != nil {
			return err
		}
	}

	n.tree.mu.Lock()
	n.val = v
	n.tree.mu.Unlock()
	n.tree.notify(n.name, v)
	return nil
}

func (n *Float) Min() float64 { n.tree.mu.Lock(); defer n.tree.mu.Unlock(); return n.min }
func (n *Float) Max() float64 { n.tree.mu.Lock(); defer n.tree.mu.Unlock(); return n.max }

func (n *Float) ValueString() (string, error) {
	v, err := n.Value()
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

// Bool is a boolean node.
type Bool struct {
	base
	val     bool
	OnWrite func(v bool) error
}

func (t *Tree) AddBool(name string, access Access, val bool) *Bool {
	n := &Bool{base: base{tree: t, name: name, access: access}, val: val}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *Bool) Value() (bool, error) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.access.readable() {
		return false, fmt.Errorf("node %s not readable", n.name)
	}
	return n.val, nil
}

func (n *Bool) SetValue(v bool) error {
	n.tree.mu.Lock()
	if !n.access.writable() {
		n.tree.mu.Unlock()
		return fmt.Errorf("node %s not writable", n.name)
	}
	hook := n.OnWrite
	n.tree.mu.Unlock()

	if hook != nil {
		if err := hook(v); err != nil {
			return err
		}
	}

	n.tree.mu.Lock()
	n.val = v
	n.tree.mu.Unlock()
	n.tree.notify(n.name, v)
	return nil
}

func (n *Bool) ValueString() (string, error) {
	v, err := n.Value()
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(v), nil
}

// String is a read-mostly string node (serials, vendor strings).
type String struct {
	base
	val string
}

func (t *Tree) AddString(name string, access Access, val string) *String {
	n := &String{base: base{tree: t, name: name, access: access}, val: val}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *String) Value() (string, error) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.access.readable() {
		return "", fmt.Errorf("node %s not readable", n.name)
	}
	return n.val, nil
}

func (n *String) ValueString() (string, error) { return n.Value() }

// Command is an execute-only node. Run carries the device-side action.
type Command struct {
	base
	Run func() error
}

func (t *Tree) AddCommand(name string, access Access, run func() error) *Command {
	n := &Command{base: base{tree: t, name: name, access: access}, Run: run}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *Command) Execute() error {
	n.tree.mu.Lock()
	ok := n.access.writable()
	run := n.Run
	n.tree.mu.Unlock()
	if !ok {
		return fmt.Errorf("node %s not writable", n.name)
	}
	if run == nil {
		return nil
	}
	return run()
}

// Category groups sibling features by name. Missing members are skipped at
// query time, so a category survives Remove of its children.
type Category struct {
	base
	members []string
}

func (t *Tree) AddCategory(name string, members ...string) *Category {
	n := &Category{base: base{tree: t, name: name, access: RO}, members: members}
	t.mu.Lock()
	t.nodes[name] = n
	t.mu.Unlock()
	return n
}

func (n *Category) Features() []visioncapture.Node {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	out := make([]visioncapture.Node, 0, len(n.members))
	for _, m := range n.members {
		if child, ok := n.tree.nodes[m]; ok {
			out = append(out, child)
		}
	}
	return out
}

// Typed lookups. Each returns an untyped nil when the node is absent or has
// a different kind, which the accessor layer folds into ErrNodeUnavailable.

func (t *Tree) Enum(name string) visioncapture.EnumNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Enum); ok {
		return n
	}
	return nil
}

func (t *Tree) Int(name string) visioncapture.IntNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Int); ok {
		return n
	}
	return nil
}

func (t *Tree) Float(name string) visioncapture.FloatNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Float); ok {
		return n
	}
	return nil
}

func (t *Tree) Bool(name string) visioncapture.BoolNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Bool); ok {
		return n
	}
	return nil
}

func (t *Tree) String(name string) visioncapture.StringNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*String); ok {
		return n
	}
	return nil
}

func (t *Tree) Command(name string) visioncapture.CommandNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Command); ok {
		return n
	}
	return nil
}

func (t *Tree) Category(name string) visioncapture.CategoryNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[name].(*Category); ok {
		return n
	}
	return nil
}
