package nodetree

import (
	"errors"
	"sync"
	"testing"
)

func TestLookupReturnsNilForMissingOrWrongKind(t *testing.T) {
	tr := New()
	tr.AddInt("Width", RW, 100, 0, 200, 2)

	if n := tr.Int("Height"); n != nil {
		t.Error("Int lookup of missing node should be nil")
	}
	if n := tr.Enum("Width"); n != nil {
		t.Error("Enum lookup of an Int node should be nil")
	}
	if n := tr.Int("Width"); n == nil {
		t.Error("Int lookup of existing node should not be nil")
	}
}

func TestAccessModes(t *testing.T) {
	tr := New()
	tr.AddInt("ReadOnly", RO, 5, 0, 10, 1)
	tr.AddInt("WriteOnly", WO, 5, 0, 10, 1)

	ro := tr.Int("ReadOnly")
	if !ro.Readable() || ro.Writable() {
		t.Error("RO node: want readable, not writable")
	}
	if err := ro.SetValue(7); err == nil {
		t.Error("write to RO node succeeded")
	}

	wo := tr.Int("WriteOnly")
	if wo.Readable() || !wo.Writable() {
		t.Error("WO node: want writable, not readable")
	}
	if _, err := wo.Value(); err == nil {
		t.Error("read of WO node succeeded")
	}
}

func TestSetAccessIsLive(t *testing.T) {
	tr := New()
	tr.AddFloat("ExposureTime", RO, 100, 20, 30000)

	n := tr.Float("ExposureTime")
	if n.Writable() {
		t.Fatal("node should start read-only")
	}
	tr.SetAccess("ExposureTime", RW)
	if !n.Writable() {
		t.Error("SetAccess(RW) not observed through an existing handle")
	}
	if err := n.SetValue(17000); err != nil {
		t.Errorf("write after access flip: %v", err)
	}
}

func TestRemoveMakesNodeAbsent(t *testing.T) {
	tr := New()
	tr.AddBool("HeartbeatDisable", RW, false)

	n := tr.Bool("HeartbeatDisable")
	if !n.Present() {
		t.Fatal("node should be present")
	}
	tr.Remove("HeartbeatDisable")
	if n.Present() {
		t.Error("existing handle still reports Present after Remove")
	}
	if tr.Bool("HeartbeatDisable") != nil {
		t.Error("lookup after Remove should be nil")
	}
}

func TestIntRangeEnforcedAndLive(t *testing.T) {
	tr := New()
	n := tr.AddInt("OffsetX", RW, 0, 0, 0, 2)

	if err := n.SetValue(100); err == nil {
		t.Fatal("write outside [0,0] succeeded")
	}

	n.SetRange(0, 1248)
	if err := n.SetValue(500); err != nil {
		t.Fatalf("write inside widened range: %v", err)
	}

	// Shrinking the range clamps the stored value.
	n.SetRange(0, 100)
	v, err := n.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != 100 {
		t.Errorf("value after shrink = %d, want 100", v)
	}
}

func TestEnumWriteHookVetoes(t *testing.T) {
	tr := New()
	veto := errors.New("source locked")
	n := tr.AddEnum("TriggerSource", RW, "Software", "Line0").SetCurrent("Line0")
	n.OnWrite = func(string) error { return veto }

	if err := n.SetEntry("Software"); !errors.Is(err, veto) {
		t.Fatalf("err = %v, want veto", err)
	}
	cur, err := n.Current()
	if err != nil {
		t.Fatal(err)
	}
	if cur.Name != "Line0" {
		t.Errorf("selection changed to %q despite veto", cur.Name)
	}
}

// Hooks must be able to touch sibling nodes without deadlocking.
func TestHookMayQuerySiblings(t *testing.T) {
	tr := New()
	mode := tr.AddEnum("TriggerMode", RW, "Off", "On")
	source := tr.AddEnum("TriggerSource", RW, "Software", "Line0")
	source.OnWrite = func(string) error {
		cur, err := mode.Current()
		if err == nil && cur.Name == "On" {
			return errors.New("locked while armed")
		}
		return nil
	}

	if err := source.SetEntry("Software"); err != nil {
		t.Fatalf("write with mode Off: %v", err)
	}
	if err := mode.SetEntry("On"); err != nil {
		t.Fatal(err)
	}
	if err := source.SetEntry("Line0"); err == nil {
		t.Error("write with mode On succeeded")
	}
}

func TestObserverRecordsWriteOrder(t *testing.T) {
	tr := New()
	var mu sync.Mutex
	var order []string
	tr.Observe(func(name string, _ any) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	})

	tr.AddInt("Width", RW, 0, 0, 2048, 2)
	tr.AddInt("Height", RW, 0, 0, 2048, 2)

	if err := tr.Int("Width").SetValue(800); err != nil {
		t.Fatal(err)
	}
	if err := tr.Int("Height").SetValue(1280); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "Width" || order[1] != "Height" {
		t.Errorf("write order = %v, want [Width Height]", order)
	}
}

func TestCategorySkipsRemovedMembers(t *testing.T) {
	tr := New()
	tr.AddString("DeviceSerialNumber", RO, "X1")
	tr.AddString("DeviceVendorName", RO, "V")
	tr.AddCategory("DeviceInformation", "DeviceSerialNumber", "DeviceVendorName")

	tr.Remove("DeviceVendorName")
	features := tr.Category("DeviceInformation").Features()
	if len(features) != 1 || features[0].Name() != "DeviceSerialNumber" {
		t.Errorf("Features() = %d entries, want only DeviceSerialNumber", len(features))
	}
}

func TestCommandExecute(t *testing.T) {
	tr := New()
	fired := 0
	tr.AddCommand("TriggerSoftware", WO, func() error {
		fired++
		return nil
	})

	n := tr.Command("TriggerSoftware")
	if err := n.Execute(); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}

	tr.SetAccess("TriggerSoftware", NA)
	if err := n.Execute(); err == nil {
		t.Error("Execute succeeded with access NA")
	}
	if fired != 1 {
		t.Errorf("command ran despite NA access")
	}
}
