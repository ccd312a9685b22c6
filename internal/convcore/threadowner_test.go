package convcore

import "testing"

func TestThreadOwnerMapSetGet(t *testing.T) {
	m := NewThreadOwnerMap(10)
	m.Set("conv1", "nova")

	owner, ok := m.Get("conv1")
	if !ok || owner != "nova" {
		t.Errorf("got (%q, %v)", owner, ok)
	}

	if _, ok := m.Get("missing"); ok {
		t.Error("expected miss on unknown conversation")
	}
}

func TestThreadOwnerMapIsRoundtable(t *testing.T) {
	m := NewThreadOwnerMap(10)
	m.Set("conv1", RoundtableSentinel)
	m.Set("conv2", "nova")

	if !m.IsRoundtable("conv1") {
		t.Error("expected conv1 to be a roundtable conversation")
	}
	if m.IsRoundtable("conv2") {
		t.Error("conv2 is owned by a named instance, not roundtable")
	}
	if m.IsRoundtable("missing") {
		t.Error("unknown conversation is not roundtable")
	}
}

func TestThreadOwnerMapEvictsOldestByCapacity(t *testing.T) {
	m := NewThreadOwnerMap(2)
	m.Set("a", "nova")
	m.Set("b", "echo")
	m.Set("c", "nova") // evicts "a"

	if _, ok := m.Get("a"); ok {
		t.Error("expected oldest entry to be evicted once capacity was exceeded")
	}
	if _, ok := m.Get("b"); !ok {
		t.Error("expected b to survive")
	}
	if _, ok := m.Get("c"); !ok {
		t.Error("expected c to survive")
	}
	if m.Size() != 2 {
		t.Errorf("got size %d, want 2", m.Size())
	}
}

func TestThreadOwnerMapRewriteRefreshesOrder(t *testing.T) {
	m := NewThreadOwnerMap(2)
	m.Set("a", "nova")
	m.Set("b", "echo")
	m.Set("a", "echo") // touches "a" again, "b" is now oldest
	m.Set("c", "nova") // should evict "b", not "a"

	if _, ok := m.Get("b"); ok {
		t.Error("expected b to be evicted after a was re-touched")
	}
	if owner, ok := m.Get("a"); !ok || owner != "echo" {
		t.Errorf("expected a to survive with updated owner, got (%q, %v)", owner, ok)
	}
}

func TestThreadOwnerMapNonPositiveCapacityDefaults(t *testing.T) {
	m := NewThreadOwnerMap(0)
	if m.capacity != 10000 {
		t.Errorf("got capacity %d, want 10000", m.capacity)
	}
}
