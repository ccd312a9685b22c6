package convcore

import "testing"

func TestInstanceRegistryDefaultEnabledWins(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{
		{Name: "nova"},
		{Name: "echo", DefaultEnabled: true},
	}, "")

	def, ok := r.Default()
	if !ok || def.Name != "echo" {
		t.Errorf("got (%+v, %v), want echo", def, ok)
	}
}

func TestInstanceRegistryExplicitDefaultOverrides(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{
		{Name: "nova", DefaultEnabled: true},
		{Name: "echo"},
	}, "echo")

	def, ok := r.Default()
	if !ok || def.Name != "echo" {
		t.Errorf("got (%+v, %v), want echo from explicit override", def, ok)
	}
}

func TestInstanceRegistryFallsBackToFirst(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{
		{Name: "nova"},
		{Name: "echo"},
	}, "")

	def, ok := r.Default()
	if !ok || def.Name != "nova" {
		t.Errorf("got (%+v, %v), want nova (first, no default marked)", def, ok)
	}
}

func TestInstanceRegistryGetIsCaseInsensitive(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{{Name: "Nova"}}, "")
	inst, ok := r.Get("NOVA")
	if !ok || inst.Name != "Nova" {
		t.Errorf("got (%+v, %v)", inst, ok)
	}
}

func TestInstanceRegistryUnknownExplicitDefaultFallsBack(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{{Name: "nova", DefaultEnabled: true}}, "ghost")
	def, ok := r.Default()
	if !ok || def.Name != "nova" {
		t.Errorf("got (%+v, %v), want nova since 'ghost' is not a configured instance", def, ok)
	}
}

func TestInstanceRegistryNamesAndAllPreserveOrder(t *testing.T) {
	r := NewInstanceRegistry([]InstanceConfig{{Name: "b"}, {Name: "a"}, {Name: "c"}}, "")
	names := r.Names()
	if len(names) != 3 || names[0] != "b" || names[1] != "a" || names[2] != "c" {
		t.Errorf("got %v", names)
	}

	all := r.All()
	if len(all) != 3 || all[0].Name != "b" {
		t.Errorf("got %+v", all)
	}
}

func TestInstanceRegistryEmptyHasNoDefault(t *testing.T) {
	r := NewInstanceRegistry(nil, "")
	if _, ok := r.Default(); ok {
		t.Error("expected no default for an empty registry")
	}
}
