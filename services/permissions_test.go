package services

import (
	"reflect"
	"testing"
)

func TestPermissionCatalogSize(t *testing.T) {
	if len(AllPermissionKeys) != 44 {
		t.Errorf("permission catalog has %d keys, want 44", len(AllPermissionKeys))
	}
	seen := map[string]bool{}
	for _, k := range AllPermissionKeys {
		if seen[k] {
			t.Errorf("duplicate permission key %q", k)
		}
		seen[k] = true
	}
}

func TestPermissionSetBasics(t *testing.T) {
	s := NewPermissionSet("view_quotes", "create_quotes")
	if !s.Has("view_quotes") {
		t.Error("Has(view_quotes) = false")
	}
	if s.Has("delete_quotes") {
		t.Error("Has(delete_quotes) = true")
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"create_quotes", "view_quotes"}) {
		t.Errorf("Keys() = %v, not sorted as expected", got)
	}
}

func TestPermissionSetUnion(t *testing.T) {
	a := NewPermissionSet("view_quotes", "create_quotes")
	b := NewPermissionSet("view_quotes", "record_payments")
	got := a.Union(b).Keys()
	want := []string{"create_quotes", "record_payments", "view_quotes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Union = %v, want %v", got, want)
	}
	// Operands untouched.
	if len(a) != 2 || len(b) != 2 {
		t.Error("Union mutated an operand")
	}
}

func TestPermissionSetReplace(t *testing.T) {
	user := NewPermissionSet("view_quotes", "create_quotes", "delete_quotes")
	tmpl := NewPermissionSet("view_leads", "view_quotes")
	got := user.Replace(tmpl)
	if !reflect.DeepEqual(got.Keys(), tmpl.Keys()) {
		t.Errorf("Replace = %v, want %v", got.Keys(), tmpl.Keys())
	}
	// Replace returns a copy; changing the template after apply must not
	// leak into the applied set.
	delete(tmpl, "view_leads")
	if !got.Has("view_leads") {
		t.Error("Replace shares storage with its argument")
	}
}

func TestPermissionSetDiff(t *testing.T) {
	current := NewPermissionSet("view_quotes", "create_quotes", "delete_quotes")
	target := NewPermissionSet("view_quotes", "record_payments")

	added, removed := current.Diff(target)
	if !reflect.DeepEqual(added, []string{"record_payments"}) {
		t.Errorf("added = %v, want [record_payments]", added)
	}
	if !reflect.DeepEqual(removed, []string{"create_quotes", "delete_quotes"}) {
		t.Errorf("removed = %v, want [create_quotes delete_quotes]", removed)
	}
}

func TestPermissionSetDiffEmpty(t *testing.T) {
	a := NewPermissionSet("view_quotes")
	added, removed := a.Diff(a)
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("self-diff not empty: added=%v removed=%v", added, removed)
	}
}

func TestPermissionSetNormalize(t *testing.T) {
	s := NewPermissionSet("view_quotes", "launch_rockets", "manage_materials")
	got := s.Normalize().Keys()
	want := []string{"manage_materials", "view_quotes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}
