package lookup

import "testing"

func TestParseACL_PermitAll(t *testing.T) {
	acl, err := ParseACL("PERMIT:ALL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acl.Allowed(1) || !acl.Allowed(999999) {
		t.Fatalf("PERMIT:ALL should allow any id")
	}
}

func TestParseACL_DenySingle(t *testing.T) {
	acl, err := ParseACL("DENY:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acl.Allowed(1) {
		t.Fatalf("id 1 should be denied")
	}
	if !acl.Allowed(2) {
		t.Fatalf("id 2 should be allowed")
	}
}

func TestParseACL_Range(t *testing.T) {
	acl, err := ParseACL("PERMIT:3100-3199")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acl.Allowed(3150) {
		t.Fatalf("3150 should be in range")
	}
	if acl.Allowed(4000) {
		t.Fatalf("4000 should not be in range")
	}
}

func TestParseACL_InvalidFormat(t *testing.T) {
	if _, err := ParseACL("nocolon"); err == nil {
		t.Fatal("expected error for missing colon")
	}
	if _, err := ParseACL("MAYBE:1"); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := ParseACL("PERMIT:5-1"); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestSlotACL_NoConfigAllowsAll(t *testing.T) {
	s := NewSlotACL(nil)
	if !s.Allowed(3100, 1) {
		t.Fatalf("slot with no ACL should allow all")
	}
}

func TestSlotACL_PerSlot(t *testing.T) {
	denySlot1, _ := ParseACL("DENY:3100")
	s := NewSlotACL(map[int]*ACL{1: denySlot1})

	if s.Allowed(3100, 1) {
		t.Fatalf("3100 should be denied on slot 1")
	}
	if !s.Allowed(3100, 2) {
		t.Fatalf("3100 should be allowed on slot 2 (no ACL configured)")
	}
}
