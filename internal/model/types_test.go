package model

import "testing"

func TestParseModeFailClosed(t *testing.T) {
	cases := map[string]ExecutionMode{
		"local_only":    ModeLocalOnly,
		"hybrid":        ModeHybrid,
		"cloud_sandbox": ModeCloudSandbox,
		"":              ModeLocalOnly,
		"anything":      ModeLocalOnly,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePermissionClosedVocabulary(t *testing.T) {
	if p, ok := ParsePermission(" Database:Read "); !ok || p != PermDatabaseRead {
		t.Errorf("expected database:read to parse, got %q ok=%v", p, ok)
	}
	if _, ok := ParsePermission("ai:use"); ok {
		t.Error("permission outside the closed vocabulary must not parse")
	}
}

func TestMissingPermissions(t *testing.T) {
	required := []Permission{PermDatabaseRead, PermNetworkExternal, PermFilesystemRead}
	granted := []Permission{PermDatabaseRead}

	missing := MissingPermissions(required, granted)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing permissions, got %v", missing)
	}
	// Sorted for stable reporting.
	if missing[0] != PermFilesystemRead || missing[1] != PermNetworkExternal {
		t.Errorf("unexpected order: %v", missing)
	}

	if got := MissingPermissions(required, append(required, PermSystemInfo)); len(got) != 0 {
		t.Errorf("superset grant should have no missing permissions, got %v", got)
	}
}

func TestTagSetAppendOnly(t *testing.T) {
	tags := NewTagSet()
	tags.Add("identity")
	tags.Add("credential")
	tags.Add("identity")
	tags.Add("")

	if tags.Len() != 2 {
		t.Fatalf("expected 2 tags, got %d", tags.Len())
	}
	if !tags.Has("identity") || !tags.Has("credential") {
		t.Error("expected recorded tags to be present")
	}
	got := tags.List()
	if got[0] != "credential" || got[1] != "identity" {
		t.Errorf("expected sorted list, got %v", got)
	}
}
