package selectors_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"songfactory/internal/logging"
	"songfactory/internal/selectors"
)

func TestRegistryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "selector_registry.json")
	reg := selectors.Open(path, logging.NewNop())

	if err := reg.RegisterGroup("prompt", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("RegisterGroup failed: %v", err)
	}
	if err := reg.Promote("prompt", "c"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	reopened := selectors.Open(path, logging.NewNop())
	if got := reopened.Selectors("prompt"); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("unexpected order after reopen: %v", got)
	}

	if err := reopened.RegisterGroup("prompt", []string{"x", "y"}); err != nil {
		t.Fatalf("RegisterGroup on existing group failed: %v", err)
	}
	if got := reopened.Selectors("prompt"); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("expected learned order to survive re-registration, got %v", got)
	}
}

func TestDemoteMovesToBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := selectors.Open(path, nil)
	if err := reg.RegisterGroup("generate", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("RegisterGroup failed: %v", err)
	}
	if err := reg.Demote("generate", "a"); err != nil {
		t.Fatalf("Demote failed: %v", err)
	}
	if got := reg.Selectors("generate"); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("unexpected order after demote: %v", got)
	}
	if err := reg.Demote("generate", "zzz"); err != nil {
		t.Fatalf("Demote of unknown selector failed: %v", err)
	}
	if got := reg.Selectors("generate"); len(got) != 3 {
		t.Fatalf("unknown selector must be ignored, got %v", got)
	}
}

func TestPromoteUnknownInsertsAtFront(t *testing.T) {
	reg := selectors.Open(filepath.Join(t.TempDir(), "registry.json"), nil)
	if err := reg.RegisterGroup("card", []string{"a"}); err != nil {
		t.Fatalf("RegisterGroup failed: %v", err)
	}
	if err := reg.Promote("card", "new"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if got := reg.Selectors("card"); !reflect.DeepEqual(got, []string{"new", "a"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if err := reg.Promote("fresh", "only"); err != nil {
		t.Fatalf("Promote on unknown group failed: %v", err)
	}
	if got := reg.Selectors("fresh"); !reflect.DeepEqual(got, []string{"only"}) {
		t.Fatalf("expected new group to be created, got %v", got)
	}
}

func TestResetGroupAndGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := selectors.Open(path, nil)
	if err := reg.RegisterDefaults(); err != nil {
		t.Fatalf("RegisterDefaults failed: %v", err)
	}
	if err := reg.Promote(selectors.GroupPromptTextarea, `textarea[placeholder*="song"]`); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	defaults := selectors.Defaults()[selectors.GroupPromptTextarea]
	if err := reg.ResetGroup(selectors.GroupPromptTextarea, defaults); err != nil {
		t.Fatalf("ResetGroup failed: %v", err)
	}
	if got := reg.Selectors(selectors.GroupPromptTextarea); !reflect.DeepEqual(got, defaults) {
		t.Fatalf("expected defaults after reset, got %v", got)
	}
	if got := len(reg.Groups()); got != len(selectors.Defaults()) {
		t.Fatalf("expected %d groups, got %d", len(selectors.Defaults()), got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read registry: %v", err)
	}
	var decoded map[string][]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("registry file is not a JSON object: %v", err)
	}
}

func TestCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	reg := selectors.Open(path, nil)
	if groups := reg.Groups(); len(groups) != 0 {
		t.Fatalf("expected empty registry, got %v", groups)
	}
	if err := reg.RegisterGroup("prompt", []string{"a"}); err != nil {
		t.Fatalf("RegisterGroup after corrupt load failed: %v", err)
	}
	if got := selectors.Open(path, nil).Selectors("prompt"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected corrupt file to be replaced, got %v", got)
	}
}
