package sensor

import (
	"os"
	"path/filepath"
	"testing"
)

func setTestSysfsRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() {
		sysfsRoot = oldRoot
	})
	return root
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestHwmonProvider_DiscoversAndRefreshes(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/hwmon/hwmon0")
	writeTestFile(t, filepath.Join(dir, "name"), "coretemp\n")
	writeTestFile(t, filepath.Join(dir, "temp1_input"), "45000\n")
	writeTestFile(t, filepath.Join(dir, "temp1_label"), "Package id 0\n")
	writeTestFile(t, filepath.Join(dir, "temp2_input"), "41000\n")
	writeTestFile(t, filepath.Join(dir, "temp2_label"), "Core 0\n")

	p := NewHwmonProvider()
	node := p.Root()
	if node.Kind != KindCPU {
		t.Fatalf("root kind = %v, want %v", node.Kind, KindCPU)
	}
	if len(node.Sensors) != 2 {
		t.Fatalf("sensor count = %d, want 2", len(node.Sensors))
	}
	if node.Sensors[0].Label != "Package id 0" || node.Sensors[0].Role != RoleCore {
		t.Fatalf("sensor[0] = %+v, want Package id 0 with core role", node.Sensors[0])
	}

	Refresh(node)
	if node.Sensors[0].Value == nil || *node.Sensors[0].Value != 45.0 {
		t.Fatalf("sensor[0].Value = %v, want 45.0", node.Sensors[0].Value)
	}
	if node.Sensors[1].Value == nil || *node.Sensors[1].Value != 41.0 {
		t.Fatalf("sensor[1].Value = %v, want 41.0", node.Sensors[1].Value)
	}
}

func TestHwmonProvider_IgnoresNonCPUDrivers(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/hwmon/hwmon0")
	writeTestFile(t, filepath.Join(dir, "name"), "nvme\n")
	writeTestFile(t, filepath.Join(dir, "temp1_input"), "35000\n")

	p := NewHwmonProvider()
	if n := len(p.Root().Sensors); n != 0 {
		t.Fatalf("sensor count = %d, want 0 for non-CPU hwmon driver", n)
	}
}

func TestHwmonProvider_UnreadableInputStaysNil(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/hwmon/hwmon0")
	writeTestFile(t, filepath.Join(dir, "name"), "k10temp\n")
	writeTestFile(t, filepath.Join(dir, "temp1_input"), "52000\n")
	writeTestFile(t, filepath.Join(dir, "temp1_label"), "Tctl\n")

	p := NewHwmonProvider()
	node := p.Root()
	Refresh(node)
	if node.Sensors[0].Value == nil || *node.Sensors[0].Value != 52.0 {
		t.Fatalf("sensor value = %v, want 52.0", node.Sensors[0].Value)
	}

	// The input disappearing between refreshes means "not supported",
	// not an error: the value goes back to nil.
	if err := os.Remove(filepath.Join(dir, "temp1_input")); err != nil {
		t.Fatalf("remove input: %v", err)
	}
	Refresh(node)
	if node.Sensors[0].Value != nil {
		t.Fatalf("sensor value after removal = %v, want nil", node.Sensors[0].Value)
	}
}

func TestHwmonProvider_LabelFallback(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/hwmon/hwmon3")
	writeTestFile(t, filepath.Join(dir, "name"), "zenpower\n")
	writeTestFile(t, filepath.Join(dir, "temp1_input"), "48000\n")

	p := NewHwmonProvider()
	node := p.Root()
	if len(node.Sensors) != 1 {
		t.Fatalf("sensor count = %d, want 1", len(node.Sensors))
	}
	if node.Sensors[0].Label != "temp1" {
		t.Fatalf("fallback label = %q, want %q", node.Sensors[0].Label, "temp1")
	}
}

func TestRoleForTempLabel(t *testing.T) {
	tests := []struct {
		label string
		want  SensorRole
	}{
		{"Package id 0", RoleCore},
		{"Core 5", RoleCore},
		{"Tctl", RoleCore},
		{"Tdie", RoleCore},
		{"Tccd1", RoleCore},
		{"junction", RoleHotSpot},
		{"edge", RoleUnspecified},
	}
	for _, tt := range tests {
		if got := roleForTempLabel(tt.label); got != tt.want {
			t.Fatalf("roleForTempLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}
