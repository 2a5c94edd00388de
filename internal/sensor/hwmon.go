package sensor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsRoot is swapped out in tests.
var sysfsRoot = "/sys"

// cpuHwmonNames are the hwmon driver names that expose CPU package and
// core temperatures.
var cpuHwmonNames = map[string]bool{
	"coretemp": true, // Intel
	"k10temp":  true, // AMD
	"zenpower": true, // AMD, out-of-tree
}

type tempInput struct {
	path  string
	label string
}

// HwmonProvider exposes a CPU node whose temperature sensors are backed
// by /sys/class/hwmon temp*_input files.
type HwmonProvider struct {
	root *Node
}

// NewHwmonProvider discovers CPU temperature inputs once; the set of
// inputs is fixed for the provider's lifetime, only values refresh.
func NewHwmonProvider() *HwmonProvider {
	inputs := discoverCPUTempInputs()

	cpu := &Node{Kind: KindCPU, Name: cpuModelName()}
	for _, in := range inputs {
		cpu.Sensors = append(cpu.Sensors, Sensor{
			Kind:  Temperature,
			Role:  roleForTempLabel(in.label),
			Label: in.label,
		})
	}
	cpu.Update = func(n *Node) {
		for i := range n.Sensors {
			n.Sensors[i].Value = nil
			if v, err := readMilliCelsius(inputs[i].path); err == nil {
				n.Sensors[i].Value = Float(v)
			}
		}
	}

	return &HwmonProvider{root: cpu}
}

func (p *HwmonProvider) Root() *Node { return p.root }

// discoverCPUTempInputs scans hwmon devices for a recognized CPU
// temperature driver and returns its temp*_input files with labels.
func discoverCPUTempInputs() []tempInput {
	dirs, err := filepath.Glob(filepath.Join(sysfsRoot, "class/hwmon/hwmon*"))
	if err != nil {
		return nil
	}

	var inputs []tempInput
	for _, dir := range dirs {
		name, err := readStringFile(filepath.Join(dir, "name"))
		if err != nil || !cpuHwmonNames[name] {
			continue
		}
		tempFiles, err := filepath.Glob(filepath.Join(dir, "temp[0-9]*_input"))
		if err != nil {
			continue
		}
		for _, tf := range tempFiles {
			labelPath := strings.TrimSuffix(tf, "_input") + "_label"
			label, err := readStringFile(labelPath)
			if err != nil || label == "" {
				label = filepath.Base(strings.TrimSuffix(tf, "_input"))
			}
			inputs = append(inputs, tempInput{path: tf, label: label})
		}
	}
	return inputs
}

// roleForTempLabel maps well-known hwmon labels to a structured role.
// Package/Tctl/Core sensors measure the core die; Tccd sensors sit on
// the compute dies and also count as core-domain readings.
func roleForTempLabel(label string) SensorRole {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "package"), strings.Contains(l, "tctl"),
		strings.Contains(l, "tdie"), strings.Contains(l, "core"),
		strings.Contains(l, "tccd"):
		return RoleCore
	case strings.Contains(l, "junction"), strings.Contains(l, "hotspot"):
		return RoleHotSpot
	}
	return RoleUnspecified
}

// cpuModelName reads the model name from /proc/cpuinfo, falling back
// to a generic label.
func cpuModelName() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "CPU"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "model name" {
			return strings.TrimSpace(v)
		}
	}
	return "CPU"
}

// readMilliCelsius reads an hwmon temp*_input file (millidegrees).
func readMilliCelsius(path string) (float64, error) {
	raw, err := readIntFile(path)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 1000.0, nil
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readStringFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
