package sensor

import (
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Sensor slot indexes within an NVML GPU node. The slice layout is
// fixed at construction so the update hook can write by index.
const (
	nvmlCoreLoad = iota
	nvmlMemLoad
	nvmlCoreTemp
	nvmlFanSpeed
	nvmlCoreClock
	nvmlBoardPower
	nvmlSensorCount
)

// NvmlProvider exposes one GpuNvidia node per NVML device.
type NvmlProvider struct {
	root        *Node
	initialized bool
}

// NewNvmlProvider initializes NVML and builds the device nodes. It
// fails when the library is unavailable or no devices are present, in
// which case GPU sensing is simply absent from the tree.
func NewNvmlProvider() (*NvmlProvider, error) {
	if ret := nvml.Init(); !errors.Is(ret, nvml.SUCCESS) {
		return nil, fmt.Errorf("initialize NVML: %s", nvml.ErrorString(ret))
	}

	count, ret := nvml.DeviceGetCount()
	if !errors.Is(ret, nvml.SUCCESS) || count == 0 {
		nvml.Shutdown()
		return nil, fmt.Errorf("no NVIDIA devices found")
	}

	root := &Node{Kind: KindController, Name: "nvml"}
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if !errors.Is(ret, nvml.SUCCESS) {
			continue
		}
		root.Children = append(root.Children, newNvmlNode(device))
	}

	return &NvmlProvider{root: root, initialized: true}, nil
}

func (p *NvmlProvider) Root() *Node { return p.root }

// Close shuts NVML down. Safe to call more than once.
func (p *NvmlProvider) Close() error {
	if p.initialized {
		nvml.Shutdown()
		p.initialized = false
	}
	return nil
}

func newNvmlNode(device nvml.Device) *Node {
	name := "NVIDIA GPU"
	if n, ret := device.GetName(); errors.Is(ret, nvml.SUCCESS) {
		name = n
	}

	node := &Node{
		Kind: KindGpuNvidia,
		Name: name,
		Sensors: []Sensor{
			nvmlCoreLoad:   {Kind: Load, Role: RoleCore, Label: "GPU Core"},
			nvmlMemLoad:    {Kind: Load, Role: RoleMemory, Label: "Memory Controller"},
			nvmlCoreTemp:   {Kind: Temperature, Role: RoleCore, Label: "GPU Core"},
			nvmlFanSpeed:   {Kind: Fan, Label: "Fan"},
			nvmlCoreClock:  {Kind: Clock, Role: RoleCore, Label: "GPU Core"},
			nvmlBoardPower: {Kind: Power, Label: "Board Power"},
		},
	}
	node.Update = func(n *Node) {
		// Readings the driver refuses this cycle stay nil rather than
		// holding a stale value.
		for i := range n.Sensors {
			n.Sensors[i].Value = nil
		}
		if util, ret := device.GetUtilizationRates(); errors.Is(ret, nvml.SUCCESS) {
			n.Sensors[nvmlCoreLoad].Value = Float(float64(util.Gpu))
			n.Sensors[nvmlMemLoad].Value = Float(float64(util.Memory))
		}
		if temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU); errors.Is(ret, nvml.SUCCESS) {
			n.Sensors[nvmlCoreTemp].Value = Float(float64(temp))
		}
		if speed, ret := device.GetFanSpeed(); errors.Is(ret, nvml.SUCCESS) {
			n.Sensors[nvmlFanSpeed].Value = Float(float64(speed))
		}
		if clock, ret := device.GetClockInfo(nvml.CLOCK_GRAPHICS); errors.Is(ret, nvml.SUCCESS) {
			n.Sensors[nvmlCoreClock].Value = Float(float64(clock))
		}
		if mw, ret := device.GetPowerUsage(); errors.Is(ret, nvml.SUCCESS) {
			n.Sensors[nvmlBoardPower].Value = Float(float64(mw) / 1000.0)
		}
	}
	return node
}
