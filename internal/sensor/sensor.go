package sensor

// HardwareKind identifies the class of hardware a tree node represents.
type HardwareKind int

const (
	KindUnknown HardwareKind = iota
	KindCPU
	KindGpuNvidia
	KindGpuAmd
	KindGpuIntel
	KindMemory
	KindMotherboard
	KindController
	KindStorage
)

func (k HardwareKind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGpuNvidia:
		return "gpu-nvidia"
	case KindGpuAmd:
		return "gpu-amd"
	case KindGpuIntel:
		return "gpu-intel"
	case KindMemory:
		return "memory"
	case KindMotherboard:
		return "motherboard"
	case KindController:
		return "controller"
	case KindStorage:
		return "storage"
	}
	return "unknown"
}

// IsGPU reports whether the kind is any recognized GPU vendor.
func (k HardwareKind) IsGPU() bool {
	return k == KindGpuNvidia || k == KindGpuAmd || k == KindGpuIntel
}

// SensorKind identifies what a sensor measures.
type SensorKind int

const (
	Temperature SensorKind = iota
	Load
	Clock
	Power
	Fan
)

// SensorRole distinguishes sensors of the same kind on one node, e.g.
// the core temperature from the memory-junction temperature. Providers
// set it when they know the domain; RoleUnspecified falls back to
// label matching in consumers.
type SensorRole int

const (
	RoleUnspecified SensorRole = iota
	RoleCore
	RoleMemory
	RoleHotSpot
)

// Sensor is a single readable value on a hardware node. A nil Value
// means the reading is not supported on this hardware; it is never an
// error.
type Sensor struct {
	Kind  SensorKind
	Role  SensorRole
	Label string
	Value *float64
}

// Node is one element of the hardware sensor tree. The topology is
// owned by the provider that built it; consumers only walk it and
// trigger refresh through Update.
type Node struct {
	Kind     HardwareKind
	Name     string
	Sensors  []Sensor
	Children []*Node

	// Update refreshes the node's sensor values in place. Nil for
	// purely structural nodes.
	Update func(*Node)
}

// Refresh walks the tree depth-first pre-order: a node's update hook
// runs before any of its children are visited, so every sensor under a
// node is current once the node's subtree has been walked. A node with
// no children is a no-op beyond its own refresh.
func Refresh(root *Node) {
	if root == nil {
		return
	}
	if root.Update != nil {
		root.Update(root)
	}
	for _, child := range root.Children {
		Refresh(child)
	}
}

// Provider exposes the root of a sensor tree it owns.
type Provider interface {
	Root() *Node
}

// StaticProvider wraps an already-assembled tree, typically the merge
// of several provider roots under one synthetic node.
type StaticProvider struct {
	Node *Node
}

func (p StaticProvider) Root() *Node { return p.Node }

// Float returns a pointer to v, for filling in sensor values.
func Float(v float64) *float64 { return &v }
