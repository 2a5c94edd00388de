package sensor

import (
	"reflect"
	"testing"
)

func namedNode(name string, visited *[]string, children ...*Node) *Node {
	n := &Node{Kind: KindController, Name: name, Children: children}
	n.Update = func(*Node) {
		*visited = append(*visited, name)
	}
	return n
}

func TestRefresh_PreOrder(t *testing.T) {
	var visited []string
	root := namedNode("root", &visited,
		namedNode("a", &visited,
			namedNode("a1", &visited),
			namedNode("a2", &visited),
		),
		namedNode("b", &visited),
	)

	Refresh(root)

	want := []string{"root", "a", "a1", "a2", "b"}
	if !reflect.DeepEqual(visited, want) {
		t.Fatalf("Refresh() visit order = %v, want %v", visited, want)
	}
}

func TestRefresh_LeafIsBaseCase(t *testing.T) {
	var visited []string
	leaf := namedNode("leaf", &visited)

	Refresh(leaf)

	if !reflect.DeepEqual(visited, []string{"leaf"}) {
		t.Fatalf("Refresh() visit order = %v, want just the leaf", visited)
	}
}

func TestRefresh_NilRootAndNilUpdate(t *testing.T) {
	Refresh(nil)

	// A structural node without an update hook still descends.
	var visited []string
	root := &Node{Kind: KindMotherboard, Children: []*Node{namedNode("child", &visited)}}
	Refresh(root)
	if !reflect.DeepEqual(visited, []string{"child"}) {
		t.Fatalf("Refresh() visit order = %v, want [child]", visited)
	}
}

func TestRefresh_ReentrantAcrossTicks(t *testing.T) {
	var visited []string
	root := namedNode("root", &visited, namedNode("child", &visited))

	Refresh(root)
	Refresh(root)

	want := []string{"root", "child", "root", "child"}
	if !reflect.DeepEqual(visited, want) {
		t.Fatalf("Refresh() visit order across ticks = %v, want %v", visited, want)
	}
}

func TestHardwareKind_IsGPU(t *testing.T) {
	tests := []struct {
		kind HardwareKind
		want bool
	}{
		{KindGpuNvidia, true},
		{KindGpuAmd, true},
		{KindGpuIntel, true},
		{KindCPU, false},
		{KindMotherboard, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsGPU(); got != tt.want {
			t.Fatalf("%v.IsGPU() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
