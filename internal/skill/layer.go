package skill

import "fmt"

// Layer is a precedence tier a skill definition can originate from.
type Layer string

const (
	LayerBase    Layer = "base"
	LayerOrg     Layer = "org"
	LayerProject Layer = "project"
	LayerUser    Layer = "user"
)

// DefaultLayerOrder is the standard precedence, lowest first.
// The registry takes the order as an explicit parameter; this is only the
// conventional default.
func DefaultLayerOrder() []Layer {
	return []Layer{LayerBase, LayerOrg, LayerProject, LayerUser}
}

// LayerOrder is an injected total order over layers, lowest precedence first.
type LayerOrder struct {
	layers []Layer
	index  map[Layer]int
}

// NewLayerOrder builds a total order from the given layers, lowest first.
// Duplicate layers are an error; the order is fixed for the lifetime of a
// registry instance.
func NewLayerOrder(layers []Layer) (*LayerOrder, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("layer order must not be empty")
	}
	index := make(map[Layer]int, len(layers))
	for i, l := range layers {
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("duplicate layer %q in order", l)
		}
		index[l] = i
	}
	return &LayerOrder{layers: append([]Layer(nil), layers...), index: index}, nil
}

// Layers returns the order, lowest precedence first.
func (o *LayerOrder) Layers() []Layer {
	return append([]Layer(nil), o.layers...)
}

// Index returns the precedence rank of a layer (higher = wins) and whether
// the layer is part of the order.
func (o *LayerOrder) Index(l Layer) (int, bool) {
	i, ok := o.index[l]
	return i, ok
}

// Contains reports whether the layer is part of the order.
func (o *LayerOrder) Contains(l Layer) bool {
	_, ok := o.index[l]
	return ok
}

// Higher reports whether a has higher precedence than b. Both layers must be
// members of the order; callers filter unknown layers out with Contains first.
func (o *LayerOrder) Higher(a, b Layer) bool {
	return o.index[a] > o.index[b]
}
