package signals

import "fmt"

// Category groups signals by the kind of host property they describe.
type Category string

const (
	CategoryBrowser   Category = "browser"
	CategoryHardware  Category = "hardware"
	CategoryRendering Category = "rendering"
	CategoryLocale    Category = "locale"
	CategoryMedia     Category = "media"
	CategoryNetwork   Category = "network"
	CategoryIntegrity Category = "integrity"
	CategoryRequest   Category = "request"
)

// Metadata is fixed at registration time.
type Metadata struct {
	// Weight is the relative contribution to confidence.
	Weight float64 `json:"weight" yaml:"weight"`
	// Entropy is the estimated uniqueness contribution in bits.
	Entropy float64 `json:"entropy_bits" yaml:"entropy_bits"`
	// Stable signals are expected to reproduce across runs on one host.
	Stable   bool     `json:"stable" yaml:"stable"`
	Category Category `json:"category" yaml:"category"`
}

// Registry is the stability classifier: a static lookup from signal name to
// metadata, kept in registration order.
type Registry struct {
	order []Name
	meta  map[Name]Metadata
}

// NewRegistry registers every source's metadata in order.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{meta: make(map[Name]Metadata, len(sources))}
	for _, s := range sources {
		if err := r.Register(s.Name(), s.Metadata()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a name. Names are unique.
func (r *Registry) Register(name Name, meta Metadata) error {
	if name == "" {
		return fmt.Errorf("signals: empty source name")
	}
	if _, exists := r.meta[name]; exists {
		return fmt.Errorf("signals: duplicate source name %q", name)
	}
	r.order = append(r.order, name)
	r.meta[name] = meta
	return nil
}

func (r *Registry) Lookup(name Name) (Metadata, bool) {
	m, ok := r.meta[name]
	return m, ok
}

func (r *Registry) IsStable(name Name) bool {
	return r.meta[name].Stable
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []Name {
	out := make([]Name, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.order) }
