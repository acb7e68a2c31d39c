package gateway

// Registry resolves the adapter serving a payment method. Adapters are
// consulted in registration order, so the first registered wins.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	byName := make(map[string]Adapter, len(adapters))
	items := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		items = append(items, a)
		byName[a.Name()] = a
	}
	return &Registry{adapters: items, byName: byName}
}

func (r *Registry) ForMethod(method string) (Adapter, error) {
	for _, a := range r.adapters {
		for _, m := range a.Methods() {
			if m == method {
				return a, nil
			}
		}
	}
	return nil, ErrMethodNotSupported
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, ErrNotConfigured
	}
	return a, nil
}
