package preference

import (
	"errors"
	"fmt"
)

// OptionsOf returns the options of d in declaration order. The slice is a
// copy; callers may not mutate the schema through it.
func OptionsOf(d Domain) []Option {
	out := make([]Option, len(d.Options))
	copy(out, d.Options)
	return out
}

// DefaultOf returns the single option of d flagged as default.
func DefaultOf(d Domain) (Option, error) {
	idx := -1
	for i, o := range d.Options {
		if !o.Default {
			continue
		}
		if idx >= 0 {
			return Option{}, &SchemaError{Kind: KindMultipleDefaults, Domain: d.Key, Option: o.ID}
		}
		idx = i
	}
	if idx < 0 {
		return Option{}, &SchemaError{Kind: KindNoDefault, Domain: d.Key}
	}
	return d.Options[idx], nil
}

// Parse resolves a persisted raw identifier to an option of d. Values that
// match no option (written by a newer version, or a removed option) resolve
// to the default. The error is only ever a SchemaError for d itself.
func Parse(d Domain, raw string) (Option, error) {
	for _, o := range d.Options {
		if o.ID == raw {
			return o, nil
		}
	}
	return DefaultOf(d)
}

// SupportedOptions returns the options of d that may be offered under caps,
// in declaration order.
func SupportedOptions(d Domain, caps Capabilities) []Option {
	var out []Option
	for _, o := range d.Options {
		if IsSupported(o, caps) {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks every domain against the registry invariants and returns
// all violations joined, or nil.
func Validate(domains ...Domain) error {
	var errs []error
	keys := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		if d.Key == "" {
			errs = append(errs, &SchemaError{Kind: KindEmptyKey, Domain: d.Name})
		} else if _, dup := keys[d.Key]; dup {
			errs = append(errs, &SchemaError{Kind: KindDuplicateDomain, Domain: d.Key})
		}
		keys[d.Key] = struct{}{}

		ids := make(map[string]struct{}, len(d.Options))
		for _, o := range d.Options {
			if o.ID == "" {
				errs = append(errs, &SchemaError{Kind: KindEmptyOptionID, Domain: d.Key})
				continue
			}
			if _, dup := ids[o.ID]; dup {
				errs = append(errs, &SchemaError{Kind: KindDuplicateOption, Domain: d.Key, Option: o.ID})
			}
			ids[o.ID] = struct{}{}
		}

		def, err := DefaultOf(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// A default that some runtime cannot offer would leave the choice
		// list without its preselected entry.
		if !def.Requires.IsZero() {
			errs = append(errs, &SchemaError{Kind: KindConditionalDefault, Domain: d.Key, Option: def.ID})
		}
	}
	return errors.Join(errs...)
}

type entry struct {
	domain Domain
	def    int
	byID   map[string]int
}

// Registry is an immutable, validated set of domains. It is safe for
// concurrent use.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// NewRegistry validates domains and builds a registry preserving their order.
func NewRegistry(domains ...Domain) (*Registry, error) {
	if err := Validate(domains...); err != nil {
		return nil, err
	}
	r := &Registry{entries: make(map[string]*entry, len(domains))}
	for _, d := range domains {
		d.Options = OptionsOf(d)
		e := &entry{domain: d, byID: make(map[string]int, len(d.Options))}
		for i, o := range d.Options {
			e.byID[o.ID] = i
			if o.Default {
				e.def = i
			}
		}
		r.entries[d.Key] = e
		r.order = append(r.order, d.Key)
	}
	return r, nil
}

// MustRegistry is NewRegistry for static schemas; it panics on a schema error.
func MustRegistry(domains ...Domain) *Registry {
	r, err := NewRegistry(domains...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) lookup(key string) (*entry, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, key)
	}
	return e, nil
}

// Keys returns every domain key in registration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Domains returns every domain in registration order.
func (r *Registry) Domains() []Domain {
	out := make([]Domain, 0, len(r.order))
	for _, k := range r.order {
		d := r.entries[k].domain
		d.Options = OptionsOf(d)
		out = append(out, d)
	}
	return out
}

// Domain returns the domain registered under key.
func (r *Registry) Domain(key string) (Domain, error) {
	e, err := r.lookup(key)
	if err != nil {
		return Domain{}, err
	}
	d := e.domain
	d.Options = OptionsOf(d)
	return d, nil
}

// Options returns the options of the domain under key in declaration order.
func (r *Registry) Options(key string) ([]Option, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return OptionsOf(e.domain), nil
}

// Default returns the default option of the domain under key.
func (r *Registry) Default(key string) (Option, error) {
	e, err := r.lookup(key)
	if err != nil {
		return Option{}, err
	}
	return e.domain.Options[e.def], nil
}

// Parse resolves raw to an option of the domain under key, falling back to
// the default for unknown values. It fails only for an unknown domain.
func (r *Registry) Parse(key, raw string) (Option, error) {
	e, err := r.lookup(key)
	if err != nil {
		return Option{}, err
	}
	if i, ok := e.byID[raw]; ok {
		return e.domain.Options[i], nil
	}
	return e.domain.Options[e.def], nil
}

// Lookup is the strict form of Parse: it reports whether raw names an option.
func (r *Registry) Lookup(key, raw string) (Option, bool) {
	e, ok := r.entries[key]
	if !ok {
		return Option{}, false
	}
	i, ok := e.byID[raw]
	if !ok {
		return Option{}, false
	}
	return e.domain.Options[i], true
}

// Supported returns the options of the domain under key that may be offered
// under caps.
func (r *Registry) Supported(key string, caps Capabilities) ([]Option, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return SupportedOptions(e.domain, caps), nil
}
