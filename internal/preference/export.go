package preference

// OptionDoc is the serializable form of an Option.
type OptionDoc struct {
	ID        string       `json:"id" yaml:"id"`
	Label     string       `json:"label,omitempty" yaml:"label,omitempty"`
	Resource  string       `json:"resource,omitempty" yaml:"resource,omitempty"`
	Default   bool         `json:"default" yaml:"default"`
	Value     *int64       `json:"value,omitempty" yaml:"value,omitempty"`
	Requires  *Requirement `json:"requires,omitempty" yaml:"requires,omitempty"`
	Supported bool         `json:"supported" yaml:"supported"`
}

// DomainDoc is the serializable form of a Domain.
type DomainDoc struct {
	Key     string      `json:"key" yaml:"key"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Default string      `json:"default" yaml:"default"`
	Options []OptionDoc `json:"options" yaml:"options"`
}

// DescribeDomain renders d with support flags evaluated against caps.
func DescribeDomain(d Domain, caps Capabilities) DomainDoc {
	doc := DomainDoc{Key: d.Key, Name: d.Name, Options: make([]OptionDoc, 0, len(d.Options))}
	for _, o := range d.Options {
		od := OptionDoc{
			ID:        o.ID,
			Label:     o.Label,
			Resource:  o.Resource,
			Default:   o.Default,
			Supported: IsSupported(o, caps),
		}
		if o.HasValue {
			v := o.Value
			od.Value = &v
		}
		if !o.Requires.IsZero() {
			req := o.Requires
			od.Requires = &req
		}
		if o.Default {
			doc.Default = o.ID
		}
		doc.Options = append(doc.Options, od)
	}
	return doc
}

// Export describes every domain of r in registration order.
func Export(r *Registry, caps Capabilities) []DomainDoc {
	domains := r.Domains()
	out := make([]DomainDoc, 0, len(domains))
	for _, d := range domains {
		out = append(out, DescribeDomain(d, caps))
	}
	return out
}
