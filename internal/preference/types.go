package preference

// Capabilities describes the runtime a choice list is built for.
type Capabilities struct {
	PlatformVersion int
}

// Requirement is a condition an option needs from the runtime before it may be
// offered for selection. The zero value is always satisfied.
type Requirement struct {
	MinPlatformVersion int `json:"min_platform_version,omitempty" yaml:"min_platform_version,omitempty"`
}

// IsZero reports whether the requirement places no constraint.
func (r Requirement) IsZero() bool {
	return r.MinPlatformVersion == 0
}

// Satisfied evaluates the requirement against caps.
func (r Requirement) Satisfied(caps Capabilities) bool {
	if r.MinPlatformVersion > 0 && caps.PlatformVersion < r.MinPlatformVersion {
		return false
	}
	return true
}

// Option is one selectable value of a Domain.
//
// ID is what gets persisted under the domain key. Renaming it orphans stored
// values, so it needs a migration rather than a refactor.
type Option struct {
	ID       string
	Label    string // display label reference, resolved by the UI
	Resource string // auxiliary reference (style, date pattern)
	Default  bool
	Value    int64
	HasValue bool
	Requires Requirement
}

// Domain is a closed set of mutually exclusive options sharing one
// persistence key. Options are kept in declaration order.
type Domain struct {
	Key     string
	Name    string
	Options []Option
}

// KeyOf returns the persistence key shared by every option of d.
func KeyOf(d Domain) string {
	return d.Key
}

// IsSupported reports whether opt may be offered for selection under caps.
// Unsupported options can still be read back through Parse.
func IsSupported(opt Option, caps Capabilities) bool {
	return opt.Requires.Satisfied(caps)
}

// WithValue returns a copy of o carrying the numeric payload v.
func (o Option) WithValue(v int64) Option {
	o.Value = v
	o.HasValue = true
	return o
}
