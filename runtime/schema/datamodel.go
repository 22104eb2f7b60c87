package schema

// Datamodel is the part of a schema the runtime needs: models and enums.
type Datamodel struct {
	Models  []*Model
	Enums   []*Enum
	Configs []*ConfigBlock
}

// Model is a model declaration.
type Model struct {
	Name         string
	Fields       []*Field
	ID           []string
	UniqueGroups [][]string
}

// Field is a model field.
type Field struct {
	Name      string
	Type      string
	List      bool
	Optional  bool
	ID        bool
	Unique    bool
	UpdatedAt bool
	Relation  bool
	Enum      bool
	Default   *Default
}

// Default is the value of a @default attribute: either a function such as
// autoincrement(), uuid(), cuid() or now(), or a literal.
type Default struct {
	Function string
	Value    interface{}
}

// Enum is an enum declaration.
type Enum struct {
	Name   string
	Values []string
}

// ConfigBlock is a datasource or generator block.
type ConfigBlock struct {
	Kind   string
	Name   string
	Values map[string]interface{}
}

var scalarTypes = map[string]bool{
	"String":   true,
	"Boolean":  true,
	"Int":      true,
	"BigInt":   true,
	"Float":    true,
	"Decimal":  true,
	"DateTime": true,
	"Json":     true,
	"Bytes":    true,
}

func isScalar(t string) bool {
	return scalarTypes[t]
}

// Model returns the model called name.
func (d *Datamodel) Model(name string) (*Model, bool) {
	if d == nil {
		return nil, false
	}
	for _, m := range d.Models {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ModelNames returns the model names in declaration order.
func (d *Datamodel) ModelNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.Models))
	for i, m := range d.Models {
		names[i] = m.Name
	}
	return names
}

// Datasource returns the first datasource block, if any.
func (d *Datamodel) Datasource() (*ConfigBlock, bool) {
	if d == nil {
		return nil, false
	}
	for _, c := range d.Configs {
		if c.Kind == "datasource" {
			return c, true
		}
	}
	return nil, false
}

// Field returns the field called name, or nil.
func (m *Model) Field(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ScalarFields returns the fields stored on the model itself.
func (m *Model) ScalarFields() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if !f.Relation {
			out = append(out, f)
		}
	}
	return out
}

// UniqueCriteria returns every set of fields that identifies a record:
// the id, single-field @unique fields and @@unique groups.
func (m *Model) UniqueCriteria() [][]string {
	var out [][]string
	if len(m.ID) > 0 {
		out = append(out, m.ID)
	}
	for _, f := range m.Fields {
		if f.Unique && !f.ID {
			out = append(out, []string{f.Name})
		}
	}
	return append(out, m.UniqueGroups...)
}
