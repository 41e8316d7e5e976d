package fieldmigrate

import "fmt"

const (
	// VehiclesCollection is the collection holding vehicle records.
	VehiclesCollection = "vehicles"

	// FieldMonthlyMaintenance is the monthly maintenance cost field.
	FieldMonthlyMaintenance = "monthly_maintenance"

	// FieldMonthlyPayment is the monthly payment field.
	FieldMonthlyPayment = "monthly_payment"
)

// Spec is a migration spec: an ordered list of fields written with literal
// values to every record of Collection.
type Spec struct {
	// Collection is the name of the target collection.
	Collection string `yaml:"collection"`

	// Fields are applied in order to every record.
	Fields []Field `yaml:"fields"`
}

// VehicleMaintenanceSpec returns the migration adding the maintenance and
// payment fields, both zeroed, to every vehicle.
func VehicleMaintenanceSpec() Spec {
	return Spec{
		Collection: VehiclesCollection,
		Fields: []Field{
			{Name: FieldMonthlyMaintenance, Value: 0.0},
			{Name: FieldMonthlyPayment, Value: 0.0},
		},
	}
}

// Validate reports whether the spec can be applied.
// Returns an error wrapping ErrInvalidSpec describing the first problem found.
func (s Spec) Validate() error {
	if s.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidSpec)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidSpec)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidSpec, i)
		}
		if f.Value == nil {
			return fmt.Errorf("%w: field %q has no value", ErrInvalidSpec, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: field %q appears more than once", ErrInvalidSpec, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	return nil
}

// UpdateFor stages the spec's fields for the record identified by ref.
func (s Spec) UpdateFor(ref string) Update {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	return Update{Ref: ref, Fields: fields}
}

// FieldMap flattens fields into a name to value map. Later fields win.
func FieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return m
}
