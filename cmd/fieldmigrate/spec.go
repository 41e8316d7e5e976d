package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/getpup/fieldmigrate"
)

// loadSpec reads a migration spec from a YAML file of the form
//
//	collection: vehicles
//	fields:
//	  - name: monthly_maintenance
//	    value: 0.0
func loadSpec(path string) (fieldmigrate.Spec, error) {
	var spec fieldmigrate.Spec

	f, err := os.Open(path)
	if err != nil {
		return spec, fmt.Errorf("open spec file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("parse spec file %s: %w", path, err)
	}

	return spec, nil
}

// effectiveSpec returns the spec file's spec, or the vehicle maintenance
// spec when no file is given, with the collection flag applied.
func (a *app) effectiveSpec() (fieldmigrate.Spec, error) {
	spec := fieldmigrate.VehicleMaintenanceSpec()
	if a.opts.specFile != "" {
		var err error
		if spec, err = loadSpec(a.opts.specFile); err != nil {
			return spec, err
		}
	}
	if a.opts.collection != "" {
		spec.Collection = a.opts.collection
	}

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func (a *app) printSpec() error {
	spec, err := a.effectiveSpec()
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	return enc.Close()
}
