// Package schema validates operation arguments against their declarations.
//
// Workflow definitions declare the arguments an operation accepts by name,
// type, and required flag. This package compiles those declarations into a
// Schema and checks caller-supplied argument maps against it: required
// arguments must be present, present arguments must match their declared
// type, and undeclared arguments are rejected.
//
// Basic usage:
//
//	s, err := schema.ForArgs([]domain.ArgSpec{
//	    {Name: "symbol", Type: "string", Required: true},
//	    {Name: "quantity", Type: "int", Required: true},
//	    {Name: "tags", Type: "[string]"},
//	})
//	if err != nil {
//	    // bad declaration
//	}
//
//	if err := s.Validate(args); err != nil {
//	    // one or more arguments rejected; schema.ValidationErrors(err)
//	    // returns the individual failures
//	}
//
// Custom validators can be built for domain-specific checks:
//
//	positive := schema.Custom("positive", func(v any) error {
//	    n, ok := v.(float64)
//	    if !ok || n <= 0 {
//	        return fmt.Errorf("must be a positive number")
//	    }
//	    return nil
//	})
package schema
