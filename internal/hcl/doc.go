// Package hcl is the HCL frontend: it discovers and parses flow files and
// module manifests, translates them into the format-agnostic config model,
// and provides the data binding between cty values and Go structs.
package hcl
