// Package app wires the application together: configuration loading,
// module registration, registry validation and the run lifecycle.
package app
