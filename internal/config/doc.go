// Package config defines the format-agnostic configuration model that the
// rest of the application consumes, along with the Loader and Converter
// interfaces a format-specific frontend must implement.
package config
