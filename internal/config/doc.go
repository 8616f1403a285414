// Package config defines the format-agnostic configuration model of a
// gridbuild workspace, along with the Loader interface for reading it from a
// concrete format.
//
// The `config.Model` is the single source of truth for the `toolchain`,
// `scheduler` and `executor` packages. Concrete loaders, such as the HCL one,
// are provided in separate packages.
package config
