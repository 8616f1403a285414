// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It is responsible for parsing `gridbuild.hcl` files, evaluating
// their expressions against the workspace environment, and translating the
// decoded blocks into the format-agnostic config model.
package hcl
