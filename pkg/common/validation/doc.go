// Package validation provides common validation utilities for configuration
// parameters across the threadpool library.
//
// Every function returns nil or a *errors.ValidationError, which unwraps to
// errors.ErrInvalidConfiguration.
package validation
