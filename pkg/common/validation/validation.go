package validation

import (
	"reflect"
	"strings"
	"time"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// Number covers the numeric settings validated across the module: worker
// counts, bursts, rates.
type Number interface {
	~int | ~int32 | ~int64 | ~uint | ~float64
}

// ValidatePositive rejects values <= 0.
func ValidatePositive[T Number](module, field string, value T) error {
	if value <= 0 {
		return tperrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative rejects values < 0.
func ValidateNonNegative[T Number](module, field string, value T) error {
	if value < 0 {
		return tperrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidatePositiveDuration rejects durations <= 0.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return tperrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 1s or 500ms")
	}
	return nil
}

// ValidateNotNil rejects a nil interface and also a non-nil interface
// holding a nil pointer, func, map, slice or channel. A nil *Pool passed as
// an Executor is caught here instead of panicking on first use.
func ValidateNotNil(module, field string, value any) error {
	if isNil(value) {
		return tperrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// ValidateNotEmpty rejects the empty string. Whitespace is accepted.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return tperrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateOneOf accepts value if it matches one of allowed, ignoring case.
func ValidateOneOf(module, field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return tperrors.NewValidationError(module, field, value, "unsupported value").
		WithHint("use one of: " + strings.Join(allowed, ", "))
}
