package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorFormatting(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected node")

	withLine := NewParseError("grid.yaml", 12, underlying)
	require.EqualError(t, withLine, "parse error: grid.yaml:12: unexpected node")

	withoutLine := NewParseError("grid.yaml", 0, underlying)
	require.EqualError(t, withoutLine, "parse error: grid.yaml: unexpected node")

	var parseErr *ParseError
	require.ErrorAs(t, withLine, &parseErr)
	require.Same(t, underlying, errors.Unwrap(withLine))
}

func TestValidationErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewValidationError("matrix.allow_failures", "references unknown version", nil)
	require.EqualError(t, err, "validation error: matrix.allow_failures: references unknown version")

	withoutField := NewValidationError("", "broken", nil)
	require.EqualError(t, withoutField, "validation error: broken")
}

func TestExecutionErrorUnwrap(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("exit status 2")
	err := NewExecutionError("run_tests", underlying)
	require.EqualError(t, err, "execution error on step run_tests: exit status 2")
	require.ErrorIs(t, err, underlying)
}

func TestEntryErrorFormatting(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("install failed")
	err := NewEntryError("3.6", underlying)
	require.EqualError(t, err, "matrix entry 3.6 failed: install failed")
	require.ErrorIs(t, err, underlying)

	anonymous := NewEntryError("", underlying)
	require.EqualError(t, anonymous, "matrix entry failed: install failed")
}

func TestPluginErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewPluginError("script", fmt.Errorf("plugin already registered"))
	require.EqualError(t, err, "plugin error [script]: plugin already registered")
}
