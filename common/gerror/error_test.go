package gerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := NewErrAlreadyExists("foo already exists")
	err = err.Wrap(fmt.Errorf("i'm a scary internal error"))
	require.Equal(t, "foo already exists: i'm a scary internal error", err.Error())
	require.Equal(t, "foo already exists", err.Message())

	err = err.EDetail("foo", "bar")
	require.Equal(t, "foo already exists [foo=bar]: i'm a scary internal error", err.Error())
	require.Equal(t, "foo already exists", err.Message())

	err = err.Wrap(NewErrNotFound("foo does not exist").EDetail("bar", "baz").Wrap(fmt.Errorf("i'm a scary internal error")))
	require.Equal(t, "foo already exists [foo=bar]: foo does not exist [bar=baz]: i'm a scary internal error", err.Error())
	require.Equal(t, "foo already exists", err.Message())
}

func TestMultiError(t *testing.T) {
	var results *multierror.Error

	results = multierror.Append(results, fmt.Errorf("error 1: %w", errors.New("1")))
	results = multierror.Append(results, NewErrValidationFailed("Value must be at least 8 characters long"))
	results = multierror.Append(results, fmt.Errorf("error 3: %w", errors.New("3")))

	err := results.ErrorOrNil()
	require.True(t, IsValidationFailed(err))

	var outerResults *multierror.Error
	outerResults = multierror.Append(err, fmt.Errorf("outer error 1: %w", errors.New("11")))
	require.True(t, IsValidationFailed(outerResults.ErrorOrNil()))
}

func TestVariableCompositionFailedHidesCause(t *testing.T) {
	cause := errors.New("connection refused reading group variables")
	err := fmt.Errorf("error composing: %w", NewErrVariableCompositionFailed("secret_group_variables", cause))

	require.True(t, IsVariableCompositionFailed(err))
	require.Equal(t, "Job setup failed", UserMessage(err))
	require.Contains(t, err.Error(), "connection refused")
	require.Contains(t, err.Error(), "source=secret_group_variables")
	require.ErrorIs(t, err, cause)
}

func TestErrorDetails(t *testing.T) {
	err := NewErrValidationFailed("Invalid variable").
		EDetail("key", "TOKEN").
		IDetail("owner", "project/20").
		EDetail("key", "SECRET")
	require.Equal(t, "Invalid variable [owner=project/20, key=SECRET]", err.Error())
	require.Equal(t, "Invalid variable [key=SECRET]", UserMessage(err))

	value, ok := err.Detail("owner")
	require.True(t, ok)
	require.Equal(t, "project/20", value)
	_, ok = err.Detail("missing")
	require.False(t, ok)
	require.Len(t, err.Details(), 2)
}

func TestUserMessageForInternalErrors(t *testing.T) {
	require.Equal(t, "An internal server error occurred", UserMessage(errors.New("boom")))
	require.Equal(t, "An internal server error occurred", UserMessage(NewErrInvalidConfiguration("unknown driver")))
	require.Equal(t, "Updating hidden attribute is not allowed on updates",
		UserMessage(NewErrValidationFailed("Updating hidden attribute is not allowed on updates")))
}
