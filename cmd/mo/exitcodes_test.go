package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/services"
)

func TestExitCode(t *testing.T) {
	t.Parallel()
	require.Equal(t, exitOK, exitCode(nil))
	require.Equal(t, 1, exitCode(errors.New("plain")))
	require.Equal(t, exitDB, exitCode(fmt.Errorf("wrapped: %w", withCode(exitDB, errors.New("down")))))
	require.NoError(t, withCode(exitDB, nil))
}

func TestServiceCode(t *testing.T) {
	t.Parallel()
	require.NoError(t, serviceCode(nil))
	require.Equal(t, exitValidation, exitCode(serviceCode(&services.ServiceError{Status: 404, Code: services.CodeNotFound})))
	require.Equal(t, exitStore, exitCode(serviceCode(&services.ServiceError{Status: 502, Code: services.CodeStoreUnavailable})))
	require.Equal(t, exitStore, exitCode(serviceCode(errors.New("boom"))))
}
