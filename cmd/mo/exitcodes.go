package main

import (
	"errors"
	"net/http"

	"github.com/os2mo/mora/modules/org/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitStore      = 4
	exitDB         = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// serviceCode classifies a service error: client errors are validation
// failures, the rest store failures.
func serviceCode(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) && svcErr.Status < http.StatusInternalServerError {
		return withCode(exitValidation, err)
	}
	return withCode(exitStore, err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
