package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Status is the response code and client-facing message an error resolves to.
type Status struct {
	Code    int
	Message string
}

type rule struct {
	target error
	status Status
}

// Context errors win over registered rules: a publish that timed out is
// reported as a timeout even when the cause also wraps a domain error.
var contextRules = []rule{
	{context.DeadlineExceeded, Status{http.StatusGatewayTimeout, "request timeout"}},
	{context.Canceled, Status{http.StatusServiceUnavailable, "request cancelled"}},
}

// ErrorMapper resolves errors to HTTP statuses by walking its rules with
// errors.Is, first match wins.
type ErrorMapper struct {
	rules    []rule
	fallback Status
}

func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{
		fallback: Status{http.StatusInternalServerError, "internal server error"},
	}
}

// WithMapping registers target; rules are consulted in registration order.
func (m *ErrorMapper) WithMapping(target error, code int, message string) *ErrorMapper {
	m.rules = append(m.rules, rule{target: target, status: Status{code, message}})
	return m
}

func (m *ErrorMapper) WithDefault(code int, message string) *ErrorMapper {
	m.fallback = Status{code, message}
	return m
}

func (m *ErrorMapper) Map(err error) Status {
	if err == nil {
		return Status{Code: http.StatusOK}
	}
	for _, rules := range [][]rule{contextRules, m.rules} {
		for _, r := range rules {
			if errors.Is(err, r.target) {
				return r.status
			}
		}
	}
	return m.fallback
}

// HTTPError is Map rendered as an echo error carrying err as its internal cause.
func (m *ErrorMapper) HTTPError(err error) *echo.HTTPError {
	s := m.Map(err)
	return echo.NewHTTPError(s.Code, s.Message).SetInternal(err)
}
