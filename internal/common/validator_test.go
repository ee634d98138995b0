package common

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

type loginBody struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Remember int    `validate:"max=1"`
}

func TestGenericEchoValidator_Valid(t *testing.T) {
	v := &GenericEchoValidator{}
	if err := v.Validate(&loginBody{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.Validator == nil {
		t.Fatal("expected validator to be initialised lazily")
	}
}

func TestGenericEchoValidator_NamesFailedFields(t *testing.T) {
	v := &GenericEchoValidator{}
	err := v.Validate(&loginBody{Username: "admin", Remember: 3})
	if err == nil {
		t.Fatal("expected error for missing password")
	}
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, httpErr.Code)
	}
	if want := "password is required, Remember fails max"; httpErr.Message != want {
		t.Errorf("expected message %q, got %q", want, httpErr.Message)
	}
}
