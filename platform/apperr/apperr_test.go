package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusMapsEveryKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindBadRequest, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInternal, http.StatusInternalServerError},
		{KindGone, http.StatusGone},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindUnknown, http.StatusBadRequest},
	}

	for _, tc := range cases {
		err := New(tc.kind, "", "boom")
		if got := err.HTTPStatus(); got != tc.want {
			t.Errorf("kind %d: got status %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestCodeNotFoundErrCarriesSpecCode(t *testing.T) {
	err := CodeNotFoundErr(CodeTaskNotFound, "task not found")

	if GetCode(err) != CodeTaskNotFound {
		t.Fatalf("expected code %s, got %s", CodeTaskNotFound, GetCode(err))
	}
	if !Is(err, KindNotFound) {
		t.Fatalf("expected KindNotFound")
	}
}

func TestUnwrapSupportsErrorsIs(t *testing.T) {
	sentinel := errors.New("db exploded")
	wrapped := Wrap(KindInternal, "", "query failed", sentinel)

	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected errors.Is to find the wrapped sentinel")
	}
}

func TestGetKindReturnsUnknownForPlainErrors(t *testing.T) {
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected KindUnknown for a non-apperr error")
	}
}
