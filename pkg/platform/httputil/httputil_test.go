package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certproof/pkg/domain-errors"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"n": 7})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":7}`, rec.Body.String())
}

func TestWriteErrorDomain(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.New(dErrors.CodeNotFound, "certificate not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found","error_description":"certificate not found"}`, rec.Body.String())
}

func TestWriteErrorWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := errors.Join(errors.New("outer"), dErrors.New(dErrors.CodeBadRequest, "bad id"))
	WriteError(rec, wrapped)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorInternalHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
