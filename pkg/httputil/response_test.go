package httputil

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]int64{"request_id": 42}))

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"request_id":42}`, w.Body.String())
}

func TestWriteDetailEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "dataset not found in catalog")

	assert.Equal(t, 400, w.Code)
	assert.JSONEq(t, `{"detail":"dataset not found in catalog"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, 401, errors.New("authorization failed"))

	assert.Equal(t, 401, w.Code)
	assert.JSONEq(t, `{"detail":"authorization failed"}`, w.Body.String())
}

func TestWriteInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w)

	assert.Equal(t, 500, w.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, w.Body.String())
}
