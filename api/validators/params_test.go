package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
)

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDParam(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "vendorId", id.String()), "vendorId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "vendorId", "nope"), "vendorId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(httptest.NewRequest(http.MethodGet, "/", nil), "vendorId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryTime(t *testing.T) {
	got, err := ParseQueryTime(httptest.NewRequest(http.MethodGet, "/?from=2026-03-01T10:00:00-06:00", nil), "from")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 16, got.Hour())

	got, err = ParseQueryTime(httptest.NewRequest(http.MethodGet, "/", nil), "from")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseQueryTime(httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil), "from")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	got, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=25", nil), "limit", 50, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 25, got)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 50, 1, 200)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
