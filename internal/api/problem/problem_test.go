package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid event", errors.New("boom"), "development")

	require.Equal(t, "application/problem+json", res.Result().Header.Get("Content-Type"))
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "boom", body.Detail)
	require.Equal(t, "/api/v1/events", body.Instance)
	require.Equal(t, http.StatusBadRequest, body.Status)
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadGateway, TypeUpstream, "Event store unavailable", errors.New("dial tcp 10.0.0.3:5432"), "production")

	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, http.StatusText(http.StatusBadGateway), body.Detail)
}

func TestWrite_FieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid event", nil, "production",
		WithErrors(map[string]string{"title": "is required"}))

	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, map[string]string{"title": "is required"}, body.Errors)
	require.Empty(t, body.Detail)
}
