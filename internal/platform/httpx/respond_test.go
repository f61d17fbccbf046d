package httpx

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSONStrict(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(r, &p))
	require.Equal(t, "a", p.Name)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"nmae":"a"}`))
	require.Error(t, DecodeJSON(r, &payload{}))

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	require.Error(t, DecodeJSON(r, &payload{}))
}

func TestProblemBody(t *testing.T) {
	w := httptest.NewRecorder()
	Problem(w, 422, "Unprocessable", "insufficient stock")
	require.Equal(t, 422, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), `"title":"Unprocessable"`)
	require.Contains(t, w.Body.String(), `"status":422`)
}
