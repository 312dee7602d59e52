package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("bulk: %w", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("user: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("in use: %w", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("timeout: %w", shared.ErrUnavailable), http.StatusServiceUnavailable},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, "error %v", tc.err)

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("dial tcp 10.0.0.1:5432: refused"))
	require.NotContains(t, rr.Body.String(), "10.0.0.1")

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "internal error", body.Detail)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A","bogus":1}`))
	var target struct {
		Code string `json:"code"`
	}
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)
}
