package apierr

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite_ModelNotFoundMatchesLiteralBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, New(KindModelNotFound, "Model 'gpt-4' not found").WithParam("model"))

	require.Equal(t, 404, rec.Code)

	var decoded struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Param   string `json:"param"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Equal(t, "Model 'gpt-4' not found", decoded.Error.Message)
	require.Equal(t, "invalid_request_error", decoded.Error.Type)
	require.Equal(t, "model", decoded.Error.Param)
	require.Equal(t, "model_not_found", decoded.Error.Code)
}

func TestStatusByKind(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidRequest:   400,
		KindModelNotFound:    404,
		KindPermissionDenied: 403,
		KindAuthentication:   401,
		KindRateLimit:        429,
		KindTimeout:          504,
		KindUpstreamError:    502,
		KindInternal:         500,
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.Status(), "kind %s", kind)
	}
}
