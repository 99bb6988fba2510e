package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	require.Equal(t, "400 Bad Request: missing prompt", StatusError{
		Status:       "400 Bad Request",
		ErrorMessage: "missing prompt",
	}.Error())
	require.Equal(t, "missing prompt", StatusError{ErrorMessage: "missing prompt"}.Error())
	require.NotEmpty(t, StatusError{}.Error())
}

func TestGenerateRequestOmitsDefaults(t *testing.T) {
	data, err := json.Marshal(GenerateRequest{Model: "sparse-debug", Prompt: "waves"})
	require.NoError(t, err)
	require.JSONEq(t, `{"model":"sparse-debug","prompt":"waves"}`, string(data))
}

func TestGenerateResponseRoundTrip(t *testing.T) {
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","done":false,"step":2,"total_steps":8}`), &resp))
	require.Equal(t, 2, resp.Step)
	require.Equal(t, 8, resp.TotalSteps)
	require.False(t, resp.Done)
}
