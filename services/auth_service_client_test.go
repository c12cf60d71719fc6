package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthServiceClientValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/validate", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["access_token"] != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(ValidateResponse{UserID: "uid-1", DeviceID: body["device_id"]})
	}))
	defer srv.Close()

	client := NewAuthServiceClient(srv.URL+"/", "svc-token", zaptest.NewLogger(t))

	resp, err := client.ValidateToken(context.Background(), "good", "phone")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", resp.UserID)
	assert.Equal(t, "phone", resp.DeviceID)

	_, err = client.ValidateToken(context.Background(), "bad", "phone")
	assert.ErrorContains(t, err, "401")
}
