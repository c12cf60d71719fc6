package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewR2ClientUsesAccountEndpoint(t *testing.T) {
	client, err := NewR2Client(context.Background(), "acc123", "key", "secret")
	require.NoError(t, err)

	opts := client.Options()
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "https://acc123.r2.cloudflarestorage.com", *opts.BaseEndpoint)
	assert.Equal(t, "auto", opts.Region)
}

func TestNewHTTPClientDefaultsTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewHTTPClient(0).Timeout)
	assert.Equal(t, 5*time.Second, NewHTTPClient(5*time.Second).Timeout)
}
