package health_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goldkiwi/storefront/internal/infrastructure/health"
	"github.com/goldkiwi/storefront/test/mocks"
	"github.com/stretchr/testify/require"
)

func TestAuthAPIHealthChecker(t *testing.T) {
	api := &mocks.AuthAPIMock{}
	hc := health.NewAuthAPIHealthChecker(api)
	require.Equal(t, "auth_api", hc.Name())
	require.NoError(t, hc.Check(context.Background()))

	api.PingFn = func(ctx context.Context) error { return errors.New("unreachable") }
	require.Error(t, hc.Check(context.Background()))
}
