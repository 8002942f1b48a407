package bootstrap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"

	"github.com/smallbiznis/echowrite/internal/bootstrap"
	"github.com/smallbiznis/echowrite/internal/jwt"
	"github.com/smallbiznis/echowrite/internal/repository"
)

func TestEnsureSigningKeyPersistsKeyOnStart(t *testing.T) {
	repo := repository.NewMemoryKeyRepo()
	lc := fxtest.NewLifecycle(t)

	bootstrap.EnsureSigningKey(lc, jwt.NewKeyManager(repo, ""), zaptest.NewLogger(t))

	_, err := repo.GetActiveKey(context.Background())
	require.Error(t, err)

	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	key, err := repo.GetActiveKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "HS256", key.Algorithm)
	require.Len(t, key.Secret, 64)
}
