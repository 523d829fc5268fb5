//go:build integration

package minio_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

func startMinIO(t *testing.T) config.MinIOConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "fceadmin",
				"MINIO_ROOT_PASSWORD": "fcesecret",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "fceadmin",
		SecretKey: "fcesecret",
		Bucket:    "fce-reports-test",
	}
}

func TestReportStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := minio.NewClient(ctx, startMinIO(t), nil)
	require.NoError(t, err)
	store := minio.NewReportStore(client, nil)

	key := "reports/eval/job.md"
	body := []byte("| Test | Norm |\n|---|---|\n")
	require.NoError(t, store.Put(ctx, key, body, "text/markdown; charset=utf-8"))

	info, err := store.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Equal(t, "text/markdown; charset=utf-8", info.ContentType)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, body, got)

	link, err := store.DownloadURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Signature")

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.True(t, errors.IsNotFound(err))
}
