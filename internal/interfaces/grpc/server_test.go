package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

type fixture struct {
	srv    *Server
	conn   *grpc.ClientConn
	logger *testutil.MockLogger
}

// startServer serves impl over an in-memory listener and returns a connected
// client.
func startServer(t *testing.T, impl EngineServer, opts ...Option) *fixture {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := testutil.NewMockLogger()

	srv, err := NewServer(config.GRPCConfig{}, append([]Option{WithListener(lis), WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	srv.RegisterService(&EngineServiceDesc, impl)

	go func() { _ = srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		_ = srv.Stop(context.Background())
	})
	return &fixture{srv: srv, conn: conn, logger: logger}
}

// panicking fails every call in a different way.
type panicking struct{}

func (panicking) Classify(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	panic("boom")
}

func (panicking) InferNorms(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errors.Wrap(context.DeadlineExceeded, errors.ErrCodeDatabaseError, "citation store: dial 10.0.0.7")
}

func (panicking) Group(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errors.NotFound("no such evaluation")
}

func TestServer_HealthServing(t *testing.T) {
	f := startServer(t, NewEngineService(EngineConfig{}, nil, nil))

	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: EngineServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	assert.True(t, f.logger.HasMessage("info", "grpc service registered"))
}

func TestServer_RecoversPanics(t *testing.T) {
	f := startServer(t, panicking{})

	_, err := NewEngineClient(f.conn).Classify(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, f.logger.HasMessage("error", "grpc panic recovered"))
}

func TestServer_MapsApplicationErrors(t *testing.T) {
	f := startServer(t, panicking{})
	client := NewEngineClient(f.conn)

	_, err := client.Group(context.Background(), nil)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "no such evaluation")

	_, err = client.InferNorms(context.Background(), []string{"grip"})
	// The wrapped deadline wins over the database code.
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestServer_MasksServerFaults(t *testing.T) {
	f := startServer(t, faulty{})

	_, err := NewEngineClient(f.conn).Classify(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "10.0.0.7")
	assert.True(t, f.logger.HasMessage("error", "grpc request failed"))
}

type faulty struct{ panicking }

func (faulty) Classify(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errors.New(errors.ErrCodeDatabaseError, "dial 10.0.0.7 refused")
}

func TestServer_RecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "fce_grpc"}, nil)
	require.NoError(t, err)
	f := startServer(t, NewEngineService(EngineConfig{}, nil, nil), WithMetrics(prometheus.NewAppMetrics(collector)))

	_, err = NewEngineClient(f.conn).InferNorms(context.Background(), []string{"Grip Strength"})
	require.NoError(t, err)

	families, err := collector.Gatherer().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "fce_grpc_grpc_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == "InferNorms" && labels["code"] == "OK" {
				found = true
				assert.Equal(t, 1.0, m.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found, "grpc request counter not recorded")
}

func TestServer_DoubleStart(t *testing.T) {
	f := startServer(t, NewEngineService(EngineConfig{}, nil, nil))
	require.Eventually(t, func() bool {
		f.srv.mu.Lock()
		defer f.srv.mu.Unlock()
		return f.srv.started
	}, time.Second, 10*time.Millisecond)

	err := f.srv.Start()
	assert.True(t, errors.IsConflict(err))
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv, err := NewServer(config.GRPCConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, srv.Addr())
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestNewServer_InvalidAddress(t *testing.T) {
	_, err := NewServer(config.GRPCConfig{Host: "256.256.256.256", Port: 1})
	assert.Error(t, err)
}

func TestSplitMethodName(t *testing.T) {
	tests := []struct {
		full, service, method string
	}{
		{"/fce.v1.EngineService/Classify", "fce.v1.EngineService", "Classify"},
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"NoSlash", "unknown", "NoSlash"},
	}
	for _, tt := range tests {
		service, method := splitMethodName(tt.full)
		assert.Equal(t, tt.service, service, tt.full)
		assert.Equal(t, tt.method, method, tt.full)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", errors.Validation("subject is required"), codes.InvalidArgument},
		{"too large", errors.New(errors.ErrCodeBatchTooLarge, "x"), codes.ResourceExhausted},
		{"not ready", errors.New(errors.ErrCodeReportNotReady, "x"), codes.FailedPrecondition},
		{"publish", errors.New(errors.ErrCodeReportPublishFailed, "x"), codes.Unavailable},
		{"cancelled", errors.Wrap(context.Canceled, errors.ErrCodeBatchCancelled, "x"), codes.Canceled},
		{"plain", assert.AnError, codes.Internal},
		{"status passthrough", status.Error(codes.Aborted, "x"), codes.Aborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
	assert.NoError(t, toStatus(nil))
}
