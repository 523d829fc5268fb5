package grpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

const EngineServiceName = "fce.v1.EngineService"

// EngineServer is the server API of fce.v1.EngineService.
type EngineServer interface {
	// Classify takes {"records":[TestRecord...]} and answers
	// {"results":[{"testId","testName","section","ruleId"}...]}.
	Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	// InferNorms takes {"names":[string...]} and answers
	// {"results":[{"name","norms"}...]}.
	InferNorms(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	// Group takes {"records":[TestRecord...]} and answers
	// {"groups":[{"section","items"}...]} with all five sections in order.
	Group(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// EngineServiceDesc registers an EngineServer with a grpc.Server.
var EngineServiceDesc = grpc.ServiceDesc{
	ServiceName: EngineServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: unaryHandler("Classify", EngineServer.Classify)},
		{MethodName: "InferNorms", Handler: unaryHandler("InferNorms", EngineServer.InferNorms)},
		{MethodName: "Group", Handler: unaryHandler("Group", EngineServer.Group)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fce/v1/engine.proto",
}

type engineMethod func(EngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call engineMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + EngineServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(EngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// EngineConfig bounds the batches accepted by EngineService.
type EngineConfig struct {
	Workers      int
	MaxBatchSize int
}

// EngineService answers EngineService calls from pkg/fce.
type EngineService struct {
	cfg     EngineConfig
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

func NewEngineService(cfg EngineConfig, metrics *prometheus.AppMetrics, logger logging.Logger) *EngineService {
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EngineService{cfg: cfg, metrics: metrics, logger: logger.Named("engine")}
}

var _ EngineServer = (*EngineService)(nil)

type recordsMessage struct {
	Records []fce.TestRecord `json:"records"`
}

type classification struct {
	TestID   string      `json:"testId"`
	TestName string      `json:"testName"`
	Section  fce.Section `json:"section"`
	RuleID   string      `json:"ruleId"`
}

type classifyResult struct {
	Results []classification `json:"results"`
}

func (s *EngineService) Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req recordsMessage
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.Records)); err != nil {
		return nil, err
	}

	decisions, err := fce.ExplainAll(ctx, req.Records, s.cfg.Workers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBatchCancelled, "classification cancelled")
	}
	out := classifyResult{Results: make([]classification, len(decisions))}
	for i, d := range decisions {
		s.metrics.RecordClassification(d.Section.String(), d.RuleID)
		rec := req.Records[i]
		out.Results[i] = classification{TestID: rec.TestID, TestName: rec.TestName, Section: d.Section, RuleID: d.RuleID}
	}
	return encodeStruct(out)
}

type namesMessage struct {
	Names []string `json:"names"`
}

type normResult struct {
	Name  string       `json:"name"`
	Norms fce.NormInfo `json:"norms"`
}

type normsResult struct {
	Results []normResult `json:"results"`
}

func (s *EngineService) InferNorms(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req namesMessage
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.Names)); err != nil {
		return nil, err
	}

	infos, err := fce.InferAll(ctx, req.Names, s.cfg.Workers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBatchCancelled, "norm inference cancelled")
	}
	out := normsResult{Results: make([]normResult, len(infos))}
	for i, info := range infos {
		s.metrics.RecordNormInference(string(info.Category))
		out.Results[i] = normResult{Name: req.Names[i], Norms: info}
	}
	return encodeStruct(out)
}

type groupResult struct {
	Groups []fce.Group[fce.TestRecord] `json:"groups"`
}

func (s *EngineService) Group(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req recordsMessage
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if s.cfg.MaxBatchSize > 0 && len(req.Records) > s.cfg.MaxBatchSize {
		return nil, s.tooLarge(len(req.Records))
	}
	return encodeStruct(groupResult{Groups: fce.GroupBySection(req.Records)})
}

// checkBatch rejects empty and oversized batches.
func (s *EngineService) checkBatch(n int) error {
	if n == 0 {
		return errors.New(errors.ErrCodeEmptyBatch, "batch must not be empty")
	}
	if s.cfg.MaxBatchSize > 0 && n > s.cfg.MaxBatchSize {
		return s.tooLarge(n)
	}
	return nil
}

func (s *EngineService) tooLarge(n int) error {
	return errors.New(errors.ErrCodeBatchTooLarge, "batch too large").
		WithDetail(fmt.Sprintf("size=%d max=%d", n, s.cfg.MaxBatchSize))
}

// decodeStruct converts a Struct message into v through its JSON form,
// rejecting unknown fields.
func decodeStruct(in *structpb.Struct, v interface{}) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return errors.InvalidParam("invalid request message").WithCause(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.InvalidParam("invalid request message").WithDetail(err.Error())
	}
	return nil
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "encode response")
	}
	return out, nil
}
