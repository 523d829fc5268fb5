package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// EngineClient calls fce.v1.EngineService and decodes the Struct answers
// into engine types.
type EngineClient struct {
	cc grpc.ClientConnInterface
}

func NewEngineClient(cc grpc.ClientConnInterface) *EngineClient {
	return &EngineClient{cc: cc}
}

// Classify returns one decision per record, in input order.
func (c *EngineClient) Classify(ctx context.Context, records []fce.TestRecord, opts ...grpc.CallOption) ([]fce.Decision, error) {
	var out classifyResult
	if err := c.invoke(ctx, "Classify", recordsMessage{Records: records}, &out, opts...); err != nil {
		return nil, err
	}
	decisions := make([]fce.Decision, len(out.Results))
	for i, r := range out.Results {
		decisions[i] = fce.Decision{Section: r.Section, RuleID: r.RuleID}
	}
	return decisions, nil
}

// InferNorms returns one NormInfo per name, in input order.
func (c *EngineClient) InferNorms(ctx context.Context, names []string, opts ...grpc.CallOption) ([]fce.NormInfo, error) {
	var out normsResult
	if err := c.invoke(ctx, "InferNorms", namesMessage{Names: names}, &out, opts...); err != nil {
		return nil, err
	}
	infos := make([]fce.NormInfo, len(out.Results))
	for i, r := range out.Results {
		infos[i] = r.Norms
	}
	return infos, nil
}

func (c *EngineClient) Group(ctx context.Context, records []fce.TestRecord, opts ...grpc.CallOption) ([]fce.Group[fce.TestRecord], error) {
	var out groupResult
	if err := c.invoke(ctx, "Group", recordsMessage{Records: records}, &out, opts...); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// invoke returns gRPC status errors untouched so callers can inspect codes.
func (c *EngineClient) invoke(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+EngineServiceName+"/"+method, in, out, opts...); err != nil {
		return err
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "decode "+method+" response")
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "decode "+method+" response")
	}
	return nil
}
