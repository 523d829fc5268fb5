package grpc

import (
	"context"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// toStatus maps an application error to a gRPC status. Server-side faults
// carry only the code's default message; the cause stays in the logs.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	code := errors.GetCode(err)
	grpcCode := codeForHTTPStatus(errors.HTTPStatusForCode(code))
	if isServerFault(grpcCode) {
		return status.Errorf(grpcCode, "[%s] %s", code, errors.DefaultMessageForCode(code))
	}
	return status.Error(grpcCode, err.Error())
}

func codeForHTTPStatus(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.FailedPrecondition
	case http.StatusRequestEntityTooLarge:
		return codes.ResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// statusCode extracts the code from an error already passed through toStatus.
func statusCode(err error) codes.Code {
	return status.Code(err)
}

func isServerFault(c codes.Code) bool {
	switch c {
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
		return true
	}
	return false
}
