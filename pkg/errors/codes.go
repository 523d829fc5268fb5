package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition. Codes
// are prefixed with the module that owns them, e.g. "CIT_001".
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessagingError     ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeSearchError        ErrorCode = "COMMON_016"
	ErrCodeInvalidConfig      ErrorCode = "COMMON_017"
)

// Short aliases used at call sites.
const (
	CodeUnknown      = ErrorCode("")
	CodeOK           = ErrorCode("OK")
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
)

// Engine (FCE) error codes. The engine itself is total; these cover the
// request surfaces wrapped around it.
const (
	ErrCodeEmptyBatch       ErrorCode = "FCE_001"
	ErrCodeBatchTooLarge    ErrorCode = "FCE_002"
	ErrCodeUnknownSection   ErrorCode = "FCE_003"
	ErrCodeBatchCancelled   ErrorCode = "FCE_004"
	ErrCodeEvaluationNoTest ErrorCode = "FCE_005"
)

// Citation (reference resolver) error codes.
const (
	ErrCodeCitationNotFound      ErrorCode = "CIT_001"
	ErrCodeCitationInvalid       ErrorCode = "CIT_002"
	ErrCodeCitationCatalogBroken ErrorCode = "CIT_003"
)

// Reporting error codes.
const (
	ErrCodeReportJobNotFound    ErrorCode = "RPT_001"
	ErrCodeReportNotReady       ErrorCode = "RPT_002"
	ErrCodeReportFormatInvalid  ErrorCode = "RPT_003"
	ErrCodeReportRenderFailed   ErrorCode = "RPT_004"
	ErrCodeReportPublishFailed  ErrorCode = "RPT_005"
	ErrCodeReportArtifactFailed ErrorCode = "RPT_006"
	ErrCodeReportIndexFailed    ErrorCode = "RPT_007"
	ErrCodeReportInProgress     ErrorCode = "RPT_008"
)

// ErrorCodeHTTPStatus maps codes to the HTTP status returned by the API.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusBadRequest,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusBadGateway,
	ErrCodeSearchError:        http.StatusBadGateway,
	ErrCodeInvalidConfig:      http.StatusInternalServerError,

	ErrCodeEmptyBatch:       http.StatusBadRequest,
	ErrCodeBatchTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeUnknownSection:   http.StatusBadRequest,
	ErrCodeBatchCancelled:   http.StatusServiceUnavailable,
	ErrCodeEvaluationNoTest: http.StatusBadRequest,

	ErrCodeCitationNotFound:      http.StatusNotFound,
	ErrCodeCitationInvalid:       http.StatusBadRequest,
	ErrCodeCitationCatalogBroken: http.StatusInternalServerError,

	ErrCodeReportJobNotFound:    http.StatusNotFound,
	ErrCodeReportNotReady:       http.StatusConflict,
	ErrCodeReportFormatInvalid:  http.StatusBadRequest,
	ErrCodeReportRenderFailed:   http.StatusInternalServerError,
	ErrCodeReportPublishFailed:  http.StatusBadGateway,
	ErrCodeReportArtifactFailed: http.StatusBadGateway,
	ErrCodeReportIndexFailed:    http.StatusBadGateway,
	ErrCodeReportInProgress:     http.StatusConflict,
}

// ErrorCodeMessage holds the default message for each code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeSearchError:        "search backend error",
	ErrCodeInvalidConfig:      "invalid configuration",

	ErrCodeEmptyBatch:       "no test records supplied",
	ErrCodeBatchTooLarge:    "too many test records in one request",
	ErrCodeUnknownSection:   "unknown report section",
	ErrCodeBatchCancelled:   "batch classification cancelled",
	ErrCodeEvaluationNoTest: "evaluation contains no tests",

	ErrCodeCitationNotFound:      "citation not found",
	ErrCodeCitationInvalid:       "invalid citation",
	ErrCodeCitationCatalogBroken: "built-in citation catalog could not be loaded",

	ErrCodeReportJobNotFound:    "report job not found",
	ErrCodeReportNotReady:       "report is not ready",
	ErrCodeReportFormatInvalid:  "unsupported report format",
	ErrCodeReportRenderFailed:   "failed to render report",
	ErrCodeReportPublishFailed:  "failed to enqueue report job",
	ErrCodeReportArtifactFailed: "failed to store report artefact",
	ErrCodeReportIndexFailed:    "failed to index report",
	ErrCodeReportInProgress:     "report job is being processed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
