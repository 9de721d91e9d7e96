package awsutil

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrorType classifies failures coming back from AWS.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeAccessDenied ErrorType = "access_denied"
	ErrorTypeTemporary    ErrorType = "temporary"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Classify maps err onto an ErrorType.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return ErrorTypeNotFound
		case "AccessDenied", "Forbidden", "ExpiredToken", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "InvalidToken":
			return ErrorTypeAccessDenied
		case "InternalError", "ServiceUnavailable", "SlowDown", "RequestTimeout":
			return ErrorTypeTemporary
		}
	}

	var httpErr *smithyhttp.ResponseError
	if errors.As(err, &httpErr) {
		switch httpErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return ErrorTypeNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrorTypeAccessDenied
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return ErrorTypeTemporary
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTemporary
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") {
		return ErrorTypeTemporary
	}
	return ErrorTypeUnknown
}

// IsAccessDenied reports whether err is an authentication or authorization failure.
func IsAccessDenied(err error) bool {
	return Classify(err) == ErrorTypeAccessDenied
}
