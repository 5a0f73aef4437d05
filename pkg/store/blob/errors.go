package blob

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Class is the failure classification the cleaner uses to decide whether a
// delete error is worth retrying on a later run.
type Class int

const (
	// ClassTransient covers network hiccups and 5xx errors. Retriable.
	ClassTransient Class = iota

	// ClassNotFound means the object is already gone. Deletes treat this
	// as success.
	ClassNotFound

	// ClassRateLimited means the store is throttling us. Retriable.
	ClassRateLimited

	// ClassPermission means the credentials lack access. Not retriable;
	// an operator has to fix access, not automation.
	ClassPermission
)

// Retriable reports whether the class indicates the same operation may
// succeed if retried later.
func (c Class) Retriable() bool {
	return c == ClassTransient || c == ClassRateLimited
}

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermission:
		return "permission_denied"
	default:
		return "transient"
	}
}

// Classify maps a store error to its failure class.
func Classify(err error) Class {
	if IsNotFound(err) {
		return ClassNotFound
	}
	if isRateLimited(err) {
		return ClassRateLimited
	}
	if isPermissionDenied(err) {
		return ClassPermission
	}
	return ClassTransient
}

// IsNotFound returns true if the error indicates the object doesn't exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	// Check typed errors
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	// Check AWS API error code
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}

	// Check error message for 404 patterns
	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// isRateLimited returns true for throttling responses.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "Throttling" || code == "ThrottlingException" ||
			code == "RequestThrottled" || code == "SlowDown" ||
			code == "TooManyRequests" {
			return true
		}
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SlowDown") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429")
}

// isPermissionDenied returns true for authorization failures.
func isPermissionDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "AccessDenied" || code == "Forbidden" ||
			code == "InvalidAccessKeyId" || code == "SignatureDoesNotMatch" {
			return true
		}
	}
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "StatusCode: 403")
}

// IsRetriable returns true if the error is transient and the operation
// should be retried. Context cancellation is never retriable.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return Classify(err).Retriable()
}
