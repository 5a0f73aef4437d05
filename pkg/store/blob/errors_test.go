package blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"no such key", apiErr("NoSuchKey"), ClassNotFound},
		{"typed not found", &types.NoSuchKey{}, ClassNotFound},
		{"slow down", apiErr("SlowDown"), ClassRateLimited},
		{"throttling", apiErr("Throttling"), ClassRateLimited},
		{"too many requests", apiErr("TooManyRequests"), ClassRateLimited},
		{"access denied", apiErr("AccessDenied"), ClassPermission},
		{"bad credentials", apiErr("InvalidAccessKeyId"), ClassPermission},
		{"internal error", apiErr("InternalError"), ClassTransient},
		{"plain error", errors.New("connection reset"), ClassTransient},
		{"wrapped", fmt.Errorf("delete failed: %w", apiErr("AccessDenied")), ClassPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassRetriable(t *testing.T) {
	if !ClassTransient.Retriable() {
		t.Error("transient must be retriable")
	}
	if !ClassRateLimited.Retriable() {
		t.Error("rate limited must be retriable")
	}
	if ClassPermission.Retriable() {
		t.Error("permission must not be retriable")
	}
	if ClassNotFound.Retriable() {
		t.Error("not found must not be retriable")
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Error("nil is not a not-found error")
	}
	if !IsNotFound(apiErr("NotFound")) {
		t.Error("NotFound code not recognized")
	}
	if !IsNotFound(&types.NotFound{}) {
		t.Error("typed NotFound not recognized")
	}
	if !IsNotFound(errors.New("operation error S3: HeadObject, StatusCode: 404")) {
		t.Error("404 message pattern not recognized")
	}
	if IsNotFound(apiErr("AccessDenied")) {
		t.Error("AccessDenied misclassified as not found")
	}
}

func TestIsRetriable(t *testing.T) {
	if IsRetriable(nil) {
		t.Error("nil is not retriable")
	}
	if IsRetriable(context.Canceled) {
		t.Error("context cancellation must not be retriable")
	}
	if IsRetriable(fmt.Errorf("scan: %w", context.DeadlineExceeded)) {
		t.Error("deadline exceeded must not be retriable")
	}
	if !IsRetriable(apiErr("SlowDown")) {
		t.Error("rate limit must be retriable")
	}
	if IsRetriable(apiErr("AccessDenied")) {
		t.Error("permission failure must not be retriable")
	}
}
