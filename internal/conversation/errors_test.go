package conversation

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrConnectivity, "CONNECTIVITY"},
		{ErrUnauthorized, "UNAUTHORIZED"},
		{ErrNotFound, "NOT_FOUND"},
		{ErrBadShape, "DATA_SHAPE"},
		{errors.New("something else"), "INTERNAL"},
		{fmt.Errorf("%w: list_calls: dial tcp", ErrConnectivity), "CONNECTIVITY"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("%w: wrapped", ErrConnectivity)) {
		t.Fatalf("connectivity errors must be retryable")
	}
	if Retryable(ErrNotFound) || Retryable(nil) {
		t.Fatalf("only connectivity errors are retryable")
	}
}
