package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"deadline", context.DeadlineExceeded, apperr.KindTimeout},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), apperr.KindTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, apperr.KindTimeout},
		{"canceled", context.Canceled, apperr.KindCanceled},
		{"refused", errors.New("connect: connection refused"), apperr.KindNetwork},
		{"already classified", apperr.New(apperr.KindRemoteBlocked, "blocked"), apperr.KindRemoteBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransport(tt.err, "init")
			if apperr.KindOf(got) != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, apperr.KindOf(got), got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("expected cause to be preserved")
			}
		})
	}
}

func TestClassifyTransport_Nil(t *testing.T) {
	if ClassifyTransport(nil, "init") != nil {
		t.Error("expected nil")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(errors.New("net/http: TLS handshake timeout")) {
		t.Error("expected TLS handshake timeout to count")
	}
	if IsTimeout(errors.New("EOF")) {
		t.Error("EOF is not a timeout")
	}
	if IsTimeout(nil) {
		t.Error("nil is not a timeout")
	}
}
