package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
)

// ClassifyTransport maps an HTTP transport error to a timeout, canceled or
// network_error. Errors that are already classified pass through.
func ClassifyTransport(err error, op string) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	if IsTimeout(err) {
		return apperr.Wrap(apperr.KindTimeout, err, op+" timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindCanceled, err, op+" canceled")
	}
	return apperr.Wrap(apperr.KindNetwork, err, op+" failed")
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "tls handshake timeout")
}
