package errkind

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// ClassifyConnectivity inspects a raw transport error and returns
// (offlineKind, true) if it looks like a connection-refused/reset/timeout
// failure, ("", false) otherwise. offlineKind selects whether a positive
// match is reported as OfflineRemote or OfflineStore.
func ClassifyConnectivity(err error, offlineKind Kind) (Kind, bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return offlineKind, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return offlineKind, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return offlineKind, true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"connection refused", "connection reset", "broken pipe", "no route to host", "i/o timeout", "eof"} {
		if strings.Contains(msg, needle) {
			return offlineKind, true
		}
	}
	return "", false
}
