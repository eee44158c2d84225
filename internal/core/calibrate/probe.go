package calibrate

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"autoreg/internal/platform/nettiming"

	"github.com/higebu/netfd"
)

type probeSample struct {
	sent, recv    time.Time
	serverSeconds int64
}

// probeOnce issues one lightweight unauthenticated request against the
// calibration endpoint and reads the server's Date header. It also attempts
// to capture the underlying connection so a kernel TCP_INFO cross-check can
// be taken (best-effort, see nettiming).
func (c *Calibrator) probeOnce(ctx context.Context) (probeSample, nettiming.Snapshot, bool, error) {
	var conn net.Conn
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) { conn = info.Conn },
	}
	reqCtx := httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		return probeSample{}, nettiming.Snapshot{}, false, err
	}

	sent := c.now()
	resp, err := c.client().Do(req)
	if err != nil {
		return probeSample{}, nettiming.Snapshot{}, false, err
	}
	recv := c.now()
	dateHeader := resp.Header.Get("Date")
	_ = resp.Body.Close()

	serverTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return probeSample{}, nettiming.Snapshot{}, false, err
	}

	var snap nettiming.Snapshot
	var ok bool
	if conn != nil {
		if fd, fdOK := connFD(conn); fdOK {
			snap, ok = c.sampler().Sample(fd)
		}
	}

	return probeSample{sent: sent, recv: recv, serverSeconds: serverTime.Unix()}, snap, ok, nil
}

// connFD extracts the raw file descriptor from a net.Conn for the kernel
// TCP_INFO cross-check. Returns ok=false for non-TCP connections or when
// the descriptor can't be recovered (e.g. a net.Conn wrapping TLS).
func connFD(conn net.Conn) (uintptr, bool) {
	defer func() { recover() }() //nolint:errcheck // netfd panics on unsupported conn types
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return 0, false
	}
	return uintptr(fd), true
}
