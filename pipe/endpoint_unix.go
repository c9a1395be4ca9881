//go:build !windows

package pipe

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const staleProbeTimeout = 100 * time.Millisecond

// pipePath maps an endpoint name to a unix socket path. Names containing
// a path separator are used as is.
func pipePath(name string, opts Options) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "qpipe_"+name+".sock")
}

func listen(path string, opts Options) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	l, err := net.Listen("unix", path)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, err
	}
	// The socket file outlived its server unless someone still answers on it.
	conn, derr := net.DialTimeout("unix", path, staleProbeTimeout)
	if derr == nil {
		conn.Close()
		return nil, err
	}
	opts.Logger.WithField("addr", path).Debug("removing stale socket")
	if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
		return nil, err
	}
	return net.Listen("unix", path)
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
