//go:build windows

package pipe

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const bufferSize = 65536

// pipePath maps an endpoint name to a local named pipe path. Names that
// are already pipe paths are used as is.
func pipePath(name string, opts Options) string {
	if strings.HasPrefix(name, `\\`) {
		return name
	}
	return `\\.\pipe\` + name
}

func listen(path string, opts Options) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{
		InputBufferSize:  bufferSize,
		OutputBufferSize: bufferSize,
	})
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}
