package peer

import (
	"context"

	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/pipe"
)

// Dial connects to the endpoint name on the local machine and returns a
// connected Client. Values arriving before OnMessage is set are dropped;
// use NewClient to install callbacks before connecting.
func Dial[T any](ctx context.Context, name string, c codec.Codec, opts *pipe.Options) (*Client[T], error) {
	client := NewClient[T](".", name, c, opts)
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
