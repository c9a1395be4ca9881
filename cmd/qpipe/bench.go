package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/mux"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
)

func newBenchCommand() *cobra.Command {
	var (
		sizes  []int
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "measure round trips through an in-process endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), sizes, rounds)
		},
	}
	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{1, 1 << 10, 1 << 16, 1 << 20}, "payload sizes in bytes")
	cmd.Flags().IntVar(&rounds, "rounds", 100, "round trips per size")
	return cmd
}

func runBench(ctx context.Context, sizes []int, rounds int) error {
	name := "bench-" + xid.New().String()
	opts := cfg.pipeOptions()

	ep, err := mux.Listen(name, pipe.Funcs{
		OnMessage: func(p *pipe.Pipe, msg frame.Message) {
			p.WriteAsync(msg)
		},
	}, opts)
	if err != nil {
		return err
	}
	defer ep.Close()

	replies := make(chan frame.Message, 1)
	client := pipe.NewClientPipe(".", name, pipe.Funcs{
		OnMessage: func(_ *pipe.Pipe, msg frame.Message) {
			replies <- msg
		},
	}, opts)
	defer client.Close()
	if err := client.ConnectTimeout(cfg.Timeout); err != nil {
		return err
	}

	mb := float64(1 << 20)
	for _, size := range sizes {
		if size <= 0 {
			return errors.Errorf("qpipe: invalid payload size %d", size)
		}
		data := make([]byte, size)
		rand.Read(data)

		start := time.Now()
		for i := 0; i < rounds; i++ {
			if err := client.WriteBytes(data); err != nil {
				return err
			}
			select {
			case msg := <-replies:
				if msg.Len() != size {
					return errors.Errorf("qpipe: echoed %d bytes, sent %d", msg.Len(), size)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		diff := time.Since(start)
		rtt := diff / time.Duration(rounds)
		fmt.Println("Bytes:", size, "RTT:", rtt, "Thru:", int(float64(2*size*rounds)/diff.Seconds()/mb), "MB/s")
	}
	return nil
}
