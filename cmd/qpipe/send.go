package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/spf13/cobra"
)

func newSendCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		wait    bool
	)
	cmd := &cobra.Command{
		Use:   "send NAME TEXT",
		Short: "send a text message to an endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Timeout
			}
			return runSend(cmd.Context(), server, args[0], args[1], timeout, wait)
		},
	}
	cmd.Flags().StringVar(&server, "server", ".", "machine hosting the endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "connect and reply timeout")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for one reply and print it")
	return cmd
}

func runSend(ctx context.Context, server, name, text string, timeout time.Duration, wait bool) error {
	replies := make(chan frame.Message, 1)
	client := pipe.NewClientPipe(server, name, pipe.Funcs{
		OnMessage: func(_ *pipe.Pipe, msg frame.Message) {
			select {
			case replies <- msg:
			default:
			}
		},
	}, cfg.pipeOptions())
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.WriteText(text); err != nil {
		return err
	}
	if !wait {
		return nil
	}

	select {
	case msg := <-replies:
		fmt.Println(msg.Text())
		return nil
	case <-ctx.Done():
		return errors.Errorf("qpipe: no reply from %s within %s", name, timeout)
	}
}
