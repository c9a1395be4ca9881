package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/progrium/clon-go"
	"github.com/progrium/qpipe-go/peer"
	"github.com/spf13/cobra"
)

func newCallCommand() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "call NAME [ARGS...]",
		Short: "send a value built from CLON arguments and print the reply",
		Args:  cobra.MinimumNArgs(1),
	}
	cf := addCodecFlag(cmd.Flags(), "json", "json, cbor")
	cmd.Flags().StringVar(&server, "server", ".", "machine hosting the endpoint")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var v any
		if len(args) > 1 {
			var err error
			v, err = clon.Parse(args[1:])
			if err != nil {
				return err
			}
		}
		c, err := codecFor(cf.resolve(cfg))
		if err != nil {
			return err
		}
		if c == nil {
			return errors.New("qpipe: call needs a codec")
		}

		client := peer.NewClient[any](server, args[0], c, cfg.pipeOptions())
		defer client.Close()
		replies := make(chan any, 1)
		client.OnMessage(func(ret any) {
			select {
			case replies <- ret:
			default:
			}
		})
		failures := make(chan error, 1)
		client.OnError(func(err error) {
			select {
			case failures <- err:
			default:
			}
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()
		if err := client.Connect(ctx); err != nil {
			return err
		}
		f, err := client.Send(v)
		if err != nil {
			return err
		}
		if err := f.WaitContext(ctx); err != nil {
			return err
		}

		var ret any
		select {
		case ret = <-replies:
		case err := <-failures:
			return err
		case <-ctx.Done():
			return errors.Errorf("qpipe: no reply from %s within %s", args[0], cfg.Timeout)
		}
		b, err := json.MarshalIndent(normalize(ret), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	return cmd
}

// normalize turns the generic maps produced by CBOR decoding into maps
// encoding/json accepts.
func normalize(v any) any {
	switch vv := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(vv))
		for k, e := range vv {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case map[string]any:
		for k, e := range vv {
			vv[k] = normalize(e)
		}
		return vv
	case []any:
		for i, e := range vv {
			vv[i] = normalize(e)
		}
		return vv
	default:
		return v
	}
}
