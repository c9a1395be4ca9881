package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/mux"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "serve NAME",
		Short: "accept clients on an endpoint and print their messages",
		Args:  cobra.ExactArgs(1),
	}
	cf := addCodecFlag(cmd.Flags(), "raw", "raw, text, json, cbor")
	cmd.Flags().BoolVar(&echo, "echo", false, "write each message back to its sender")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := codecFor(cf.resolve(cfg))
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), args[0], c, echo)
	}
	return cmd
}

func runServe(ctx context.Context, name string, c codec.Codec, echo bool) error {
	log := logrus.WithField("endpoint", name)
	ep, err := mux.Listen(name, pipe.Funcs{
		OnConnect: func(p *pipe.Pipe) {
			log.WithField("pipe", p.ID()).Info("client connected")
		},
		OnClose: func(p *pipe.Pipe) {
			log.WithField("pipe", p.ID()).Info("client disconnected")
		},
		OnMessage: func(p *pipe.Pipe, msg frame.Message) {
			fmt.Printf("%d: %s\n", p.ID(), describe(c, msg))
			if !echo {
				return
			}
			if _, err := p.WriteAsync(msg); err != nil {
				log.WithError(err).Warn("echo failed")
			}
		},
	}, cfg.pipeOptions())
	if err != nil {
		return err
	}
	defer ep.Close()

	log.Info("serving")
	<-ctx.Done()
	log.WithField("clients", ep.Count()).Info("shutting down")
	return nil
}

// describe renders a received message for printing.
func describe(c codec.Codec, msg frame.Message) string {
	if c == nil {
		if utf8.Valid(msg.Payload()) {
			return fmt.Sprintf("%q", msg.Text())
		}
		return msg.String()
	}
	var v any
	if err := codec.Unmarshal(c, msg.Payload(), &v); err != nil {
		return fmt.Sprintf("%s (undecodable: %v)", msg, err)
	}
	return fmt.Sprintf("%v", v)
}
