package main

import (
	"github.com/progrium/qpipe-go/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newProxyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy NAME TARGET",
		Short: "relay clients of one endpoint to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.WithField("endpoint", args[0]).WithField("target", args[1]).Info("proxying")
			return mux.Proxy(cmd.Context(), args[0], args[1], cfg.pipeOptions())
		},
	}
}
