package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        = defaultConfig()
)

func newRootCommand() *cobra.Command {
	var logLevel, dir string
	root := &cobra.Command{
		Use:           "qpipe",
		Long:          `qpipe is a utility for exchanging messages over local named pipes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				c.LogLevel = logLevel
			}
			if cmd.Flags().Changed("dir") {
				c.Dir = dir
			}
			lvl, err := logrus.ParseLevel(c.LogLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			cfg = c
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "TOML config file")
	flags.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&dir, "dir", "", "directory for endpoint sockets")

	root.AddCommand(newServeCommand())
	root.AddCommand(newSendCommand())
	root.AddCommand(newCallCommand())
	root.AddCommand(newProxyCommand())
	root.AddCommand(newBenchCommand())
	return root
}

func main() {
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}
