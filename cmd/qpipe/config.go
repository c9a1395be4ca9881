package main

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config holds the settings shared by all commands.
type Config struct {
	Dir            string        `mapstructure:"dir"`
	LogLevel       string        `mapstructure:"log_level"`
	Codec          string        `mapstructure:"codec"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	MaxMessageSize uint32        `mapstructure:"max_message_size"`
	MaxInstances   int           `mapstructure:"max_instances"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:      "info",
		Timeout:       5 * time.Second,
		RetryInterval: pipe.DefaultRetryInterval,
	}
}

// loadConfig reads the TOML file at path, if any, over the defaults and
// then applies the environment.
func loadConfig(path string) (Config, error) {
	c := defaultConfig()
	if path != "" {
		tree, err := toml.LoadFile(path)
		if err != nil {
			return c, errors.Wrapf(err, "qpipe: load config %s", path)
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
			ErrorUnused: true,
			Result:      &c,
		})
		if err != nil {
			return c, err
		}
		if err := dec.Decode(tree.ToMap()); err != nil {
			return c, errors.Wrapf(err, "qpipe: decode config %s", path)
		}
	}
	if v := os.Getenv("QPIPE_CODEC"); v != "" {
		c.Codec = v
	}
	if v := os.Getenv("QPIPE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c, nil
}

func (c Config) pipeOptions() *pipe.Options {
	return &pipe.Options{
		Dir:            c.Dir,
		MaxMessageSize: c.MaxMessageSize,
		MaxInstances:   c.MaxInstances,
		RetryInterval:  c.RetryInterval,
		Logger:         logrus.StandardLogger(),
	}
}

// codecFlag selects a codec by name, falling back to the configured codec
// and then to the command's default.
type codecFlag struct {
	name string
	def  string
}

func addCodecFlag(fs *pflag.FlagSet, def string, names string) *codecFlag {
	f := &codecFlag{def: def}
	fs.StringVar(&f.name, "codec", "", "message codec ("+names+")")
	return f
}

func (f *codecFlag) resolve(c Config) string {
	switch {
	case f.name != "":
		return f.name
	case c.Codec != "":
		return c.Codec
	default:
		return f.def
	}
}

// codecFor returns the codec called name. The raw codec is nil.
func codecFor(name string) (codec.Codec, error) {
	switch name {
	case "raw":
		return nil, nil
	case "text":
		return codec.TextCodec{}, nil
	case "json":
		return codec.JSONCodec{}, nil
	case "cbor":
		return codec.CBORCodec{}, nil
	default:
		return nil, errors.Errorf("qpipe: unknown codec %q", name)
	}
}
