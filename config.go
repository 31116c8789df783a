package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// Config is the cardshell configuration. Values come from the defaults, then
// the TOML file named by --config, then flags and CARDSHELL_* variables.
type Config struct {
	Driver      string `toml:"driver"`
	Reader      string `toml:"reader"`
	Share       string `toml:"share"`
	Protocol    string `toml:"protocol"`
	Disposition string `toml:"disposition"`
	Socket      string `toml:"socket"`
	LogLevel    string `toml:"log_level"`
	NoColor     bool   `toml:"no_color"`
}

func defaultConfig() Config {
	return Config{
		Driver:      "sim",
		Share:       "shared",
		Protocol:    "any",
		Disposition: "leave",
		LogLevel:    "warning",
	}
}

// options is the parsed form of a Config.
type options struct {
	share       pcsc.ShareMode
	protocol    pcsc.Protocol
	disposition pcsc.Disposition
	level       logrus.Level
}

// loadConfigFile overlays the values set in the TOML file at path onto cfg.
// Unknown keys are rejected so typos do not go unnoticed.
func loadConfigFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// applyFlags overrides cfg with the flags given on the command line or
// through the environment.
func applyFlags(ctx *cli.Context, cfg *Config) {
	for name, dst := range map[string]*string{
		driverFlag.Name:      &cfg.Driver,
		readerFlag.Name:      &cfg.Reader,
		shareFlag.Name:       &cfg.Share,
		protocolFlag.Name:    &cfg.Protocol,
		dispositionFlag.Name: &cfg.Disposition,
		socketFlag.Name:      &cfg.Socket,
		logLevelFlag.Name:    &cfg.LogLevel,
	} {
		if ctx.IsSet(name) {
			*dst = ctx.String(name)
		}
	}
	if ctx.IsSet(noColorFlag.Name) {
		cfg.NoColor = ctx.Bool(noColorFlag.Name)
	}
}

func (c Config) parse() (options, error) {
	var (
		opts options
		err  error
	)
	if opts.share, err = pcsc.ParseShareMode(c.Share); err != nil {
		return opts, err
	}
	if opts.protocol, err = pcsc.ParseProtocol(c.Protocol); err != nil {
		return opts, err
	}
	if opts.disposition, err = pcsc.ParseDisposition(c.Disposition); err != nil {
		return opts, err
	}
	if opts.level, err = logrus.ParseLevel(c.LogLevel); err != nil {
		return opts, err
	}
	return opts, nil
}
