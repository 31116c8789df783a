// Command cardshell exchanges APDUs with smart cards through a card channel.
//
//	cardshell readers
//	cardshell send 00A4040007A0000000031010 00B2010C00
//	cardshell send --find 84 00A4040007A0000000031010
//	cardshell select A0000000031010
//	cardshell read-record 1 1
//	cardshell decode 6F07840501020304059000
//	cardshell --driver winscard --reader "ACS ACR122U" status
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

var (
	driverFlag = &cli.StringFlag{
		Name:    "driver",
		Usage:   "resource manager driver",
		EnvVars: []string{"CARDSHELL_DRIVER"},
	}
	configFlag = &cli.PathFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		EnvVars: []string{"CARDSHELL_CONFIG"},
	}
	readerFlag = &cli.StringFlag{
		Name:    "reader",
		Aliases: []string{"r"},
		Usage:   "reader name (default: first reader listed)",
		EnvVars: []string{"CARDSHELL_READER"},
	}
	shareFlag = &cli.StringFlag{
		Name:    "share",
		Usage:   "share mode: shared, exclusive or direct",
		EnvVars: []string{"CARDSHELL_SHARE"},
	}
	protocolFlag = &cli.StringFlag{
		Name:    "protocol",
		Usage:   "preferred protocol: any, t0, t1, raw or t15",
		EnvVars: []string{"CARDSHELL_PROTOCOL"},
	}
	dispositionFlag = &cli.StringFlag{
		Name:    "disposition",
		Usage:   "card disposition on disconnect: leave, reset, unpower or eject",
		EnvVars: []string{"CARDSHELL_DISPOSITION"},
	}
	socketFlag = &cli.StringFlag{
		Name:    "socket",
		Usage:   "pcscd socket used by the pcsclite driver",
		EnvVars: []string{"CARDSHELL_SOCKET"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "panic, fatal, error, warning, info, debug or trace",
		EnvVars: []string{"CARDSHELL_LOG_LEVEL"},
	}
	noColorFlag = &cli.BoolFlag{
		Name:    "no-color",
		Usage:   "disable colored output",
		EnvVars: []string{"CARDSHELL_NO_COLOR"},
	}
)

func newApp() *cli.App {
	app := &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "talk to smart cards over PC/SC",
		Flags: []cli.Flag{
			driverFlag,
			configFlag,
			readerFlag,
			shareFlag,
			protocolFlag,
			dispositionFlag,
			socketFlag,
			logLevelFlag,
			noColorFlag,
		},
		Commands: []*cli.Command{
			readersCommand,
			sendCommand,
			selectCommand,
			readRecordCommand,
			decodeCommand,
			statusCommand,
			attribCommand,
			scanCommand,
			waitCommand,
			driversCommand,
		},
		Before: setup,
	}
	return app
}

// setup resolves the configuration and stores the environment in the app
// metadata for the command actions.
func setup(ctx *cli.Context) error {
	cfg := defaultConfig()
	if path := ctx.Path(configFlag.Name); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return err
		}
	}
	applyFlags(ctx, &cfg)

	opts, err := cfg.parse()
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(ctx.App.ErrWriter)
	log.SetLevel(opts.level)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: cfg.NoColor})
	if cfg.NoColor {
		color.NoColor = true
	}

	if ctx.App.Metadata == nil {
		ctx.App.Metadata = make(map[string]interface{})
	}
	ctx.App.Metadata[envKey] = &env{cfg: cfg, opts: opts, log: log, out: ctx.App.Writer}
	return nil
}

func main() {
	app := newApp()
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps card-gone conditions to 2 so scripts can tell them apart.
func exitCode(err error) int {
	if pcsc.CodeOf(err).IsCardGone() {
		return 2
	}
	return 1
}
