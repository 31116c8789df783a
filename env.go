package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/gregLibert/cardchannel/pkg/channel"
	"github.com/gregLibert/cardchannel/pkg/driver/pcsclite"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

const envKey = "cardshell.env"

// env is what every command needs: the resolved configuration, the logger
// handed to channels and the output writer.
type env struct {
	cfg  Config
	opts options
	log  *logrus.Logger
	out  io.Writer
}

func envFrom(ctx *cli.Context) (*env, error) {
	e, ok := ctx.App.Metadata[envKey].(*env)
	if !ok {
		return nil, errors.New("cardshell environment not initialized")
	}
	return e, nil
}

// driver returns the configured driver. A pcsclite socket other than the
// default needs its own driver instance.
func (e *env) driver() (pcsc.Driver, error) {
	if e.cfg.Driver == "pcsclite" && e.cfg.Socket != "" {
		return pcsclite.New(e.cfg.Socket), nil
	}
	return pcsc.Lookup(e.cfg.Driver)
}

func (e *env) establish() (*channel.Context, error) {
	d, err := e.driver()
	if err != nil {
		return nil, err
	}
	return channel.EstablishContext(d)
}

// pickReader returns the configured reader, or the first one listed.
func (e *env) pickReader(ctx *channel.Context) (string, error) {
	if e.cfg.Reader != "" {
		return e.cfg.Reader, nil
	}
	names, err := ctx.ListReaders()
	if err != nil {
		return "", err
	}
	return names[0], nil
}

// attach establishes a context and attaches a channel to reader without
// connecting it.
func (e *env) attach(reader string) (*channel.Context, *channel.CardChannel, error) {
	ctx, err := e.establish()
	if err != nil {
		return nil, nil, err
	}
	if reader == "" {
		if reader, err = e.pickReader(ctx); err != nil {
			e.release(ctx)
			return nil, nil, err
		}
	}

	ch := channel.New(channel.WithLogger(e.log.WithField("driver", e.cfg.Driver)))
	if err := ch.Attach(ctx, reader); err != nil {
		e.release(ctx)
		return nil, nil, err
	}
	return ctx, ch, nil
}

// open attaches a channel to reader and connects it.
func (e *env) open(reader string) (*channel.Context, *channel.CardChannel, error) {
	ctx, ch, err := e.attach(reader)
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Connect(e.opts.share, e.opts.protocol); err != nil {
		e.close(ctx, ch)
		return nil, nil, err
	}
	return ctx, ch, nil
}

// close disconnects with the configured disposition, detaches and releases.
// Failures are logged; the command result stands.
func (e *env) close(ctx *channel.Context, ch *channel.CardChannel) {
	if ch.State() == channel.Connected {
		if err := ch.Disconnect(e.opts.disposition); err != nil {
			e.log.WithError(err).Warn("disconnect failed")
		}
	}
	if err := ch.Detach(); err != nil {
		e.log.WithError(err).Warn("detach failed")
	}
	e.release(ctx)
}

func (e *env) release(ctx *channel.Context) {
	if err := ctx.Release(); err != nil {
		e.log.WithError(err).Warn("release context failed")
	}
}

func (e *env) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.out, format, args...)
}
