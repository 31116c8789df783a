package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gregLibert/cardchannel/internal/retry"
	"github.com/gregLibert/cardchannel/pkg/channel"
	"github.com/gregLibert/cardchannel/pkg/iso7816"
	"github.com/gregLibert/cardchannel/pkg/pcsc"
	"github.com/gregLibert/cardchannel/pkg/tlv"
)

var (
	readersCommand = &cli.Command{
		Name:   "readers",
		Usage:  "List readers and the card in each",
		Action: listReaders,
	}
	sendCommand = &cli.Command{
		Name:      "send",
		Usage:     "Send command APDUs and print the exchanges",
		ArgsUsage: "HEX [HEX...]",
		Action:    send,
		Flags:     []cli.Flag{tlvFlag, findFlag, maxResponsesFlag, keepGoingFlag},
	}
	selectCommand = &cli.Command{
		Name:      "select",
		Usage:     "SELECT an application by AID, or the MF without one, and show the FCI",
		ArgsUsage: "[AID]",
		Action:    selectFile,
	}
	readRecordCommand = &cli.Command{
		Name:      "read-record",
		Usage:     "READ RECORD from a short EF identifier and show the record",
		ArgsUsage: "SFI RECORD",
		Action:    readRecord,
	}
	decodeCommand = &cli.Command{
		Name:      "decode",
		Usage:     "Decode a response APDU without talking to a card",
		ArgsUsage: "HEX",
		Action:    decode,
	}
	statusCommand = &cli.Command{
		Name:   "status",
		Usage:  "Connect and show the card state, protocol and ATR",
		Action: status,
	}
	attribCommand = &cli.Command{
		Name:      "attrib",
		Usage:     "Read a reader attribute (" + strings.Join(pcsc.AttribNames(), ", ") + ")",
		ArgsUsage: "NAME",
		Action:    attrib,
	}
	scanCommand = &cli.Command{
		Name:   "scan",
		Usage:  "Connect to every reader concurrently and optionally send one APDU to each",
		Action: scan,
		Flags:  []cli.Flag{apduFlag, parallelFlag},
	}
	waitCommand = &cli.Command{
		Name:   "wait",
		Usage:  "Wait until a card can be connected",
		Action: wait,
		Flags:  []cli.Flag{timeoutFlag},
	}
	driversCommand = &cli.Command{
		Name:   "drivers",
		Usage:  "List the drivers built into this binary",
		Action: listDrivers,
	}
)

var (
	tlvFlag = &cli.BoolFlag{
		Name:  "tlv",
		Usage: "decode the response data as BER-TLV",
	}
	findFlag = &cli.StringFlag{
		Name:  "find",
		Usage: "print the value of this BER-TLV tag from each response",
	}
	maxResponsesFlag = &cli.IntFlag{
		Name:  "max-responses",
		Usage: "maximum chained GET RESPONSE / Le corrections per command",
		Value: iso7816.DefaultMaxAutoResponses,
	}
	keepGoingFlag = &cli.BoolFlag{
		Name:  "keep-going",
		Usage: "send the remaining commands after a status word error",
	}
	apduFlag = &cli.StringFlag{
		Name:  "apdu",
		Usage: "command APDU sent to each card, in hex",
	}
	parallelFlag = &cli.IntFlag{
		Name:  "parallel",
		Usage: "readers handled at once (0 = all)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "give up after this long",
		Value: 30 * time.Second,
	}
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

// colorSW renders a status word with its name, colored by category.
func colorSW(sw iso7816.StatusWord) string {
	text := sw.Verbose()
	switch {
	case sw.IsSuccess():
		return okColor.Sprint(text)
	case sw.IsWarning(), sw.HasMoreData(), sw.IsWrongLength():
		return warnColor.Sprint(text)
	default:
		return errColor.Sprint(text)
	}
}

func listDrivers(ctx *cli.Context) error {
	for _, name := range pcsc.Drivers() {
		fmt.Fprintln(ctx.App.Writer, name)
	}
	return nil
}

// readerRow is one line of the readers and scan tables.
type readerRow struct {
	reader   string
	state    pcsc.CardState
	protocol pcsc.Protocol
	atr      []byte
	result   string
}

func listReaders(ctx *cli.Context) error {
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, err := e.establish()
	if err != nil {
		return err
	}
	defer e.release(cctx)

	names, err := cctx.ListReaders()
	if err != nil {
		return err
	}

	rows := make([]readerRow, len(names))
	for i, name := range names {
		rows[i] = e.inspect(name, nil)
	}
	renderReaders(e, rows, false)
	return nil
}

// inspect connects to reader in its own context, reads the card state and ATR
// and, when cmd is set, sends it. Card problems end up in the row, not in an
// error.
func (e *env) inspect(reader string, cmd *iso7816.CommandAPDU) readerRow {
	row := readerRow{reader: reader}

	cctx, ch, err := e.open(reader)
	if err != nil {
		row.state = pcsc.StateFromCode(pcsc.CodeOf(err))
		row.result = err.Error()
		return row
	}
	defer e.close(cctx, ch)

	row.protocol = ch.Protocol()
	row.state, _ = ch.GetStatus()
	row.atr, _ = readAttrib(ch, pcsc.AttrATRString)

	if cmd != nil {
		trace, err := iso7816.NewClient(ch).Send(*cmd)
		switch {
		case err != nil:
			row.result = err.Error()
		default:
			row.result = trace.StatusWord().Verbose()
		}
	}
	return row
}

func renderReaders(e *env, rows []readerRow, withResult bool) {
	table := tablewriter.NewWriter(e.out)
	header := []string{"Reader", "State", "Protocol", "ATR"}
	if withResult {
		header = append(header, "Result")
	}
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, r := range rows {
		protocol := ""
		if r.protocol != pcsc.ProtocolUndefined {
			protocol = r.protocol.String()
		}
		line := []string{r.reader, r.state.String(), protocol, iso7816.EncodeHex(r.atr)}
		if withResult {
			line = append(line, r.result)
		}
		table.Append(line)
	}
	table.Render()
}

func send(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return errors.New("need at least one command APDU")
	}
	cmds := make([]iso7816.CommandAPDU, ctx.NArg())
	for i, arg := range ctx.Args().Slice() {
		cmd, err := iso7816.ParseCommandAPDUHex(arg)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		cmds[i] = cmd
	}

	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, ch, err := e.open(e.cfg.Reader)
	if err != nil {
		return err
	}
	defer e.close(cctx, ch)

	client := iso7816.NewClient(ch)
	client.MaxAutoResponses = ctx.Int(maxResponsesFlag.Name)

	for _, cmd := range cmds {
		trace, err := client.Send(cmd)
		printTrace(e, trace)
		if err != nil {
			return err
		}
		if ctx.Bool(tlvFlag.Name) && trace.IsSuccess() {
			printTLV(e, trace.Data())
		}
		if tag := ctx.String(findFlag.Name); tag != "" && trace.IsSuccess() {
			value, err := tlv.Find(trace.Data(), tag)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.INS(), err)
			}
			e.printf("%s: %s\n", strings.ToUpper(tag), iso7816.EncodeHex(value))
		}
		if !trace.IsSuccess() && !ctx.Bool(keepGoingFlag.Name) {
			return fmt.Errorf("%s: card answered %s", cmd.INS(), trace.StatusWord())
		}
	}
	return nil
}

func printTrace(e *env, trace iso7816.Trace) {
	for _, tx := range trace {
		e.printf(">> %s  %s\n", tx.Command.Hex(), color.CyanString(tx.Command.INS().String()))
		if tx.Response == nil {
			continue
		}
		e.printf("<< %s %s\n", iso7816.EncodeHex(tx.Response.Data()), colorSW(tx.Response.StatusWord()))
	}
}

func printTLV(e *env, data []byte) {
	if len(data) == 0 {
		return
	}
	tree, err := tlv.Describe(data)
	if err != nil {
		e.log.WithError(err).Debug("response data is not BER-TLV")
		return
	}
	e.printf("%s\n", tree)
}

func status(ctx *cli.Context) error {
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, ch, err := e.open(e.cfg.Reader)
	if err != nil {
		return err
	}
	defer e.close(cctx, ch)

	state, err := ch.GetStatus()
	if err != nil {
		return err
	}
	e.printf("Reader:   %s\n", ch.ReaderName())
	e.printf("State:    %s\n", state)
	e.printf("Ready:    %t\n", state.IsReady())
	e.printf("Protocol: %s\n", ch.Protocol())
	if atr, err := readAttrib(ch, pcsc.AttrATRString); err == nil {
		e.printf("ATR:      %s\n", iso7816.EncodeHex(atr))
	}
	return nil
}

// exchange sends one command on the configured reader and prints the trace,
// then the response data as a BER-TLV tree.
func exchange(ctx *cli.Context, cmd iso7816.CommandAPDU) error {
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, ch, err := e.open(e.cfg.Reader)
	if err != nil {
		return err
	}
	defer e.close(cctx, ch)

	trace, err := iso7816.NewClient(ch).Send(cmd)
	printTrace(e, trace)
	if err != nil {
		return err
	}
	if !trace.IsSuccess() {
		return fmt.Errorf("%s: card answered %s", cmd.INS(), trace.StatusWord())
	}
	printTLV(e, trace.Data())
	return nil
}

func selectAPDU(aidHex string) (iso7816.CommandAPDU, error) {
	if aidHex == "" {
		return iso7816.SelectMF(iso7816.BasicClass)
	}
	aid, err := iso7816.DecodeHex(aidHex)
	if err != nil {
		return iso7816.CommandAPDU{}, fmt.Errorf("AID: %w", err)
	}
	return iso7816.SelectByAID(iso7816.BasicClass, aid)
}

func selectFile(ctx *cli.Context) error {
	if ctx.NArg() > 1 {
		return errors.New("need at most one AID")
	}
	cmd, err := selectAPDU(ctx.Args().First())
	if err != nil {
		return err
	}
	return exchange(ctx, cmd)
}

func readRecord(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("need an SFI and a record number")
	}
	sfi, err := strconv.ParseUint(ctx.Args().Get(0), 0, 8)
	if err != nil {
		return fmt.Errorf("SFI: %w", err)
	}
	n, err := strconv.ParseUint(ctx.Args().Get(1), 0, 8)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	cmd, err := iso7816.ReadRecord(iso7816.BasicClass, byte(sfi), byte(n))
	if err != nil {
		return err
	}
	return exchange(ctx, cmd)
}

func decode(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need one response APDU")
	}
	resp, err := iso7816.ParseResponseAPDUHex(ctx.Args().First())
	if err != nil {
		return err
	}
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	e.printf("SW:   %s\n", colorSW(resp.StatusWord()))
	if data := resp.Data(); len(data) > 0 {
		e.printf("Data: %s\n", iso7816.EncodeHex(data))
		printTLV(e, data)
	}
	return nil
}

// readAttrib reads an attribute, growing the buffer once if the driver says
// it is too small.
func readAttrib(ch *channel.CardChannel, attr pcsc.Attrib) ([]byte, error) {
	buf := make([]byte, 64)
	n, err := ch.GetAttrib(attr, buf)
	if errors.Is(err, pcsc.InsufficientBuffer) && n > len(buf) {
		buf = make([]byte, n)
		n, err = ch.GetAttrib(attr, buf)
	}
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func attrib(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need one attribute name")
	}
	attr, err := pcsc.ParseAttrib(ctx.Args().First())
	if err != nil {
		return err
	}

	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, ch, err := e.open(e.cfg.Reader)
	if err != nil {
		return err
	}
	defer e.close(cctx, ch)

	value, err := readAttrib(ch, attr)
	if err != nil {
		return err
	}
	e.printf("%s: %s (%q)\n", attr, iso7816.EncodeHex(value), tlv.MakeSafeASCII(value))
	return nil
}

// scan inspects every reader at once, each with its own context and channel.
func scan(ctx *cli.Context) error {
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}

	var cmd *iso7816.CommandAPDU
	if s := ctx.String(apduFlag.Name); s != "" {
		c, err := iso7816.ParseCommandAPDUHex(s)
		if err != nil {
			return fmt.Errorf("--apdu: %w", err)
		}
		cmd = &c
	}

	cctx, err := e.establish()
	if err != nil {
		return err
	}
	names, err := cctx.ListReaders()
	e.release(cctx)
	if err != nil {
		return err
	}

	rows := make([]readerRow, len(names))
	g, gctx := errgroup.WithContext(ctx.Context)
	if n := ctx.Int(parallelFlag.Name); n > 0 {
		g.SetLimit(n)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = e.inspect(name, cmd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	renderReaders(e, rows, cmd != nil)
	return nil
}

// wait polls Connect until a card answers or the timeout expires.
func wait(ctx *cli.Context) error {
	e, err := envFrom(ctx)
	if err != nil {
		return err
	}
	cctx, ch, err := e.attach(e.cfg.Reader)
	if err != nil {
		return err
	}
	defer e.close(cctx, ch)

	cfg := &retry.Config{
		MaxAttempts:    1 << 30,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     1.5,
		Jitter:         0.1,
		Timeout:        ctx.Duration(timeoutFlag.Name),
		OnRetry: func(attempt int, err error, sleep time.Duration) {
			e.log.WithFields(logrus.Fields{
				"reader":  ch.ReaderName(),
				"attempt": attempt,
				"sleep":   sleep,
			}).WithError(err).Debug("no card yet")
		},
	}
	err = retry.Do(ctx.Context, cfg, func() error {
		return ch.Connect(e.opts.share, e.opts.protocol)
	})
	if err != nil {
		return err
	}
	e.printf("card present in %s (%s)\n", ch.ReaderName(), ch.Protocol())
	return nil
}
