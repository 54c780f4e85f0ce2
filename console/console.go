// Package console implements a line protocol for driving one DRV8825 from
// a serial port or terminal. Each input line is one command; each command
// gets exactly one reply line starting with "ok" or "err".
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"drv8825/core"
)

// errQuit ends Serve without an error.
var errQuit = errors.New("quit")

type handler struct {
	usage string
	fn    func(c *Console, ctx context.Context, args []string) (string, error)
}

var commands map[string]handler

func init() {
	commands = map[string]handler{
		"help":   {"help", (*Console).help},
		"mode":   {"mode <full|half|1/4|1/8|1/16|1/32>", (*Console).mode},
		"speed":  {"speed <ms per revolution>", (*Console).speed},
		"enable": {"enable on|off", lineCmd((*core.Driver).Enable)},
		"sleep":  {"sleep on|off", lineCmd((*core.Driver).Sleep)},
		"reset":  {"reset on|off", lineCmd((*core.Driver).Reset)},
		"dir":    {"dir cw|ccw", (*Console).dir},
		"run":    {"run <steps> [cw|ccw]", (*Console).run},
		"start":  {"start <pulses> [cw|ccw]", (*Console).start},
		"revs":   {"revs <revolutions> [cw|ccw]", (*Console).revs},
		"async":  {"async <steps> [cw|ccw]", (*Console).async},
		"status": {"status", (*Console).status},
		"cancel": {"cancel", (*Console).cancel},
		"timing": {"timing", (*Console).timing},
		"fault":  {"fault", (*Console).fault},
		"quit":   {"quit", func(*Console, context.Context, []string) (string, error) { return "", errQuit }},
	}
}

// Console owns one driver for the length of a session.
type Console struct {
	d   *core.Driver
	log logrus.FieldLogger

	mu   sync.Mutex
	last *core.RunResult[int]
}

// New returns a console for d. log may be nil.
func New(d *core.Driver, log logrus.FieldLogger) *Console {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Console{d: d, log: log}
}

// Serve reads commands from rw until EOF, "quit" or ctx ends. Runs
// started from the console are cancelled when Serve returns.
//
// Lines are read on a separate goroutine that stays in rw.Read until the
// reader returns. A blocking reader such as a serial port must be closed
// by the caller after Serve returns to release it.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.d.Cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(rw)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			reply, err := c.exec(ctx, line)
			if errors.Is(err, errQuit) {
				_, werr := io.WriteString(rw, "ok bye\n")
				return werr
			}
			if reply == "" {
				continue
			}
			if _, err := io.WriteString(rw, reply+"\n"); err != nil {
				return err
			}
		}
	}
}

// Exec runs one command line and returns its reply.
func (c *Console) Exec(ctx context.Context, line string) string {
	reply, _ := c.exec(ctx, line)
	return reply
}

func (c *Console) exec(ctx context.Context, line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return formatErr(core.UsageError, err.Error()), nil
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return "", nil
	}

	name := strings.ToLower(args[0])
	h, ok := commands[name]
	if !ok {
		return formatErr(core.UsageError, "unknown command "+strconv.Quote(args[0])), nil
	}
	c.log.WithField("cmd", line).Debug("console")

	msg, err := h.fn(c, ctx, args[1:])
	if errors.Is(err, errQuit) {
		return "", err
	}
	if err != nil {
		return replyErr(err), nil
	}
	if msg == "" {
		return "ok", nil
	}
	return "ok " + msg, nil
}

func replyErr(err error) string {
	code := core.CodeOf(err)
	msg := strings.TrimPrefix(err.Error(), string(code)+": ")
	return formatErr(code, msg)
}

func formatErr(code core.Code, msg string) string {
	return "err " + string(code) + ": " + msg
}

func usage(cmd string) error {
	return &core.Error{Code: core.UsageError, Op: cmd, Msg: "usage: " + commands[cmd].usage}
}

func (c *Console) help(_ context.Context, _ []string) (string, error) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, " "), nil
}

func (c *Console) mode(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("mode")
	}
	m, err := core.ParseMode(args[0])
	if err != nil {
		return "", err
	}
	if err := c.d.SetMode(m); err != nil {
		return "", err
	}
	return fmt.Sprintf("mode=%s steps_per_rev=%d", m, c.d.StepsPerRevolution()), nil
}

func (c *Console) speed(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("speed")
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return "", usage("speed")
	}
	if err := c.d.SetRevolutionTime(ms); err != nil {
		return "", err
	}
	return "pulse_delay=" + c.d.PulseDelay().String(), nil
}

func lineCmd(set func(*core.Driver, bool) error) func(*Console, context.Context, []string) (string, error) {
	return func(c *Console, _ context.Context, args []string) (string, error) {
		if len(args) != 1 {
			return "", &core.Error{Code: core.UsageError, Msg: "want on or off"}
		}
		var on bool
		switch strings.ToLower(args[0]) {
		case "on", "1", "true":
			on = true
		case "off", "0", "false":
		default:
			return "", &core.Error{Code: core.UsageError, Msg: "want on or off, got " + strconv.Quote(args[0])}
		}
		return "", set(c.d, on)
	}
}

func (c *Console) dir(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("dir")
	}
	d, err := core.ParseDirection(args[0])
	if err != nil {
		return "", err
	}
	return "", c.d.SetDirection(d)
}

// countAndDir parses "<n> [dir]".
func countAndDir(cmd string, args []string) (string, core.Direction, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", 0, usage(cmd)
	}
	dir := core.DirectionUnchanged
	if len(args) == 2 {
		d, err := core.ParseDirection(args[1])
		if err != nil {
			return "", 0, err
		}
		dir = d
	}
	return args[0], dir, nil
}

func atoi(cmd, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usage(cmd)
	}
	return n, nil
}

func (c *Console) run(_ context.Context, args []string) (string, error) {
	s, dir, err := countAndDir("run", args)
	if err != nil {
		return "", err
	}
	steps, err := atoi("run", s)
	if err != nil {
		return "", err
	}
	if err := c.d.RunBlocking(steps, dir); err != nil {
		return "", err
	}
	return "steps=" + strconv.Itoa(steps), nil
}

func (c *Console) start(_ context.Context, args []string) (string, error) {
	s, dir, err := countAndDir("start", args)
	if err != nil {
		return "", err
	}
	pulses, err := atoi("start", s)
	if err != nil {
		return "", err
	}
	return c.startTimer(core.Pulses(pulses), dir)
}

func (c *Console) revs(_ context.Context, args []string) (string, error) {
	s, dir, err := countAndDir("revs", args)
	if err != nil {
		return "", err
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", usage("revs")
	}
	return c.startTimer(core.Revolutions(r), dir)
}

func (c *Console) startTimer(b core.Bound, dir core.Direction) (string, error) {
	req, err := core.NewRunRequest(b, dir, c.finished)
	if err != nil {
		return "", err
	}
	res, err := core.StartRun(c.d, req)
	if err != nil {
		return "", err
	}
	c.setLast(res)
	return fmt.Sprintf("run=%s target=%d", res.ID(), res.Target()), nil
}

func (c *Console) async(ctx context.Context, args []string) (string, error) {
	s, dir, err := countAndDir("async", args)
	if err != nil {
		return "", err
	}
	steps, err := atoi("async", s)
	if err != nil {
		return "", err
	}
	req, err := core.NewRunRequest(core.Steps(steps), dir, c.finished)
	if err != nil {
		return "", err
	}
	res, err := core.StartAsync(ctx, c.d, req)
	if err != nil {
		return "", err
	}
	c.setLast(res)
	return fmt.Sprintf("run=%s target=%d", res.ID(), res.Target()), nil
}

// finished logs the outcome and stores the step count as the run's value.
func (c *Console) finished(r *core.RunResult[int]) int {
	c.log.WithFields(logrus.Fields{
		"run":       r.ID(),
		"steps":     r.StepsDone(),
		"cancelled": r.Cancelled(),
	}).Info("run finished")
	return r.StepsDone()
}

func (c *Console) setLast(r *core.RunResult[int]) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
}

// Last returns the most recent timer or async run, or nil.
func (c *Console) Last() *core.RunResult[int] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Console) status(_ context.Context, _ []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s dir=%s active=%t", c.d.Mode(), c.d.Direction(), c.d.Active())
	if r := c.Last(); r != nil {
		fmt.Fprintf(&b, " state=%s pulses=%d steps=%d elapsed=%s cancelled=%t",
			r.State(), r.PulsesDone(), r.StepsDone(), r.Elapsed(), r.Cancelled())
	}
	return b.String(), nil
}

func (c *Console) cancel(_ context.Context, _ []string) (string, error) {
	if !c.d.Cancel() {
		return "", &core.Error{Code: core.UsageError, Op: "cancel", Msg: "no cancellable run"}
	}
	r := c.Last()
	if r == nil {
		return "", nil
	}
	return fmt.Sprintf("steps=%d", r.StepsDone()), nil
}

func (c *Console) timing(_ context.Context, _ []string) (string, error) {
	t := c.d.Timing()
	return fmt.Sprintf("mode=%s steps_per_rev=%d pulse_delay=%s frequency=%s",
		c.d.Mode(), t.StepsPerRevolution(), t.PulseDelay(), t.Frequency()), nil
}

func (c *Console) fault(_ context.Context, _ []string) (string, error) {
	f, err := c.d.Fault()
	if err != nil {
		return "", err
	}
	return "fault=" + strconv.FormatBool(f), nil
}
