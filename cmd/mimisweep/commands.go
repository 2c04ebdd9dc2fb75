package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/config"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procfind"
	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/recorder"
	"github.com/willibrandon/mimisweep/pkg/render"
	"github.com/willibrandon/mimisweep/pkg/replay"
	"github.com/willibrandon/mimisweep/pkg/session"
	"github.com/willibrandon/mimisweep/pkg/snapshot"
	"github.com/willibrandon/mimisweep/pkg/version"
)

var errHelp = flag.ErrHelp

// commonFlags are shared by the commands that read a board
type commonFlags struct {
	variant string
	color   string
	coords  bool
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.variant, "variant", "", "layout to try: auto, legacy or modern (default from MIMISWEEP_VARIANT)")
	fs.StringVar(&c.color, "color", "", "color output: auto, always or never (default from MIMISWEEP_COLOR)")
	fs.BoolVar(&c.coords, "coords", false, "print row and column numbers")
}

// apply folds the flags into the configuration
func (c *commonFlags) apply(cfg *config.Config) error {
	if c.variant != "" {
		v, err := config.ParseVariants(c.variant)
		if err != nil {
			return err
		}
		cfg.Variants = v
	}
	if c.color != "" {
		m, err := render.ParseColorMode(c.color)
		if err != nil {
			return err
		}
		cfg.Color = m
	}
	return nil
}

func (a *app) renderOptions(c commonFlags) render.Options {
	color := a.cfg.Color == render.ColorAlways
	if f, ok := a.stdout.(*os.File); ok {
		color = render.ShouldColor(f, a.cfg.Color)
	}
	return render.Options{Color: color, Coordinates: c.coords}
}

func (a *app) engine(module string) (*session.Engine, error) {
	return session.NewEngine(session.Options{
		Variants:      a.cfg.Variants,
		CacheSize:     a.cfg.CacheSize,
		Logger:        a.log,
		Attach:        a.attach,
		InstanceKey:   a.instanceKey,
		MaxRegionSize: a.cfg.MaxRegionSize,
		Module:        module,
	})
}

// pickTarget returns the game to attach to: pid when it is set, otherwise
// the lowest running game pid. The variant is zero when the executable name
// is not recognised.
func (a *app) pickTarget(pid int) (procfind.Target, error) {
	if pid > 0 {
		t := procfind.Target{PID: pid}
		name, err := a.identify(pid)
		if err != nil {
			a.log.Debug("identify process", "pid", pid, "error", err)
			return t, nil
		}
		t.Name = name
		t.Variant, _ = procfind.VariantForName(name)
		return t, nil
	}
	targets, err := procfind.Find()
	if err != nil {
		return procfind.Target{}, &procmem.AttachError{Err: err}
	}
	if len(targets) == 0 {
		return procfind.Target{}, &procmem.AttachError{Err: procmem.ErrProcessNotFound}
	}
	if len(targets) > 1 {
		a.log.Warn("several games running, using the first", "count", len(targets), "pid", targets[0].PID)
	}
	a.log.Debug("found game", "pid", targets[0].PID, "name", targets[0].Name, "variant", targets[0].Variant)
	return targets[0], nil
}

// narrowVariant limits automatic resolution to the layout of a recognised
// executable. An explicit variant is left alone.
func (a *app) narrowVariant(v layout.Variant) {
	if v == 0 || !a.cfg.AutoVariant() {
		return
	}
	a.cfg.Variants = []layout.Variant{v}
}

func (a *app) openSession(pid int) (*session.Session, error) {
	t, err := a.pickTarget(pid)
	if err != nil {
		return nil, err
	}
	a.narrowVariant(t.Variant)
	e, err := a.engine(t.Name)
	if err != nil {
		return nil, err
	}
	return e.Open(t.PID)
}

func runInfo(a *app, args []string) error {
	fs := a.newFlagSet("info")
	var common commonFlags
	common.register(fs)
	pid := fs.Int("pid", 0, "process id (default: first running game)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := common.apply(&a.cfg); err != nil {
		return err
	}

	s, err := a.openSession(*pid)
	if err != nil {
		return err
	}
	defer s.Close()

	l := s.Layout()
	fmt.Fprintf(a.stdout, "instance:  %s\n", s.Key())
	fmt.Fprintf(a.stdout, "variant:   %s\n", l.Variant())
	fmt.Fprintf(a.stdout, "structure: %#x\n", l.Addr())

	b, err := s.Decode()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "board:     %dx%d, %d mines\n", b.Width, b.Height, b.Mines)
	fmt.Fprintf(a.stdout, "cells:     %s\n", render.Summary(b))
	return nil
}

func runWatch(a *app, args []string) error {
	fs := a.newFlagSet("watch")
	var common commonFlags
	common.register(fs)
	pid := fs.Int("pid", 0, "process id (default: first running game)")
	interval := fs.Duration("interval", a.cfg.PollInterval, "poll interval")
	record := fs.String("record", "", "append frames to this file")
	count := fs.Int("count", 0, "stop after this many changed boards (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := common.apply(&a.cfg); err != nil {
		return err
	}

	s, err := a.openSession(*pid)
	if err != nil {
		return err
	}
	defer s.Close()

	var rec recorder.Recorder
	if *record != "" {
		fr, err := recorder.NewFileRecorderWithOptions(*record, recorder.FileRecorderOptions{
			CompressionType: a.cfg.Compression,
			Logger:          a.log,
		})
		if err != nil {
			return fmt.Errorf("open frame log: %w", err)
		}
		defer fr.Close()
		rec = fr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	variant := s.Layout().Variant().String()
	opts := a.renderOptions(common)
	var (
		seq  int64
		prev *board.Board
	)
	err = s.Watch(ctx, *interval, func(b *board.Board) error {
		if prev != nil && prev.Equal(b) {
			return nil
		}
		seq++
		if rec != nil {
			if err := rec.RecordFrame(recorder.NewBoardFrame(seq, s.Key(), variant, b)); err != nil {
				return fmt.Errorf("record frame: %w", err)
			}
		}
		if prev != nil {
			a.log.Debug("board changed", "changes", len(board.Diff(prev, b)))
		}
		prev = b
		if err := render.Text(a.stdout, b, opts); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout)
		if *count > 0 && seq >= int64(*count) {
			cancel()
		}
		return nil
	})

	var decodeErr *board.DecodeError
	if rec != nil && errors.As(err, &decodeErr) {
		seq++
		if rerr := rec.RecordFrame(recorder.NewErrorFrame(seq, s.Key(), variant, err)); rerr != nil {
			a.log.Warn("record error frame", "error", rerr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runDump(a *app, args []string) error {
	fs := a.newFlagSet("dump")
	pid := fs.Int("pid", 0, "process id (default: first running game)")
	out := fs.String("out", "", "snapshot directory (required)")
	maxRegion := fs.Uint64("max-region", a.cfg.MaxRegionSize, "skip regions larger than this many bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return errors.New("-out is required")
	}

	t, err := a.pickTarget(*pid)
	if err != nil {
		return err
	}
	p := t.PID
	attach := a.attach
	if attach == nil {
		attach = func(pid int) (procmem.Target, error) {
			p, err := procmem.Attach(pid)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	target, err := attach(p)
	if err != nil {
		var ae *procmem.AttachError
		if !errors.As(err, &ae) {
			err = &procmem.AttachError{PID: p, Err: err}
		}
		return err
	}
	defer target.Close()

	opts := snapshot.DefaultOptions()
	opts.PID = p
	opts.MaxRegionSize = *maxRegion
	opts.Logger = a.log
	opts.Process = t.Name
	if t.Variant != 0 {
		opts.Variant = t.Variant.String()
	} else {
		r := layout.NewResolver(target,
			layout.WithLogger(a.log),
			layout.WithMaxRegionSize(a.cfg.MaxRegionSize),
			layout.WithModule(t.Name))
		if l, err := r.Find(a.cfg.Variants...); err == nil {
			opts.Variant = l.Variant().String()
		}
	}

	m, err := snapshot.Capture(target, *out, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "captured %d regions (%d bytes) to %s, %d skipped\n",
		len(m.Regions), m.TotalBytes, *out, len(m.Skipped))
	return nil
}

func runDecode(a *app, args []string) error {
	fs := a.newFlagSet("decode")
	var common commonFlags
	common.register(fs)
	from := fs.String("from", "", "snapshot directory (required)")
	asJSON := fs.Bool("json", false, "print the board as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" && fs.NArg() > 0 {
		*from = fs.Arg(0)
	}
	if *from == "" {
		fs.Usage()
		return errors.New("-from is required")
	}
	if err := common.apply(&a.cfg); err != nil {
		return err
	}

	mem, m, err := snapshot.Load(*from)
	if err != nil {
		return err
	}
	// The recorded variant narrows the search unless one was asked for.
	if common.variant == "" && m.Variant != "" {
		if v, err := layout.ParseVariant(m.Variant); err == nil {
			a.cfg.Variants = []layout.Variant{v}
		}
	}

	e, err := a.engine(m.Process)
	if err != nil {
		return err
	}
	s, err := e.OpenTarget("snapshot:"+*from, mem)
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.Decode()
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	return render.Text(a.stdout, b, a.renderOptions(common))
}

func runReplay(a *app, args []string) error {
	fs := a.newFlagSet("replay")
	var common commonFlags
	common.register(fs)
	pace := fs.Bool("pace", false, "wait the recorded time between frames")
	changes := fs.Bool("changes", false, "print changed cells instead of whole boards")
	start := fs.Int("start", 0, "first frame index to replay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected one frame log path")
	}
	if err := common.apply(&a.cfg); err != nil {
		return err
	}

	frames, err := recorder.ReadFrames(fs.Arg(0))
	if err != nil {
		return err
	}
	r := replay.NewBasicReplayer()
	if err := r.LoadFrames(frames); err != nil {
		return err
	}
	if *pace {
		r.Pace = time.Sleep
	}
	if *start > 0 {
		if err := r.ReplayToIndex(*start - 1); err != nil {
			return err
		}
	}

	opts := a.renderOptions(common)
	return r.ReplayForward(func(s replay.Step) error {
		f := s.Frame
		fmt.Fprintf(a.stdout, "#%d seq=%d %s %s\n", s.Index, f.Seq, f.Timestamp.Format(time.RFC3339Nano), f.Source)
		if f.Kind == recorder.ErrorFrame {
			fmt.Fprintf(a.stdout, "error: %s\n\n", f.Error)
			return nil
		}
		if f.Board == nil {
			return fmt.Errorf("frame %d has no board", s.Index)
		}
		if *changes && s.Index > 0 {
			for _, c := range s.Changes {
				fmt.Fprintf(a.stdout, "  (%d,%d) %s -> %s\n", c.X, c.Y, c.From, c.To)
			}
			fmt.Fprintln(a.stdout)
			return nil
		}
		if err := render.Text(a.stdout, f.Board, opts); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout)
		return nil
	})
}

func runVersion(a *app, args []string) error {
	fs := a.newFlagSet("version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, version.GetVersionInfo())
	return nil
}
