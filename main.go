package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"osusim/config"
	"osusim/difficulty"
	"osusim/dotosu"
	"osusim/fetch"
	"osusim/judge"
	"osusim/library"
	"osusim/playfield"
)

const usage = `usage: osusim <command> [flags] [args]

commands:
  info <file>                  chart metadata, derived constants and diagnostics
  simulate [flags] <file>      autoplay a chart through the judge
  index <dir>                  catalog every chart under dir
  search <text>                search the catalog
  watch <dir>                  keep the catalog in sync with dir
  fetch [-set] <id>            download a chart (or a whole set) and catalog it
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "osusim:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	log *logrus.Logger
	out io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("no command")
	}

	cfg := config.Load()
	log, err := cfg.Logger(stderr)
	if err != nil {
		return err
	}
	dotosu.SetLogger(log.WithField("component", "dotosu"))
	a := &app{cfg: cfg, log: log, out: stdout}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "info":
		return a.info(rest)
	case "simulate":
		return a.simulate(rest)
	case "index":
		return a.index(ctx, rest)
	case "search":
		return a.search(ctx, rest)
	case "watch":
		return a.watch(ctx, rest)
	case "fetch":
		return a.fetch(ctx, rest)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func oneArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one argument, got %d", fs.Name(), fs.NArg())
	}
	return fs.Arg(0), nil
}

func (a *app) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(a.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	return t
}

func (a *app) info(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	modList := fs.String("mods", "", "comma separated mods (HR, EZ, HD)")
	path, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	mods, err := parseMods(*modList)
	if err != nil {
		return err
	}
	b, err := dotosu.DecodeFile(path)
	if err != nil {
		return err
	}
	c := difficulty.Derive(difficulty.Settings{
		CircleSize:        b.Difficulty.CircleSize,
		OverallDifficulty: b.Difficulty.OverallDifficulty,
		ApproachRate:      b.Difficulty.ApproachRate,
	}, mods)
	m := b.Metadata
	counts := b.Counts()

	t := a.table("Field", "Value")
	t.AppendBulk([][]string{
		{"Chart", fmt.Sprintf("%s - %s [%s]", m.Artist, m.Title, m.Version)},
		{"Creator", m.Creator},
		{"Format", "v" + strconv.Itoa(b.FormatVersion)},
		{"Length", formatMs(b.Length())},
		{"Objects", fmt.Sprintf("%s circles, %s sliders, %s spinners",
			humanize.Comma(int64(counts.Circles)), humanize.Comma(int64(counts.Sliders)), humanize.Comma(int64(counts.Spinners)))},
		{"Timing points", strconv.Itoa(len(b.TimingPoints))},
		{"CS / OD / AR", fmt.Sprintf("%.1f / %.1f / %.1f", c.CircleSize, c.OverallDifficulty, c.ApproachRate)},
		{"Radius", fmt.Sprintf("%.2f", c.CircleRadius)},
		{"Preempt", fmt.Sprintf("%.0fms (fade %.0fms)", c.Preempt, c.FadeIn)},
		{"Windows", fmt.Sprintf("%.0f / %.0f / %.0f ms", c.Windows.Great, c.Windows.Good, c.Windows.Meh)},
		{"Spinner", fmt.Sprintf("%.2f rps", c.SpinnerRPS)},
	})
	t.Render()

	if len(b.Diagnostics) > 0 {
		fmt.Fprintf(a.out, "\n%d lines skipped:\n", len(b.Diagnostics))
		d := a.table("Line", "Section", "Problem")
		for _, diag := range b.Diagnostics {
			d.Append([]string{strconv.Itoa(diag.Line), diag.Section, diag.Err.Error()})
		}
		d.Render()
	}
	return nil
}

func (a *app) simulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	modList := fs.String("mods", "", "comma separated mods (HR, EZ, HD)")
	step := fs.Float64("step", 16, "frame step in ms")
	screen := fs.String("screen", "1024x768", "screen size used for -trace positions")
	trace := fs.Bool("trace", false, "print every judgement")
	path, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	if *step <= 0 {
		return fmt.Errorf("step must be positive, got %v", *step)
	}
	mods, err := parseMods(*modList)
	if err != nil {
		return err
	}
	w, h, err := parseSize(*screen)
	if err != nil {
		return err
	}
	b, err := dotosu.DecodeFile(path)
	if err != nil {
		return err
	}

	e := judge.FromBeatmap(b, mods, judge.WithLogger(a.log.WithField("component", "judge")))
	inputs := judge.Autoplay(e.Objects(), e.Constants())
	pf := playfield.New(w, h)
	objects := e.Objects()

	start := time.Now()
	end := b.Length() + e.Constants().Windows.Meh + *step
	next := 0
	var trail *tablewriter.Table
	if *trace {
		trail = a.table("Time", "Object", "Part", "Tier", "Error", "Screen")
	}
	for t := 0.0; !e.Done() && t <= end; t += *step {
		j := next
		for j < len(inputs) && inputs[j].Time <= t {
			j++
		}
		for _, r := range e.Advance(t, inputs[next:j]) {
			if trail == nil {
				continue
			}
			pos := pf.ToScreen(objects[r.ObjectID].StackedPos())
			trail.Append([]string{
				fmt.Sprintf("%.0f", r.Time),
				strconv.Itoa(r.ObjectID),
				r.Part.String(),
				r.Tier.String(),
				fmt.Sprintf("%+.1f", r.ErrorMs),
				fmt.Sprintf("%.0f,%.0f", pos.X(), pos.Y()),
			})
		}
		next = j
	}
	if trail != nil {
		trail.Render()
		fmt.Fprintln(a.out)
	}

	s := e.Summary()
	t := a.table("300", "100", "50", "Miss", "Score", "Accuracy")
	t.Append([]string{
		humanize.Comma(int64(s.Count300)),
		humanize.Comma(int64(s.Count100)),
		humanize.Comma(int64(s.Count50)),
		humanize.Comma(int64(s.Misses)),
		humanize.Comma(int64(s.Score)),
		fmt.Sprintf("%.2f%%", s.Accuracy*100),
	})
	t.Render()
	a.log.WithFields(logrus.Fields{
		"results": s.Total(),
		"inputs":  len(inputs),
		"elapsed": time.Since(start).String(),
	}).Debug("simulation finished")
	return nil
}

func (a *app) open() (*library.Library, error) {
	return library.Open(a.cfg.LibraryPath, library.WithLogger(a.log.WithField("component", "library")))
}

func (a *app) index(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	dir, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	lib, err := a.open()
	if err != nil {
		return err
	}
	defer lib.Close()

	report, err := lib.Scan(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "indexed %s of %s charts\n", humanize.Comma(int64(report.Indexed)), humanize.Comma(int64(report.Files)))
	if len(report.Failures) > 0 {
		t := a.table("Path", "Error")
		for _, f := range report.Failures {
			t.Append([]string{f.Path, f.Err.Error()})
		}
		t.Render()
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	lib, err := a.open()
	if err != nil {
		return err
	}
	defer lib.Close()

	entries, err := lib.Search(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	t := a.table("Chart", "Objects", "Length", "CS", "OD", "AR", "Size", "Indexed", "Checksum")
	for _, e := range entries {
		t.Append([]string{
			e.Name(),
			humanize.Comma(int64(e.Counts.Circles + e.Counts.Sliders + e.Counts.Spinners)),
			formatMs(e.LengthMs),
			fmt.Sprintf("%.1f", e.Difficulty.CircleSize),
			fmt.Sprintf("%.1f", e.Difficulty.OverallDifficulty),
			fmt.Sprintf("%.1f", e.Difficulty.ApproachRate),
			humanize.Bytes(uint64(e.Size)),
			humanize.Time(e.IndexedAt),
			e.Checksum,
		})
	}
	t.Render()
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	dir, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	lib, err := a.open()
	if err != nil {
		return err
	}
	defer lib.Close()

	if _, err := lib.Scan(ctx, dir); err != nil {
		return err
	}
	return lib.Watch(ctx, dir, func(ev library.Event) {
		switch ev.Kind {
		case library.EventIndexed:
			fmt.Fprintf(a.out, "%s %s\n", ev.Kind, ev.Entry.Name())
		case library.EventFailed:
			fmt.Fprintf(a.out, "%s %s: %v\n", ev.Kind, ev.Path, ev.Err)
		default:
			fmt.Fprintf(a.out, "%s %s\n", ev.Kind, ev.Path)
		}
	})
}

func (a *app) fetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	set := fs.Bool("set", false, "treat id as a beatmapset and download the whole .osz")
	arg, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id %q", arg)
	}

	client, err := fetch.NewClient(a.cfg, fetch.WithLogger(a.log.WithField("component", "fetch")))
	if err != nil {
		return err
	}
	var paths []string
	if *set {
		paths, err = client.DownloadSet(ctx, id, a.cfg.SongsDir)
	} else {
		var p string
		p, err = client.Download(ctx, id, a.cfg.SongsDir)
		paths = []string{p}
	}
	if err != nil {
		return err
	}

	lib, err := a.open()
	if err != nil {
		return err
	}
	defer lib.Close()
	for _, p := range paths {
		e, err := lib.Index(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s -> %s (%s)\n", e.Name(), p, humanize.Bytes(uint64(e.Size)))
	}
	return nil
}

// parseMods reads a list like "HR,HD". Case and spaces are ignored.
func parseMods(s string) (difficulty.Mods, error) {
	var m difficulty.Mods
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		switch strings.ToUpper(f) {
		case "HR":
			m.Hardrock = true
		case "EZ":
			m.Easy = true
		case "HD":
			m.Hidden = true
		case "NM":
		default:
			return m, fmt.Errorf("unknown mod %q", f)
		}
	}
	if m.Hardrock && m.Easy {
		return m, errors.New("HR and EZ cannot be combined")
	}
	return m, nil
}

func parseSize(s string) (w, h float64, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		w, err = strconv.ParseFloat(ws, 64)
		if err == nil {
			h, err = strconv.ParseFloat(hs, 64)
		}
	}
	if !ok || err != nil || w <= 0 || h <= 0 || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return 0, 0, fmt.Errorf("invalid screen size %q, want WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

func formatMs(ms float64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
