// Package library keeps a SQLite catalog of parsed charts.
package library

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"osusim/difficulty"
	"osusim/dotosu"
)

var ErrNotFound = errors.New("library: chart not found")

const schema = `
CREATE TABLE IF NOT EXISTS charts (
	checksum      TEXT PRIMARY KEY,
	path          TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL,
	artist        TEXT NOT NULL,
	creator       TEXT NOT NULL,
	version       TEXT NOT NULL,
	tags          TEXT NOT NULL,
	beatmap_id    INTEGER NOT NULL,
	beatmapset_id INTEGER NOT NULL,
	hp            REAL NOT NULL,
	cs            REAL NOT NULL,
	od            REAL NOT NULL,
	ar            REAL NOT NULL,
	radius        REAL NOT NULL,
	preempt       REAL NOT NULL,
	window300     REAL NOT NULL,
	window100     REAL NOT NULL,
	window50      REAL NOT NULL,
	circles       INTEGER NOT NULL,
	sliders       INTEGER NOT NULL,
	spinners      INTEGER NOT NULL,
	length_ms     REAL NOT NULL,
	diagnostics   INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	indexed_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS charts_artist_title ON charts (artist, title);
`

const columns = `checksum, path, title, artist, creator, version, tags, beatmap_id, beatmapset_id,
	hp, cs, od, ar, radius, preempt, window300, window100, window50,
	circles, sliders, spinners, length_ms, diagnostics, size, indexed_at`

// Entry is one catalogued chart.
type Entry struct {
	Checksum     string
	Path         string
	Title        string
	Artist       string
	Creator      string
	Version      string
	Tags         string
	BeatmapID    int
	BeatmapSetID int

	Difficulty dotosu.Difficulty
	Radius     float64
	Preempt    float64
	Windows    difficulty.HitWindows

	Counts      dotosu.Counts
	LengthMs    float64
	Diagnostics int
	Size        int64
	IndexedAt   time.Time
}

func (e *Entry) Name() string {
	return fmt.Sprintf("%s - %s [%s]", e.Artist, e.Title, e.Version)
}

type Option func(*Library)

func WithLogger(l logrus.FieldLogger) Option {
	return func(lib *Library) { lib.log = l }
}

type Library struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

// Open creates or opens the catalog at path. ":memory:" gives a private
// in-memory catalog.
func Open(path string, opts ...Option) (*Library, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create library dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	// One connection keeps :memory: a single database and serialises writers.
	db.SetMaxOpenConns(1)

	lib := &Library{
		db:  db,
		log: logrus.StandardLogger().WithField("component", "library"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(lib)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate library: %w", err)
	}
	return lib, nil
}

func (l *Library) Close() error { return l.db.Close() }

// Checksum is the hex md5 of a chart file's bytes.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Index parses the chart at path and stores it, replacing whatever was
// catalogued for the same path or checksum.
func (l *Library) Index(ctx context.Context, path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &dotosu.ParseError{Path: path, Err: err}
	}
	b, err := dotosu.Parse(string(data))
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	e := newEntry(b)
	e.Checksum = Checksum(data)
	e.Path = abs
	e.Size = int64(len(data))
	e.IndexedAt = l.now().UTC().Truncate(time.Second)

	if err := l.upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	l.log.WithFields(logrus.Fields{
		"path":     abs,
		"checksum": e.Checksum,
	}).Debug("indexed chart")
	return e, nil
}

func newEntry(b *dotosu.Beatmap) *Entry {
	m := b.Metadata
	c := difficulty.Derive(difficulty.Settings{
		CircleSize:        b.Difficulty.CircleSize,
		OverallDifficulty: b.Difficulty.OverallDifficulty,
		ApproachRate:      b.Difficulty.ApproachRate,
	}, difficulty.Mods{})

	return &Entry{
		Title:        firstNonEmpty(m.Title, m.TitleUnicode),
		Artist:       firstNonEmpty(m.Artist, m.ArtistUnicode),
		Creator:      m.Creator,
		Version:      m.Version,
		Tags:         m.Tags,
		BeatmapID:    m.BeatmapID,
		BeatmapSetID: m.BeatmapSetID,
		Difficulty:   b.Difficulty,
		Radius:       c.CircleRadius,
		Preempt:      c.Preempt,
		Windows:      c.Windows,
		Counts:       b.Counts(),
		LengthMs:     b.Length(),
		Diagnostics:  len(b.Diagnostics),
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func (l *Library) upsert(ctx context.Context, e *Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM charts WHERE path = ? OR checksum = ?`, e.Path, e.Checksum); err != nil {
		return err
	}
	d := e.Difficulty
	_, err = tx.ExecContext(ctx, `INSERT INTO charts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Checksum, e.Path, e.Title, e.Artist, e.Creator, e.Version, e.Tags, e.BeatmapID, e.BeatmapSetID,
		d.HPDrainRate, d.CircleSize, d.OverallDifficulty, d.ApproachRate,
		e.Radius, e.Preempt, e.Windows.Great, e.Windows.Good, e.Windows.Meh,
		e.Counts.Circles, e.Counts.Sliders, e.Counts.Spinners, e.LengthMs, e.Diagnostics, e.Size,
		e.IndexedAt.Unix(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e       Entry
		indexed int64
	)
	d := &e.Difficulty
	err := row.Scan(
		&e.Checksum, &e.Path, &e.Title, &e.Artist, &e.Creator, &e.Version, &e.Tags, &e.BeatmapID, &e.BeatmapSetID,
		&d.HPDrainRate, &d.CircleSize, &d.OverallDifficulty, &d.ApproachRate,
		&e.Radius, &e.Preempt, &e.Windows.Great, &e.Windows.Good, &e.Windows.Meh,
		&e.Counts.Circles, &e.Counts.Sliders, &e.Counts.Spinners, &e.LengthMs, &e.Diagnostics, &e.Size,
		&indexed,
	)
	if err != nil {
		return nil, err
	}
	e.IndexedAt = time.Unix(indexed, 0).UTC()
	return &e, nil
}

func (l *Library) Get(ctx context.Context, checksum string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+columns+` FROM charts WHERE checksum = ?`, checksum)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
	}
	return e, err
}

// Search matches text against title, artist, creator, version and tags.
// Empty text lists everything.
func (l *Library) Search(ctx context.Context, text string) ([]Entry, error) {
	like := "%" + escapeLike(strings.TrimSpace(text)) + "%"
	rows, err := l.db.QueryContext(ctx, `SELECT `+columns+` FROM charts
		WHERE title LIKE ?1 ESCAPE '\' OR artist LIKE ?1 ESCAPE '\' OR creator LIKE ?1 ESCAPE '\'
			OR version LIKE ?1 ESCAPE '\' OR tags LIKE ?1 ESCAPE '\'
		ORDER BY artist, title, version`, like)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Remove drops the chart catalogued for path.
func (l *Library) Remove(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx, `DELETE FROM charts WHERE path = ?`, abs)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	l.log.WithField("path", abs).Debug("removed chart")
	return nil
}

func (l *Library) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM charts`).Scan(&n)
	return n, err
}

type ScanFailure struct {
	Path string
	Err  error
}

type ScanReport struct {
	Files    int
	Indexed  int
	Failures []ScanFailure
}

// Scan indexes every .osu file under dir. A file that fails does not stop
// the walk; it is listed in the report.
func (l *Library) Scan(ctx context.Context, dir string) (*ScanReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.WithError(err).WithField("path", path).Warn("skipping unreadable path")
			return nil
		}
		if !d.IsDir() && isChart(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	report := &ScanReport{Files: len(paths)}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := l.Index(ctx, p); err != nil {
			report.Failures = append(report.Failures, ScanFailure{Path: p, Err: err})
			continue
		}
		report.Indexed++
	}
	l.log.WithFields(logrus.Fields{
		"dir":      dir,
		"indexed":  report.Indexed,
		"failures": len(report.Failures),
	}).Info("scan finished")
	return report, nil
}

func isChart(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".osu")
}
