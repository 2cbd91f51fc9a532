package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/levigross/grequests"
	"github.com/sirupsen/logrus"
)

var ErrNoCharts = errors.New("fetch: archive holds no .osu files")

// DownloadSet fetches a whole .osz set and writes its charts to
// <dir>/<setID>/. Only .osu files are kept.
func (c *Client) DownloadSet(ctx context.Context, setID int, dir string) ([]string, error) {
	path := fmt.Sprintf("/beatmapsets/%d/download", setID)
	ro := c.options(ctx)
	ro.Headers["Referer"] = fmt.Sprintf("%s/beatmapsets/%d", c.mirror, setID)
	resp, err := c.do(ctx, grequests.Get, path, "", ro)
	if err != nil {
		return nil, err
	}
	body := resp.Bytes()
	resp.Close()
	if bytes.Contains(body, []byte(slowDownBody)) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, path)
	}

	files, err := ExtractCharts(body, c.log.WithField("set", setID))
	if err != nil {
		return nil, fmt.Errorf("set %d: %w", setID, err)
	}

	out := filepath.Join(dir, strconv.Itoa(setID))
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for name, data := range files {
		p := filepath.Join(out, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return paths, fmt.Errorf("set %d: write %s: %w", setID, name, err)
		}
		paths = append(paths, p)
	}
	c.log.WithFields(logrus.Fields{"set": setID, "charts": len(paths)}).Info("downloaded set")
	return paths, nil
}

// ExtractCharts reads the .osu entries of an .osz archive. Entries in
// subdirectories are skipped.
func ExtractCharts(osz []byte, log logrus.FieldLogger) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(osz), int64(len(osz)))
	if err != nil {
		return nil, fmt.Errorf("open osz: %w", err)
	}

	files := make(map[string][]byte)
	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".osu") {
			continue
		}
		if f.FileInfo().IsDir() || strings.ContainsAny(f.Name, `/\`) {
			log.WithField("entry", f.Name).Warn("skipping nested archive entry")
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		files[f.Name] = data
	}
	if len(files) == 0 {
		return nil, ErrNoCharts
	}
	return files, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
