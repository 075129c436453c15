package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var labelColumns = []string{"is_phishing", "label", "phish", "verified", "status"}

var truthy = map[string]bool{
	"1":     true,
	"true":  true,
	"phish": true,
	"yes":   true,
	"y":     true,
}

const BackupLayout = "20060102_150405"

// Feed is an external list of URLs in arbitrary CSV layout
type Feed struct {
	Source string
	Header []string
	Rows   [][]string
}

func ReadFeed(r io.Reader, source string) (*Feed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	recs, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read feed %s", source)
	}
	if len(recs) == 0 {
		return &Feed{Source: source}, nil
	}
	return &Feed{
		Source: source,
		Header: recs[0],
		Rows:   recs[1:],
	}, nil
}

func ReadFeedFile(path string) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadFeed(f, path)
}

func FetchFeed(ctx context.Context, client *retryablehttp.Client, url string) (*Feed, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: unexpected status %d", url, resp.StatusCode)
	}
	return ReadFeed(resp.Body, url)
}

func (f *Feed) urlColumn() int {
	for i, h := range f.Header {
		if strings.Contains(strings.ToLower(h), "url") {
			return i
		}
	}
	if len(f.Header) > 0 {
		return 0
	}
	return -1
}

func (f *Feed) labelColumn() int {
	for i, h := range f.Header {
		name := strings.ToLower(strings.TrimSpace(h))
		for _, c := range labelColumns {
			if name == c {
				return i
			}
		}
	}
	return -1
}

// Normalize maps the feed onto dataset entries. Feeds without a label column
// get the assumed label for every row.
func Normalize(f *Feed, assumed int) []Entry {
	urlIdx := f.urlColumn()
	if urlIdx < 0 {
		return nil
	}
	labelIdx := f.labelColumn()

	var res []Entry
	for _, row := range f.Rows {
		if urlIdx >= len(row) {
			continue
		}
		u := strings.TrimSpace(row[urlIdx])
		if u == "" {
			continue
		}

		label := assumed
		if labelIdx >= 0 {
			label = 0
			if labelIdx < len(row) && truthy[strings.ToLower(strings.TrimSpace(row[labelIdx]))] {
				label = 1
			}
		}
		res = append(res, Entry{u, label})
	}
	return res
}

// dedupe keeps a single entry per URL, either the first or the last
// occurrence, preserving the order of the kept entries
func dedupe(entries []Entry, keepLast bool) []Entry {
	pos := make(map[string]int)
	for i, e := range entries {
		if _, ok := pos[e.URL]; ok && !keepLast {
			continue
		}
		pos[e.URL] = i
	}

	var res []Entry
	for i, e := range entries {
		if pos[e.URL] == i {
			res = append(res, e)
		}
	}
	return res
}

// Merge appends the normalized feed entries to the existing dataset. A URL
// present more than once keeps its last label. The number of distinct new
// entries is returned alongside the combined dataset.
func Merge(existing []Entry, incoming ...[]Entry) ([]Entry, int) {
	var fresh []Entry
	for _, entries := range incoming {
		fresh = append(fresh, entries...)
	}
	fresh = dedupe(fresh, false)

	combined := make([]Entry, 0, len(existing)+len(fresh))
	for _, e := range existing {
		combined = append(combined, Entry{strings.TrimSpace(e.URL), e.Label})
	}
	combined = append(combined, fresh...)

	return dedupe(combined, true), len(fresh)
}

// Backup moves the dataset aside as <name>_backup_<ts>.csv
func Backup(path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	ts := now.Format(BackupLayout)
	backup := strings.TrimSuffix(path, ".csv") + fmt.Sprintf("_backup_%s.csv", ts)
	if err := os.Rename(path, backup); err != nil {
		return "", err
	}
	log.Info().Str("dataset", path).Str("backup", backup).Msg("backed up dataset")
	return backup, nil
}

type IngestOpts struct {
	Dataset string
	Assumed int
	DryRun  bool
}

type IngestReport struct {
	Rows        int
	Contributed int
	Backup      string
	Entries     []Entry
}

// Ingest merges feeds into the dataset file, backing up the previous version
// unless running dry
func Ingest(opts IngestOpts, feeds ...*Feed) (*IngestReport, error) {
	var parts [][]Entry
	for _, f := range feeds {
		entries := Normalize(f, opts.Assumed)
		if len(entries) == 0 {
			log.Warn().Str("source", f.Source).Msg("no urls found in feed")
			continue
		}
		parts = append(parts, entries)
	}
	if len(parts) == 0 {
		return nil, errors.New("no valid feed data to merge")
	}

	var existing []Entry
	if _, err := os.Stat(opts.Dataset); err == nil {
		existing, err = Load(opts.Dataset)
		if err != nil {
			return nil, errors.Wrap(err, "load existing dataset")
		}
	}

	combined, contributed := Merge(existing, parts...)
	report := IngestReport{
		Rows:        len(combined),
		Contributed: contributed,
		Entries:     combined,
	}
	if opts.DryRun {
		return &report, nil
	}

	backup, err := Backup(opts.Dataset, time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "backup dataset")
	}
	report.Backup = backup

	if err := Save(opts.Dataset, combined); err != nil {
		return nil, err
	}
	return &report, nil
}
