package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	URLColumn   = "url"
	LabelColumn = "is_phishing"
)

type MissingColumnErr struct {
	Column string
}

func (err MissingColumnErr) Error() string {
	return fmt.Sprintf("dataset is missing required column '%s'", err.Column)
}

type InvalidLabelErr struct {
	Line  int
	Label string
}

func (err InvalidLabelErr) Error() string {
	return fmt.Sprintf("invalid label '%s' on line %d, expected 0 or 1", err.Label, err.Line)
}

// Entry is a labelled URL as found in the dataset file
type Entry struct {
	URL   string
	Label int
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Read parses a dataset with a header holding at least the url and
// is_phishing columns, other columns are ignored
func Read(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	urlIdx := columnIndex(header, URLColumn)
	if urlIdx < 0 {
		return nil, MissingColumnErr{URLColumn}
	}
	labelIdx := columnIndex(header, LabelColumn)
	if labelIdx < 0 {
		return nil, MissingColumnErr{LabelColumn}
	}

	var res []Entry
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}
		if urlIdx >= len(rec) || labelIdx >= len(rec) {
			continue
		}
		u := strings.TrimSpace(rec[urlIdx])
		if u == "" {
			continue
		}
		raw := strings.TrimSpace(rec[labelIdx])
		label, err := strconv.Atoi(raw)
		if err != nil || (label != 0 && label != 1) {
			return nil, InvalidLabelErr{line, raw}
		}
		res = append(res, Entry{u, label})
	}
	return res, nil
}

func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

func Write(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{URLColumn, LabelColumn}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.URL, strconv.Itoa(e.Label)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the dataset to a temporary file next to path before moving it
// into place
func Save(path string, entries []Entry) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := Write(f, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write dataset")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func Labels(entries []Entry) []int {
	res := make([]int, len(entries))
	for i, e := range entries {
		res[i] = e.Label
	}
	return res
}
