package download

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type UnsafePathErr struct {
	Name string
}

func (err UnsafePathErr) Error() string {
	return fmt.Sprintf("archive entry '%s' escapes the target directory", err.Name)
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Extract unpacks a zip archive into dir and returns the extracted files.
// No file is written if any entry would end up outside of dir.
func Extract(archive, dir string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return nil, UnsafePathErr{filepath.Base(archive)}
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for _, f := range r.File {
		if !within(dir, filepath.Join(dir, f.Name)) {
			return nil, UnsafePathErr{f.Name}
		}
	}

	var res []string
	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return res, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return res, err
		}
		res = append(res, target)
	}
	return res, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
