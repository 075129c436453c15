package classifier

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ModelPrefix   = "phishing_model_"
	ScalerPrefix  = "scaler_"
	ArtifactExt   = ".json"
	VersionLayout = "20060102_150405"
)

var NoArtifactsErr = errors.New("no model artifacts found")

// ArtifactPair is a classifier together with the scaler fit on the same
// columns. Pairs are immutable once created.
type ArtifactPair struct {
	Version   string
	CreatedAt time.Time
	Forest    *Forest
	Scaler    *Scaler
}

type modelFile struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Forest    *Forest   `json:"forest"`
}

type scalerFile struct {
	Version string  `json:"version"`
	Scaler  *Scaler `json:"scaler"`
}

func ModelFileName(version string) string {
	return ModelPrefix + version + ArtifactExt
}

func ScalerFileName(version string) string {
	return ScalerPrefix + version + ArtifactExt
}

// ArtifactDir stores co-versioned classifier and scaler files. The active
// pair is the one with the lexicographically greatest version token.
type ArtifactDir struct {
	Path string
	now  func() time.Time
}

func NewArtifactDir(path string) *ArtifactDir {
	return &ArtifactDir{
		Path: path,
		now:  time.Now,
	}
}

func (d *ArtifactDir) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}

func (d *ArtifactDir) exists(name string) bool {
	_, err := os.Stat(filepath.Join(d.Path, name))
	return err == nil
}

func (d *ArtifactDir) nextVersion() string {
	base := d.clock().Format(VersionLayout)
	version := base
	for i := 1; d.exists(ModelFileName(version)) || d.exists(ScalerFileName(version)); i++ {
		version = fmt.Sprintf("%s_%d", base, i)
	}
	return version
}

func writeJSON(path string, v interface{}) error {
	tmp, err := ioutil.TempFile(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Save persists the pair under a fresh version token. The scaler is written
// first, so a visible classifier file always has its scaler next to it.
func (d *ArtifactDir) Save(pair *ArtifactPair) error {
	if pair.Forest == nil || pair.Scaler == nil {
		return errors.New("artifact pair is incomplete")
	}
	if err := os.MkdirAll(d.Path, 0755); err != nil {
		return errors.Wrap(err, "create model directory")
	}

	pair.Version = d.nextVersion()
	pair.CreatedAt = d.clock().UTC()

	scalerPath := filepath.Join(d.Path, ScalerFileName(pair.Version))
	if err := writeJSON(scalerPath, scalerFile{pair.Version, pair.Scaler}); err != nil {
		return errors.Wrap(err, "write scaler")
	}

	modelPath := filepath.Join(d.Path, ModelFileName(pair.Version))
	mf := modelFile{
		Version:   pair.Version,
		CreatedAt: pair.CreatedAt,
		Forest:    pair.Forest,
	}
	if err := writeJSON(modelPath, mf); err != nil {
		return errors.Wrap(err, "write classifier")
	}

	log.Info().Str("version", pair.Version).Str("path", modelPath).Msg("saved model artifacts")
	return nil
}

func (d *ArtifactDir) ModelPath(version string) string {
	return filepath.Join(d.Path, ModelFileName(version))
}

func (d *ArtifactDir) ScalerPath(version string) string {
	return filepath.Join(d.Path, ScalerFileName(version))
}

// Versions lists the version tokens of all classifier files in ascending order
func (d *ArtifactDir) Versions() ([]string, error) {
	entries, err := ioutil.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ModelPrefix) || !strings.HasSuffix(name, ArtifactExt) {
			continue
		}
		res = append(res, strings.TrimSuffix(strings.TrimPrefix(name, ModelPrefix), ArtifactExt))
	}
	sort.Strings(res)
	return res, nil
}

func (d *ArtifactDir) Latest() (string, error) {
	versions, err := d.Versions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", NoArtifactsErr
	}
	return versions[len(versions)-1], nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func (d *ArtifactDir) Load(version string) (*ArtifactPair, error) {
	var mf modelFile
	if err := readJSON(d.ModelPath(version), &mf); err != nil {
		return nil, errors.Wrap(err, "read classifier")
	}
	var sf scalerFile
	if err := readJSON(d.ScalerPath(version), &sf); err != nil {
		return nil, errors.Wrap(err, "read scaler")
	}
	if mf.Forest == nil || len(mf.Forest.Trees) == 0 {
		return nil, errors.Errorf("classifier %s has no trees", version)
	}
	if sf.Scaler == nil || len(sf.Scaler.Mean) != len(sf.Scaler.Scale) {
		return nil, errors.Errorf("scaler %s is malformed", version)
	}

	return &ArtifactPair{
		Version:   version,
		CreatedAt: mf.CreatedAt,
		Forest:    mf.Forest,
		Scaler:    sf.Scaler,
	}, nil
}

func (d *ArtifactDir) LoadLatest() (*ArtifactPair, error) {
	version, err := d.Latest()
	if err != nil {
		return nil, err
	}
	return d.Load(version)
}
