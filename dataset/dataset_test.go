package dataset

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aau-network-security/phishdetect/features"
	"github.com/hashicorp/go-retryablehttp"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Entry
		err      bool
	}{
		{
			name:     "plain",
			input:    "url,is_phishing\nhttp://a.com,0\nhttp://b.com,1\n",
			expected: []Entry{{"http://a.com", 0}, {"http://b.com", 1}},
		},
		{
			name:     "extra columns",
			input:    "id,is_phishing,source,url\n1,1,feed, http://a.com \n2,0,feed,\n",
			expected: []Entry{{"http://a.com", 1}},
		},
		{
			name:  "missing label column",
			input: "url\nhttp://a.com\n",
			err:   true,
		},
		{
			name:  "invalid label",
			input: "url,is_phishing\nhttp://a.com,maybe\n",
			err:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual, err := Read(strings.NewReader(test.input))
			if test.err {
				if err == nil {
					t.Fatalf("expected error, but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if !reflect.DeepEqual(actual, test.expected) {
				t.Fatalf("expected %v, but got %v", test.expected, actual)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	entries := []Entry{{"http://a.com/?q=1,2", 1}, {"http://b.com", 0}}

	if err := Save(path, entries); err != nil {
		t.Fatalf("failed to save: %s", err)
	}
	actual, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}
	if !reflect.DeepEqual(actual, entries) {
		t.Fatalf("expected %v, but got %v", entries, actual)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		feed     string
		assumed  int
		expected []Entry
	}{
		{
			name:     "url column and label",
			feed:     "phish_id,phish_url,verified\n1,http://a.com,yes\n2,http://b.com,no\n3,,yes\n",
			expected: []Entry{{"http://a.com", 1}, {"http://b.com", 0}},
		},
		{
			name:     "no label column",
			feed:     "link\nhttp://a.com\n http://b.com\n",
			assumed:  1,
			expected: []Entry{{"http://a.com", 1}, {"http://b.com", 1}},
		},
		{
			name:     "assume benign",
			feed:     "URL\nhttp://a.com\n",
			assumed:  0,
			expected: []Entry{{"http://a.com", 0}},
		},
		{
			name:     "status column",
			feed:     "url,status\nhttp://a.com,PHISH\nhttp://b.com,online\nhttp://c.com,True\n",
			expected: []Entry{{"http://a.com", 1}, {"http://b.com", 0}, {"http://c.com", 1}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f, err := ReadFeed(strings.NewReader(test.feed), test.name)
			if err != nil {
				t.Fatalf("failed to read feed: %s", err)
			}
			actual := Normalize(f, test.assumed)
			if !reflect.DeepEqual(actual, test.expected) {
				t.Fatalf("expected %v, but got %v", test.expected, actual)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	existing := []Entry{{"http://a.com", 0}, {"http://b.com", 0}, {"http://c.com", 1}}
	feedA := []Entry{{"http://b.com", 1}, {"http://d.com", 1}, {"http://d.com", 0}}
	feedB := []Entry{{"http://e.com", 1}}

	combined, contributed := Merge(existing, feedA, feedB)

	expected := []Entry{
		{"http://a.com", 0},
		{"http://c.com", 1},
		{"http://b.com", 1},
		{"http://d.com", 1},
		{"http://e.com", 1},
	}
	if !reflect.DeepEqual(combined, expected) {
		t.Fatalf("expected %v, but got %v", expected, combined)
	}
	if contributed != 3 {
		t.Fatalf("expected 3 contributed entries, but got %d", contributed)
	}
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	if err := Save(path, []Entry{{"http://a.com", 0}}); err != nil {
		t.Fatalf("failed to save: %s", err)
	}
	feed, err := ReadFeed(strings.NewReader("url\nhttp://b.com\nhttp://a.com\n"), "feed")
	if err != nil {
		t.Fatalf("failed to read feed: %s", err)
	}

	t.Run("dry run", func(t *testing.T) {
		report, err := Ingest(IngestOpts{Dataset: path, Assumed: 1, DryRun: true}, feed)
		if err != nil {
			t.Fatalf("failed to ingest: %s", err)
		}
		if report.Rows != 2 || report.Backup != "" {
			t.Fatalf("unexpected report: %+v", report)
		}
		entries, _ := Load(path)
		if len(entries) != 1 {
			t.Fatalf("expected dataset to be untouched, but got %v", entries)
		}
	})

	t.Run("write", func(t *testing.T) {
		report, err := Ingest(IngestOpts{Dataset: path, Assumed: 1}, feed)
		if err != nil {
			t.Fatalf("failed to ingest: %s", err)
		}
		if report.Backup == "" || !strings.Contains(report.Backup, "dataset_backup_") {
			t.Fatalf("expected a backup, but got '%s'", report.Backup)
		}
		if _, err := os.Stat(report.Backup); err != nil {
			t.Fatalf("expected backup file to exist: %s", err)
		}
		entries, err := Load(path)
		if err != nil {
			t.Fatalf("failed to load: %s", err)
		}
		expected := []Entry{{"http://b.com", 1}, {"http://a.com", 1}}
		if !reflect.DeepEqual(entries, expected) {
			t.Fatalf("expected %v, but got %v", expected, entries)
		}
	})

	t.Run("empty feeds", func(t *testing.T) {
		empty, _ := ReadFeed(strings.NewReader(""), "empty")
		if _, err := Ingest(IngestOpts{Dataset: path}, empty); err == nil {
			t.Fatalf("expected error, but got none")
		}
	})
}

func TestFetchFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "url\nhttp://a.com\n")
	}))
	defer ts.Close()

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	f, err := FetchFeed(context.Background(), client, ts.URL+"/feed.csv")
	if err != nil {
		t.Fatalf("failed to fetch feed: %s", err)
	}
	if len(f.Rows) != 1 {
		t.Fatalf("expected 1 row, but got %d", len(f.Rows))
	}

	if _, err := FetchFeed(context.Background(), client, ts.URL+"/missing.csv"); err == nil {
		t.Fatalf("expected error, but got none")
	}
}

type fakeSource struct {
	inFlight int32
	max      int32
}

func (s *fakeSource) Extract(ctx context.Context, raw string) (features.Record, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		m := atomic.LoadInt32(&s.max)
		if cur <= m || atomic.CompareAndSwapInt32(&s.max, m, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	if strings.HasPrefix(raw, "bad") {
		return features.Record{}, fmt.Errorf("invalid url")
	}
	return features.Record{
		Lexical: features.Lexical{URLLength: len(raw)},
		Domain:  features.DegradedDomain(),
		Content: features.DegradedContent(),
		TLS:     features.DegradedTLS(),
	}, nil
}

type memorySink struct {
	m       sync.Mutex
	samples []Sample
}

func (s *memorySink) Add(sample Sample) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func TestExtractor(t *testing.T) {
	var entries []Entry
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("http://site%d.com", i)
		if i == 5 {
			u = "bad url"
		}
		entries = append(entries, Entry{u, i % 2})
	}

	src := &fakeSource{}
	sink := &memorySink{}
	var progress bytes.Buffer
	samples, err := NewExtractor(src, 3).WithSink(sink).WithProgress(&progress).Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("failed to extract: %s", err)
	}

	if len(samples) != 19 {
		t.Fatalf("expected 19 samples, but got %d", len(samples))
	}
	if samples[5].URL != "http://site6.com" {
		t.Fatalf("expected input order to be kept, but got %s", samples[5].URL)
	}
	if peak := atomic.LoadInt32(&src.max); peak > 3 {
		t.Fatalf("expected at most 3 urls in flight, but got %d", peak)
	}
	if len(sink.samples) != 19 {
		t.Fatalf("expected 19 samples in sink, but got %d", len(sink.samples))
	}

	m, y, err := Matrix(samples)
	if err != nil {
		t.Fatalf("failed to build matrix: %s", err)
	}
	if m.Len() != 19 || len(y) != 19 {
		t.Fatalf("expected 19 rows, but got %d", m.Len())
	}
	if y[5] != 0 {
		t.Fatalf("expected label of site6 to be 0, but got %d", y[5])
	}
}

func TestExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(&fakeSource{}, 2).Run(ctx, []Entry{{"http://a.com", 1}})
	if err == nil {
		t.Fatalf("expected error, but got none")
	}
}
