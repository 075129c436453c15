package store

import (
	"io"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
)

type InfluxService interface {
	StoreHit(status string, insertType string, count int)
	SourceOutcome(source string, degraded bool)
	Verdict(verdict string)
	CacheSize(cacheName string, cur int, total int)
	io.Closer
}

type influxService struct {
	client    influxdb2.Client
	api       influxapi.WriteAPI
	done      chan bool
	ticker    *time.Ticker
	storeHits map[storeHitTuple]int
	sources   map[sourceTuple]int
	verdicts  map[string]int
	cacheSize map[string]cacheInfo
	m         *sync.Mutex
}

type storeHitTuple struct {
	status     string
	insertType string
}

type sourceTuple struct {
	source   string
	degraded bool
}

func (ifs *influxService) StoreHit(status string, insertType string, count int) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	ifs.storeHits[storeHitTuple{status, insertType}] += count
}

func (ifs *influxService) SourceOutcome(source string, degraded bool) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	ifs.sources[sourceTuple{source, degraded}]++
}

func (ifs *influxService) Verdict(verdict string) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	ifs.verdicts[verdict]++
}

type cacheInfo struct {
	cur   int
	total int
}

func (ifs *influxService) CacheSize(cacheName string, cur int, total int) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	ifs.cacheSize[cacheName] = cacheInfo{cur, total}
}

func (ifs *influxService) Close() error {
	ifs.done <- true
	ifs.ticker.Stop()

	ifs.write()
	ifs.api.Flush()
	if ifs.client != nil {
		ifs.client.Close()
	}

	return nil
}

func (ifs *influxService) write() {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	now := time.Now()

	// write store hits
	for tuple, count := range ifs.storeHits {
		tags := map[string]string{
			"status": tuple.status,
			"type":   tuple.insertType,
		}
		fields := map[string]interface{}{
			"count": count,
		}
		ifs.api.WritePoint(influxdb2.NewPoint("store-hits", tags, fields, now))
	}

	// write feature source outcomes
	for tuple, count := range ifs.sources {
		status := "ok"
		if tuple.degraded {
			status = "degraded"
		}
		tags := map[string]string{
			"source": tuple.source,
			"status": status,
		}
		fields := map[string]interface{}{
			"count": count,
		}
		ifs.api.WritePoint(influxdb2.NewPoint("sources", tags, fields, now))
	}

	// write verdicts
	for verdict, count := range ifs.verdicts {
		tags := map[string]string{
			"verdict": verdict,
		}
		fields := map[string]interface{}{
			"count": count,
		}
		ifs.api.WritePoint(influxdb2.NewPoint("verdicts", tags, fields, now))
	}

	// write cache sizes
	for cacheName, info := range ifs.cacheSize {
		tags := map[string]string{
			"cacheName": cacheName,
		}
		fields := map[string]interface{}{
			"cur":   info.cur,
			"total": info.total,
		}
		// unbounded caches have no total
		if info.total > 0 {
			fields["perc"] = float64(info.cur) / float64(info.total) * float64(100)
		}
		ifs.api.WritePoint(influxdb2.NewPoint("cache", tags, fields, now))
	}

	ifs.storeHits = map[storeHitTuple]int{}
	ifs.sources = map[sourceTuple]int{}
	ifs.verdicts = map[string]int{}
	ifs.cacheSize = map[string]cacheInfo{}
}

type InfluxOpts struct {
	Enabled      bool   `yaml:"enabled"`
	ServUrl      string `yaml:"server-url"`
	AuthToken    string `yaml:"auth-token"`
	Organisation string `yaml:"organisation"`
	Bucket       string `yaml:"bucket"`
	Interval     int    `yaml:"interval"` // in seconds
}

func (opts *InfluxOpts) IsValid() error {
	if !opts.Enabled {
		return nil
	}
	var missing []string
	if opts.ServUrl == "" {
		missing = append(missing, "server-url")
	}
	if opts.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if opts.Interval <= 0 {
		missing = append(missing, "interval")
	}
	if len(missing) > 0 {
		return MissingOptsErr{"influxdb", missing}
	}
	return nil
}

// service that is being used when influxdb is disabled
type disabledService struct{}

func (ds *disabledService) StoreHit(status string, insertType string, count int) {}

func (ds *disabledService) SourceOutcome(source string, degraded bool) {}

func (ds *disabledService) Verdict(verdict string) {}

func (ds *disabledService) CacheSize(cacheName string, cur int, total int) {}

func (ds *disabledService) Close() error {
	return nil
}

func NewDisabledInfluxService() InfluxService {
	return &disabledService{}
}

func NewInfluxService(opts InfluxOpts) InfluxService {
	if !opts.Enabled {
		return NewDisabledInfluxService()
	}

	client := influxdb2.NewClient(opts.ServUrl, opts.AuthToken)
	api := client.WriteAPI(opts.Organisation, opts.Bucket)

	return NewInfluxServiceWithClient(client, api, opts.Interval)
}

func NewInfluxServiceWithClient(client influxdb2.Client, api influxapi.WriteAPI, interval int) InfluxService {
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	done := make(chan bool)

	is := influxService{
		client:    client,
		api:       api,
		done:      done,
		storeHits: map[storeHitTuple]int{},
		sources:   map[sourceTuple]int{},
		verdicts:  map[string]int{},
		cacheSize: map[string]cacheInfo{},
		ticker:    ticker,
		m:         &sync.Mutex{},
	}

	go func() {
		// write to influxdb at interval
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				is.write()
			}
		}
	}()

	return &is
}
