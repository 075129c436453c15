package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aau-network-security/phishdetect/features"
	"github.com/aau-network-security/phishdetect/store/models"
	"github.com/go-pg/pg"
	"github.com/jinzhu/gorm"
	errs "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sample is a URL with its label and extracted feature record
type Sample struct {
	URL    string
	Label  int
	Record features.Record
}

type batchWriter interface {
	insert(rows []*models.FeatureRow) error
}

// batch inserts through go-pg
type pgWriter struct {
	db *pg.DB
}

func (w *pgWriter) insert(rows []*models.FeatureRow) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.Insert(&rows); err != nil {
		return errs.Wrap(err, "insert feature rows")
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, "committing transaction")
	}
	return nil
}

// row-by-row inserts through gorm, used when no go-pg connection is available
type gormWriter struct {
	g *gorm.DB
}

func (w *gormWriter) insert(rows []*models.FeatureRow) error {
	tx := w.g.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, row := range rows {
		if err := tx.Create(row).Error; err != nil {
			tx.Rollback()
			return errs.Wrap(err, "insert feature row")
		}
	}
	if err := tx.Commit().Error; err != nil {
		return errs.Wrap(err, "committing transaction")
	}
	return nil
}

type FeatureStore struct {
	g         *gorm.DB
	w         batchWriter
	m         *sync.Mutex
	batch     []*models.FeatureRow
	batchSize int
	influx    InfluxService
	now       func() time.Time
	closers   []func() error
}

func (s *FeatureStore) isFull() bool {
	return len(s.batch) >= s.batchSize
}

// Add buffers a sample and writes the buffer once it holds a full batch
func (s *FeatureStore) Add(sample Sample) error {
	raw, err := json.Marshal(sample.Record)
	if err != nil {
		return errs.Wrap(err, "encode features")
	}

	s.m.Lock()
	defer s.m.Unlock()

	s.batch = append(s.batch, &models.FeatureRow{
		URL:       sample.URL,
		Label:     sample.Label,
		Features:  string(raw),
		CreatedAt: s.now().UTC(),
	})
	if s.isFull() {
		log.Debug().Msgf("batch is full (%d), writing to database..", len(s.batch))
		return s.flush()
	}
	return nil
}

func (s *FeatureStore) Flush() error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.flush()
}

func (s *FeatureStore) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.w.insert(s.batch); err != nil {
		return err
	}
	s.influx.StoreHit("db-insert", "feature-row", len(s.batch))
	log.Debug().Msgf("stored %d feature rows", len(s.batch))
	s.batch = nil
	return nil
}

// Samples reads stored samples in insertion order, limit <= 0 reads all
func (s *FeatureStore) Samples(limit int) ([]Sample, error) {
	qry := s.g.Order("id asc")
	if limit > 0 {
		qry = qry.Limit(limit)
	}

	var rows []*models.FeatureRow
	if err := qry.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "read feature rows")
	}

	var res []Sample
	for _, row := range rows {
		var rec features.Record
		if err := json.Unmarshal([]byte(row.Features), &rec); err != nil {
			return nil, errs.Wrapf(err, "decode features of row %d", row.ID)
		}
		res = append(res, Sample{
			URL:    row.URL,
			Label:  row.Label,
			Record: rec,
		})
	}
	return res, nil
}

func (s *FeatureStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

type debugHook struct{}

func (hook *debugHook) BeforeQuery(qe *pg.QueryEvent) {
	fq, err := qe.FormattedQuery()
	if err != nil {
		return
	}
	log.Debug().Msgf("%s", fq)
}

func (hook *debugHook) AfterQuery(qe *pg.QueryEvent) {}

// use Gorm's auto migrate functionality
func migrate(g *gorm.DB) error {
	migrateExamples := []interface{}{
		&models.FeatureRow{},
	}
	for _, ex := range migrateExamples {
		if err := g.AutoMigrate(ex).Error; err != nil {
			return err
		}
	}
	return nil
}

func newFeatureStore(g *gorm.DB, w batchWriter, batchSize int, influx InfluxService) *FeatureStore {
	if batchSize <= 0 {
		batchSize = DefaultConfig.BatchSize
	}
	if influx == nil {
		influx = NewDisabledInfluxService()
	}
	return &FeatureStore{
		g:         g,
		w:         w,
		m:         &sync.Mutex{},
		batchSize: batchSize,
		influx:    influx,
		now:       time.Now,
	}
}

func NewFeatureStore(conf Config, influx InfluxService) (*FeatureStore, error) {
	g, err := conf.Open()
	if err != nil {
		return nil, errs.Wrap(err, "open gorm database")
	}
	if err := migrate(g); err != nil {
		return nil, errs.Wrap(err, "migrate models")
	}

	pgOpts := pg.Options{
		User:     conf.User,
		Password: conf.Password,
		Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Database: conf.DBName,
	}
	db := pg.Connect(&pgOpts)
	if conf.Debug {
		db.AddQueryHook(&debugHook{})
	}

	s := newFeatureStore(g, &pgWriter{db}, conf.BatchSize, influx)
	s.closers = append(s.closers, db.Close, g.Close)
	return s, nil
}
