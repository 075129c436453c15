package models

import (
	"time"
)

// FeatureRow is a labelled sample whose features were extracted once and can
// be reused for retraining.
type FeatureRow struct {
	ID        uint   `gorm:"primary_key" pg:",pk"`
	URL       string `gorm:"index"`
	Label     int
	Features  string `gorm:"type:text"` // json encoded record
	CreatedAt time.Time
}
