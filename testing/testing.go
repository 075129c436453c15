package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aau-network-security/phishdetect/store/models"
	"github.com/jinzhu/gorm"
)

func SkipCI(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping testing in CI environment")
	}
}

func ResetDb(g *gorm.DB) error {
	tables := []string{
		"feature_rows",
	}

	for _, table := range tables {
		qry := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if err := g.Exec(qry).Error; err != nil {
			return err
		}
	}

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
