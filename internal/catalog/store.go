package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gmsas95/medtwin/internal/model"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MetricRecord is a persisted metric definition
type MetricRecord struct {
	MetricKey string  `gorm:"primaryKey" json:"key"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Baseline  float64 `json:"baseline"`
	Target    float64 `json:"target"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TreatmentRecord is a persisted catalog treatment
type TreatmentRecord struct {
	ID          int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`

	ImpactJSON string `gorm:"type:text" json:"-"` // Serialized expected impact

	Priority        string `json:"priority"`
	Confidence      int    `json:"confidence"`
	ExpectedOutcome string `json:"expected_outcome"`
	Timeline        string `json:"timeline"`
	Evidence        string `json:"evidence"`
	Status          string `json:"status"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists the catalog in SQLite
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database and migrates the catalog schema
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&MetricRecord{}, &TreatmentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schemas: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenStore opens (or creates) the SQLite file at path. ":memory:" is allowed.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// A single connection keeps an in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	store, err := NewStore(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save replaces the stored catalog with c
func (s *Store) Save(c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&MetricRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&TreatmentRecord{}).Error; err != nil {
			return err
		}

		for key, m := range c.Metrics {
			rec := &MetricRecord{
				MetricKey: key,
				Name:      m.Name,
				Unit:      m.Unit,
				Baseline:  m.Baseline,
				Target:    m.Target,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to save metric %s: %w", key, err)
			}
		}

		for _, t := range c.Treatments {
			impactJSON, err := json.Marshal(t.ExpectedImpact)
			if err != nil {
				return err
			}
			rec := &TreatmentRecord{
				ID:              t.ID,
				Name:            t.Name,
				Type:            t.Type,
				Description:     t.Description,
				ImpactJSON:      string(impactJSON),
				Priority:        t.Priority,
				Confidence:      t.Confidence,
				ExpectedOutcome: t.ExpectedOutcome,
				Timeline:        t.Timeline,
				Evidence:        t.Evidence,
				Status:          t.Status,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to save treatment %d: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Load reads the stored catalog. It returns nil when nothing is stored.
func (s *Store) Load() (*Catalog, error) {
	var metrics []MetricRecord
	if err := s.db.Order("metric_key ASC").Find(&metrics).Error; err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, nil
	}

	var treatments []TreatmentRecord
	if err := s.db.Order("id ASC").Find(&treatments).Error; err != nil {
		return nil, err
	}

	c := &Catalog{
		Metrics:    make(map[string]model.Metric, len(metrics)),
		Treatments: make([]model.Treatment, 0, len(treatments)),
	}
	for _, m := range metrics {
		c.Metrics[m.MetricKey] = model.Metric{
			Name:     m.Name,
			Unit:     m.Unit,
			Baseline: m.Baseline,
			Target:   m.Target,
		}
	}
	for _, rec := range treatments {
		t := model.Treatment{
			ID:              rec.ID,
			Name:            rec.Name,
			Type:            rec.Type,
			Description:     rec.Description,
			Priority:        rec.Priority,
			Confidence:      rec.Confidence,
			ExpectedOutcome: rec.ExpectedOutcome,
			Timeline:        rec.Timeline,
			Evidence:        rec.Evidence,
			Status:          rec.Status,
		}
		if rec.ImpactJSON != "" {
			if err := json.Unmarshal([]byte(rec.ImpactJSON), &t.ExpectedImpact); err != nil {
				return nil, fmt.Errorf("corrupt impact for treatment %d: %w", rec.ID, err)
			}
		}
		c.Treatments = append(c.Treatments, t)
	}

	return c, nil
}

// Count returns the number of stored treatments
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.Model(&TreatmentRecord{}).Count(&count).Error
	return count, err
}
