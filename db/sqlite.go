package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrModelNotFound  = errors.New("model not found")
)

// InitDB opens the SQLite database in WAL mode and creates the registry tables.
func InitDB(path string) error {
	var err error
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	database, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(time.Hour)

	query := `
    CREATE TABLE IF NOT EXISTS models (
        name TEXT PRIMARY KEY,
        type TEXT NOT NULL,
        target TEXT NOT NULL,
        payload BLOB NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        model_type VARCHAR(20),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER,
        test_points INTEGER,
        duration_ms INTEGER
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close closes the database opened by InitDB.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// ModelRecord is a serialized classifier stored under a unique name.
type ModelRecord struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveModel inserts or replaces the model stored under rec.Name.
func SaveModel(rec ModelRecord) error {
	if database == nil {
		return ErrNotInitialized
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO models (name, type, target, payload, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.Type, rec.Target, rec.Payload, rec.CreatedAt)
	return err
}

// LoadModelRecord returns the stored model named name, payload included.
func LoadModelRecord(name string) (ModelRecord, error) {
	if database == nil {
		return ModelRecord{}, ErrNotInitialized
	}
	var rec ModelRecord
	err := database.QueryRow(`
        SELECT name, type, target, payload, created_at
        FROM models
        WHERE name = ?`, name).Scan(&rec.Name, &rec.Type, &rec.Target, &rec.Payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return rec, err
}

// ListModels returns every stored model without its payload, newest first.
func ListModels() ([]ModelRecord, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT name, type, target, created_at
        FROM models
        ORDER BY created_at DESC, name
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ModelRecord, 0)
	for rows.Next() {
		var rec ModelRecord
		if err := rows.Scan(&rec.Name, &rec.Type, &rec.Target, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteModel removes a stored model. ErrModelNotFound if there is none.
func DeleteModel(name string) error {
	if database == nil {
		return ErrNotInitialized
	}
	res, err := database.Exec(`DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return nil
}

// TrainingLog is one row of the training history.
type TrainingLog struct {
	ModelName  string        `json:"model_name"`
	ModelType  string        `json:"model_type"`
	Accuracy   float64       `json:"accuracy"`
	Precision  float64       `json:"precision"`
	Recall     float64       `json:"recall"`
	F1         float64       `json:"f1"`
	TrainedAt  time.Time     `json:"trained_at"`
	DataPoints int           `json:"data_points"`
	TestPoints int           `json:"test_points"`
	Duration   time.Duration `json:"duration"`
}

// SaveTrainingLog appends entry to the training history.
func SaveTrainingLog(entry TrainingLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now()
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, model_type, accuracy, precision, recall, f1, trained_at, data_points, test_points, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.ModelType, entry.Accuracy, entry.Precision, entry.Recall, entry.F1,
		entry.TrainedAt, entry.DataPoints, entry.TestPoints, entry.Duration.Milliseconds())
	return err
}

// LoadTrainingLog returns up to limit entries, newest first. limit <= 0 returns all.
func LoadTrainingLog(limit int) ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := database.Query(`
        SELECT model_name, model_type, accuracy, precision, recall, f1, trained_at, data_points, test_points, duration_ms
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var durationMS int64
		if err := rows.Scan(&log.ModelName, &log.ModelType, &log.Accuracy, &log.Precision, &log.Recall, &log.F1,
			&log.TrainedAt, &log.DataPoints, &log.TestPoints, &durationMS); err != nil {
			return nil, err
		}
		log.Duration = time.Duration(durationMS) * time.Millisecond
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
