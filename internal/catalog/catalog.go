// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package catalog stores courses and enrollments in DuckDB and serves them
// to the recommendation engine and the HTTP API.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/metrics"
	"github.com/tomtom215/coursematch/internal/models"
)

// ErrClosed is returned by operations on a closed catalog.
var ErrClosed = errors.New("catalog is closed")

// Config configures the DuckDB database.
type Config struct {
	// Path is the database file. Empty or ":memory:" opens an in-memory database.
	Path string

	// Threads is the DuckDB worker count (0 = NumCPU).
	Threads int

	// MaxMemory caps DuckDB memory, e.g. "1GB".
	MaxMemory string
}

// Stats summarizes catalog contents.
type Stats struct {
	Courses     int `json:"courses"`
	Enrollments int `json:"enrollments"`
	Learners    int `json:"learners"`
}

// Catalog wraps the DuckDB connection.
type Catalog struct {
	conn *sql.DB
	path string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id          VARCHAR PRIMARY KEY,
		name        VARCHAR NOT NULL,
		description VARCHAR NOT NULL,
		level       VARCHAR NOT NULL,
		categories  VARCHAR NOT NULL DEFAULT '[]',
		language    VARCHAR NOT NULL,
		image       VARCHAR,
		position    BIGINT NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		learner_id  VARCHAR NOT NULL,
		course_id   VARCHAR NOT NULL,
		enrolled_at TIMESTAMP NOT NULL,
		PRIMARY KEY (learner_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_learner ON enrollments (learner_id)`,
}

// Open opens (or creates) the catalog database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		// 0750 per gosec G301
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create catalog directory %s: %w", dir, err)
			}
		}
	}

	// Autoload stays off so startup never reaches for the network.
	params := []string{
		fmt.Sprintf("threads=%d", threads),
		"autoinstall_known_extensions=false",
		"autoload_known_extensions=false",
	}
	if cfg.MaxMemory != "" {
		params = append(params, "max_memory="+cfg.MaxMemory)
	}
	if path != ":memory:" {
		params = append(params, "access_mode=read_write")
	}
	connStr := path + "?" + strings.Join(params, "&")

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
		}
	}

	logging.Info().Str("path", path).Int("threads", threads).Msg("Catalog opened")
	return &Catalog{conn: conn, path: path}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping checks the connection.
func (c *Catalog) Ping(ctx context.Context) error {
	if c.conn == nil {
		return ErrClosed
	}
	return c.conn.PingContext(ctx)
}

// Courses returns every course in insertion order with defaults applied.
func (c *Catalog) Courses(ctx context.Context) (courses []models.Course, err error) {
	if c.conn == nil {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("SELECT", "courses", time.Since(start), err) }()

	rows, err := c.conn.QueryContext(ctx, `
		SELECT id, name, description, level, categories, language, image
		FROM courses
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer closeQuietly(rows)

	courses, err = scanCourses(rows)
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// CoursesByID returns the courses for ids in the order given.
// Unknown ids are skipped.
func (c *Catalog) CoursesByID(ctx context.Context, ids []string) (courses []models.Course, err error) {
	if c.conn == nil {
		return nil, ErrClosed
	}
	if len(ids) == 0 {
		return []models.Course{}, nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("SELECT", "courses", time.Since(start), err) }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	//nolint:gosec // placeholders only, values are bound
	query := `SELECT id, name, description, level, categories, language, image
		FROM courses WHERE id IN (` + placeholders + `)`

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses by id: %w", err)
	}
	defer closeQuietly(rows)

	found, err := scanCourses(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Course, len(found))
	for i := range found {
		byID[found[i].ID] = found[i]
	}
	courses = make([]models.Course, 0, len(ids))
	for _, id := range ids {
		if course, ok := byID[id]; ok {
			courses = append(courses, course)
		}
	}
	return courses, nil
}

// EnrolledCourseIDs returns the ids of the courses a learner is enrolled in.
// An unknown learner has no enrollments.
func (c *Catalog) EnrolledCourseIDs(ctx context.Context, learnerID string) (ids []string, err error) {
	if c.conn == nil {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("SELECT", "enrollments", time.Since(start), err) }()

	rows, err := c.conn.QueryContext(ctx, `
		SELECT course_id FROM enrollments
		WHERE learner_id = ?
		ORDER BY enrolled_at, course_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer closeQuietly(rows)

	ids = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}
	return ids, nil
}

// UpsertCourses inserts new courses at the end of the catalog and updates
// existing ones in place. Courses without an id are skipped; when an id
// repeats in the input the last occurrence wins. Returns the number of
// courses written.
func (c *Catalog) UpsertCourses(ctx context.Context, courses []models.Course) (n int, err error) {
	if c.conn == nil {
		return 0, ErrClosed
	}
	records := dedupeLast(courses)
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("UPSERT", "courses", time.Since(start), err) }()

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // already failing
		}
	}()

	var next int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM courses`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to read course position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO courses (id, name, description, level, categories, language, image, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			level = excluded.level,
			categories = excluded.categories,
			language = excluded.language,
			image = excluded.image,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare course upsert: %w", err)
	}
	defer closeQuietly(stmt)

	now := time.Now().UTC()
	for i := range records {
		course := records[i].WithDefaults()
		categories, mErr := json.Marshal(course.Categories)
		if mErr != nil {
			err = fmt.Errorf("failed to encode categories for %s: %w", course.ID, mErr)
			return 0, err
		}
		next++
		if _, err = stmt.ExecContext(ctx,
			course.ID, course.Name, course.Description, course.Level,
			string(categories), course.Language, nullString(course.Image), next, now,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert course %s: %w", course.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit courses: %w", err)
	}
	return len(records), nil
}

// AddEnrollments records enrollments, ignoring pairs already present and
// pairs with an empty id. Returns the number of pairs submitted.
func (c *Catalog) AddEnrollments(ctx context.Context, enrollments []models.Enrollment) (n int, err error) {
	if c.conn == nil {
		return 0, ErrClosed
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("INSERT", "enrollments", time.Since(start), err) }()

	seen := make(map[models.Enrollment]struct{}, len(enrollments))
	pairs := make([]models.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.LearnerID == "" || e.CourseID == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		pairs = append(pairs, e)
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // already failing
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enrollments (learner_id, course_id, enrolled_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare enrollment insert: %w", err)
	}
	defer closeQuietly(stmt)

	now := time.Now().UTC()
	for _, e := range pairs {
		if _, err = stmt.ExecContext(ctx, e.LearnerID, e.CourseID, now); err != nil {
			return 0, fmt.Errorf("failed to insert enrollment %s/%s: %w", e.LearnerID, e.CourseID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit enrollments: %w", err)
	}
	return len(pairs), nil
}

// Stats counts courses, enrollments and distinct learners.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if c.conn == nil {
		return s, ErrClosed
	}
	err := c.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM enrollments),
			(SELECT COUNT(DISTINCT learner_id) FROM enrollments)`).
		Scan(&s.Courses, &s.Enrollments, &s.Learners)
	if err != nil {
		return s, fmt.Errorf("failed to read catalog stats: %w", err)
	}
	return s, nil
}

func scanCourses(rows *sql.Rows) ([]models.Course, error) {
	courses := []models.Course{}
	for rows.Next() {
		var (
			course     models.Course
			categories string
			image      sql.NullString
		)
		if err := rows.Scan(&course.ID, &course.Name, &course.Description, &course.Level,
			&categories, &course.Language, &image); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		if categories != "" {
			if err := json.Unmarshal([]byte(categories), &course.Categories); err != nil {
				return nil, fmt.Errorf("failed to decode categories for %s: %w", course.ID, err)
			}
		}
		course.Image = image.String
		courses = append(courses, course.WithDefaults())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}

// dedupeLast drops courses without an id and keeps the last occurrence of
// each id at the position of its first occurrence.
func dedupeLast(courses []models.Course) []models.Course {
	pos := make(map[string]int, len(courses))
	out := make([]models.Course, 0, len(courses))
	for i := range courses {
		id := courses[i].ID
		if id == "" {
			continue
		}
		if p, ok := pos[id]; ok {
			out[p] = courses[i]
			continue
		}
		pos[id] = len(out)
		out = append(out, courses[i])
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// closeQuietly closes a resource in cleanup paths where the error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
