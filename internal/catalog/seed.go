// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/models"
)

// Seed is the import document: a course collection and an enrollment
// collection. Both the service's own field names and the LMS export names
// (_id, nom, categorical, apprenantId, courseId) are accepted.
type Seed struct {
	Courses     []SeedCourse     `json:"courses"`
	Enrollments []SeedEnrollment `json:"enrollments"`
}

// SeedCourse is one course record in a seed document.
type SeedCourse struct {
	ID          string   `json:"id"`
	MongoID     string   `json:"_id"`
	Name        string   `json:"name"`
	Nom         string   `json:"nom"`
	Description string   `json:"description"`
	Level       string   `json:"level"`
	Categories  []string `json:"categories"`
	Categorical []string `json:"categorical"`
	Language    string   `json:"language"` // also matches the LMS "Language" key
	Image       string   `json:"image"`
}

// SeedEnrollment is one enrollment record in a seed document.
type SeedEnrollment struct {
	LearnerID   string `json:"learner_id"`
	ApprenantID string `json:"apprenantId"`
	CourseID    string `json:"course_id"`
	CourseIDLMS string `json:"courseId"`
}

// ImportResult reports what an import wrote.
type ImportResult struct {
	Courses     int `json:"courses"`
	Enrollments int `json:"enrollments"`
}

// Course converts the record, preferring the service's own field names.
func (s *SeedCourse) Course() models.Course {
	return models.Course{
		ID:          firstNonEmpty(s.ID, s.MongoID),
		Name:        firstNonEmpty(s.Name, s.Nom),
		Description: s.Description,
		Level:       s.Level,
		Categories:  firstNonNil(s.Categories, s.Categorical),
		Language:    s.Language,
		Image:       s.Image,
	}
}

// Enrollment converts the record. Records missing either id convert to a
// pair that AddEnrollments skips.
func (s *SeedEnrollment) Enrollment() models.Enrollment {
	return models.Enrollment{
		LearnerID: firstNonEmpty(s.LearnerID, s.ApprenantID),
		CourseID:  firstNonEmpty(s.CourseID, s.CourseIDLMS),
	}
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return &seed, nil
}

// Import writes a seed document's courses and enrollments.
func (c *Catalog) Import(ctx context.Context, seed *Seed) (ImportResult, error) {
	var res ImportResult

	courses := make([]models.Course, len(seed.Courses))
	for i := range seed.Courses {
		courses[i] = seed.Courses[i].Course()
	}
	n, err := c.UpsertCourses(ctx, courses)
	if err != nil {
		return res, err
	}
	res.Courses = n

	enrollments := make([]models.Enrollment, len(seed.Enrollments))
	for i := range seed.Enrollments {
		enrollments[i] = seed.Enrollments[i].Enrollment()
	}
	n, err = c.AddEnrollments(ctx, enrollments)
	if err != nil {
		return res, err
	}
	res.Enrollments = n
	return res, nil
}

// ImportFile imports the seed document at path.
func (c *Catalog) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer closeQuietly(f)

	seed, err := ParseSeed(f)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%s: %w", path, err)
	}

	res, err := c.Import(ctx, seed)
	if err != nil {
		return res, err
	}
	logging.Info().
		Str("path", path).
		Int("courses", res.Courses).
		Int("enrollments", res.Enrollments).
		Msg("Catalog seed imported")
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...[]string) []string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
