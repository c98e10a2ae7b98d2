// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package models

// Placeholder values for course fields missing from the catalog.
const (
	DefaultCourseName        = "username"
	DefaultCourseDescription = "desccourse"
	DefaultCourseLevel       = "beginner"
	DefaultCourseLanguage    = "english"
)

// Course is a catalog entry. Once loaded into an index generation it is
// treated as immutable.
type Course struct {
	ID          string   `json:"id" validate:"required,max=128"`
	Name        string   `json:"name,omitempty" validate:"max=512"`
	Description string   `json:"description,omitempty" validate:"max=16384"`
	Level       string   `json:"level,omitempty" validate:"max=64"`
	Categories  []string `json:"categories,omitempty" validate:"max=64,dive,max=128"`
	Language    string   `json:"language,omitempty" validate:"max=64"`
	Image       string   `json:"image,omitempty" validate:"max=2048"`
}

// WithDefaults returns a copy of c with placeholder values filled in for
// missing fields. Categories is never nil on the result.
//
//nolint:gocritic // value receiver keeps Course usable as a map/slice element
func (c Course) WithDefaults() Course {
	if c.Name == "" {
		c.Name = DefaultCourseName
	}
	if c.Description == "" {
		c.Description = DefaultCourseDescription
	}
	if c.Level == "" {
		c.Level = DefaultCourseLevel
	}
	if c.Language == "" {
		c.Language = DefaultCourseLanguage
	}
	c.Categories = append([]string{}, c.Categories...)
	return c
}

// Enrollment associates a learner with a course.
type Enrollment struct {
	LearnerID string `json:"learner_id" validate:"required,max=128"`
	CourseID  string `json:"course_id" validate:"required,max=128"`
}

// CourseDetails is the enriched course object returned by the API.
type CourseDetails struct {
	CourseID    string   `json:"course_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Level       string   `json:"level"`
	Categories  []string `json:"categories"`
	Language    string   `json:"language"`
	Image       string   `json:"image,omitempty"`
}

// Details converts a course to its API representation.
//
//nolint:gocritic // value receiver matches WithDefaults
func (c Course) Details() CourseDetails {
	c = c.WithDefaults()
	return CourseDetails{
		CourseID:    c.ID,
		Name:        c.Name,
		Description: c.Description,
		Level:       c.Level,
		Categories:  c.Categories,
		Language:    c.Language,
		Image:       c.Image,
	}
}
