// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nicholasgasior/docconv-go"
)

// Definition is a named, persisted batch configuration.
type Definition struct {
	Name      string          `json:"name" validate:"required,max=128,excludesall=/\\"`
	InputDir  string          `json:"input_dir" validate:"required"`
	OutputDir string          `json:"output_dir" validate:"required"`
	Format    docconv.Format  `json:"output_format" validate:"docformat"`
	Quality   docconv.Quality `json:"quality" validate:"omitempty,quality"`
	Recursive bool            `json:"recursive"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	LastRunAt *time.Time      `json:"last_run"`
	RunCount  int             `json:"run_count"`
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	c := *d
	if d.LastRunAt != nil {
		t := *d.LastRunAt
		c.LastRunAt = &t
	}
	return &c
}

// Run is the audit record of one workflow execution.
type Run struct {
	ID         string          `json:"id"`
	Workflow   string          `json:"workflow"`
	Format     docconv.Format  `json:"output_format"`
	Quality    docconv.Quality `json:"quality"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	TotalFiles int             `json:"total_files"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Cancelled  int             `json:"cancelled"`
	Error      string          `json:"error,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("docformat", func(fl validator.FieldLevel) bool {
		return docconv.Format(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("quality", func(fl validator.FieldLevel) bool {
		_, err := docconv.ParseQuality(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the user-supplied fields of d.
func (d *Definition) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &InvalidDefinitionError{Name: d.Name, Err: err}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &InvalidDefinitionError{Name: d.Name, Err: errors.New(strings.Join(msgs, "; "))}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "excludesall":
		return fmt.Sprintf("%s must not contain any of %q", fe.Field(), fe.Param())
	case "docformat":
		return fmt.Sprintf("%s %q is not one of pdf, docx, xlsx, csv, json, txt", fe.Field(), fe.Value())
	case "quality":
		return fmt.Sprintf("%s %q is not one of low, medium, high", fe.Field(), fe.Value())
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// normalize canonicalizes user-supplied fields before validation.
func (d *Definition) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	if f, ok := docconv.ParseFormat(string(d.Format)); ok {
		d.Format = f
	}
	if q, err := docconv.ParseQuality(string(d.Quality)); err == nil {
		d.Quality = q
	}
}
