// Package config loads run settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"pdf-heft/internal/booklet"
	"pdf-heft/internal/pipeline"
)

// Config mirrors the command line flags.
type Config struct {
	Input          string             `yaml:"input"`
	Output         string             `yaml:"output"`
	WorkDir        string             `yaml:"work_dir"`
	Keep           bool               `yaml:"keep"`
	Artifacts      pipeline.Artifacts `yaml:"artifacts"`
	Margins        booklet.Margins    `yaml:"margins"`
	BorderWidth    float64            `yaml:"border_width"`
	StrictPageSize bool               `yaml:"strict_page_size"`
	Parallel       bool               `yaml:"parallel"`
	LogLevel       string             `yaml:"log_level"`
}

// Default returns the reference settings: input.pdf in, merged.pdf out,
// outer margin 10, inner margin 5, border 2.
func Default() Config {
	return Config{
		Input:     "input.pdf",
		Output:    "merged.pdf",
		Artifacts: pipeline.DefaultArtifacts(),
		Margins: booklet.Margins{
			Outer: booklet.DefaultOuterMargin,
			Inner: booklet.DefaultInnerMargin,
		},
		BorderWidth: booklet.DefaultBorderWidth,
		LogLevel:    "info",
	}
}

// Load reads path on top of Default. Unknown keys are rejected.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings before any file is opened.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Input, validation.Required),
		validation.Field(&c.Output, validation.Required, validation.NotIn(c.Input).Error("must differ from input")),
		validation.Field(&c.BorderWidth, validation.Min(0.0)),
		validation.Field(&c.LogLevel, validation.By(func(v interface{}) error {
			s, _ := v.(string)
			if s == "" {
				return nil
			}
			_, err := logrus.ParseLevel(s)
			return err
		})),
	)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validation.ValidateStruct(&c.Margins,
		validation.Field(&c.Margins.Outer, validation.Min(0.0)),
		validation.Field(&c.Margins.Inner, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("invalid configuration: margins: %w", err)
	}
	return nil
}

// Options converts the settings into pipeline options.
func (c Config) Options() pipeline.Options {
	return pipeline.Options{
		Input:            c.Input,
		Output:           c.Output,
		WorkDir:          c.WorkDir,
		KeepIntermediate: c.Keep,
		Artifacts:        c.Artifacts,
		Margins:          c.Margins,
		BorderWidth:      c.BorderWidth,
		StrictPageSize:   c.StrictPageSize,
		Parallel:         c.Parallel,
	}
}
