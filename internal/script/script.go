// Package script loads and runs editing sessions described in YAML. A script
// drives the editor the way a user would: pointer strokes, tool changes,
// page navigation, undo, saves and read aloud.
package script

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notecanvas/internal/surface"
	pkgconfig "github.com/starford/notecanvas/pkg/config"
)

// Script is a replayable editing session.
type Script struct {
	Document string `yaml:"document"`
	Page     int    `yaml:"page"`
	Steps    []Step `yaml:"steps"`
}

// Validate validates the script and every step.
func (s *Script) Validate() error {
	if s.Page == 0 {
		s.Page = 1
	}
	if err := validation.ValidateStruct(s,
		validation.Field(&s.Page, validation.Min(1)),
		validation.Field(&s.Steps, validation.Required),
	); err != nil {
		return err
	}
	for i := range s.Steps {
		if err := s.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Step is one action. Exactly one field is set.
type Step struct {
	Tool      string       `yaml:"tool,omitempty"`
	Stroke    [][2]float64 `yaml:"stroke,omitempty"`
	Wait      string       `yaml:"wait,omitempty"`
	Undo      bool         `yaml:"undo,omitempty"`
	Reload    bool         `yaml:"reload,omitempty"`
	ResetView bool         `yaml:"reset_view,omitempty"`
	Page      int          `yaml:"page,omitempty"`
	Next      bool         `yaml:"next,omitempty"`
	Prev      bool         `yaml:"prev,omitempty"`
	AddPage   bool         `yaml:"add_page,omitempty"`
	Save      bool         `yaml:"save,omitempty"`
	Autosave  bool         `yaml:"autosave,omitempty"`
	ReadAloud bool         `yaml:"read_aloud,omitempty"`
	Pause     bool         `yaml:"pause,omitempty"`
	Stop      bool         `yaml:"stop,omitempty"`
	Export    string       `yaml:"export,omitempty"`
}

var errOneAction = errors.New("exactly one action must be set")

// Validate checks that the step names exactly one well-formed action.
func (s *Step) Validate() error {
	set := 0
	for _, on := range []bool{
		s.Tool != "", len(s.Stroke) > 0, s.Wait != "", s.Undo, s.Reload, s.ResetView, s.Page != 0,
		s.Next, s.Prev, s.AddPage, s.Save, s.Autosave, s.ReadAloud,
		s.Pause, s.Stop, s.Export != "",
	} {
		if on {
			set++
		}
	}
	if set != 1 {
		return errOneAction
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.Tool, validation.By(func(any) error {
			if s.Tool == "" {
				return nil
			}
			_, err := surface.ParseTool(s.Tool)
			return err
		})),
		validation.Field(&s.Stroke, validation.When(len(s.Stroke) > 0, validation.Length(2, 0))),
		validation.Field(&s.Wait, validation.By(func(any) error {
			if s.Wait == "" {
				return nil
			}
			d, err := time.ParseDuration(s.Wait)
			if err != nil {
				return err
			}
			if d < 0 {
				return errors.New("must not be negative")
			}
			return nil
		})),
		validation.Field(&s.Page, validation.Min(0)),
	)
}

// Name describes the step's action for logs.
func (s *Step) Name() string {
	switch {
	case s.Tool != "":
		return "tool"
	case len(s.Stroke) > 0:
		return "stroke"
	case s.Wait != "":
		return "wait"
	case s.Undo:
		return "undo"
	case s.Reload:
		return "reload"
	case s.ResetView:
		return "reset_view"
	case s.Page != 0:
		return "page"
	case s.Next:
		return "next"
	case s.Prev:
		return "prev"
	case s.AddPage:
		return "add_page"
	case s.Save:
		return "save"
	case s.Autosave:
		return "autosave"
	case s.ReadAloud:
		return "read_aloud"
	case s.Pause:
		return "pause"
	case s.Stop:
		return "stop"
	case s.Export != "":
		return "export"
	}
	return "unknown"
}

// Load reads a script file. ${VAR} references are expanded from the
// environment before parsing.
func Load(path string) (*Script, error) {
	var s Script
	if err := pkgconfig.Load(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
