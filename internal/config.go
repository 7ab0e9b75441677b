package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/robfig/cron/v3"

	"github.com/starford/notecanvas/internal/accessory"
	"github.com/starford/notecanvas/internal/history"
	"github.com/starford/notecanvas/internal/surface"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Index     IndexConfig       `yaml:"index"`
	Editor    EditorConfig      `yaml:"editor"`
	Accessory AccessoryConfig   `yaml:"accessory"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Storage, &c.SQLite, &c.Auth, &c.Index, &c.Editor, &c.Accessory,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the path of the page data directory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IndexConfig controls the page index.
type IndexConfig struct {
	// Resync is a cron schedule for a full rescan of the data directory.
	// Empty disables it; the file watcher alone keeps the index current.
	Resync string `yaml:"resync"`
	// EventThrottle limits document.updated events per document.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Resync, validation.By(cronSchedule)),
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	)
}

// EditorConfig configures editing sessions run by the replay command.
type EditorConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
	SwipeThreshold float64       `yaml:"swipe_threshold"`
	HistoryLimit   int           `yaml:"history_limit"`
	// Autosave is a cron schedule; empty disables autosave.
	Autosave string `yaml:"autosave"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.CoalesceWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.SwipeThreshold, validation.Min(0.0)),
		validation.Field(&c.HistoryLimit, validation.Min(0)),
		validation.Field(&c.Autosave, validation.By(cronSchedule)),
		validation.Field(&c.Width, validation.Required, validation.Min(1), validation.Max(surface.MaxDimension)),
		validation.Field(&c.Height, validation.Required, validation.Min(1), validation.Max(surface.MaxDimension)),
	)
}

// AccessoryConfig configures the OCR and speech collaborators used by read
// aloud. Read aloud is available only when both URLs are set.
type AccessoryConfig struct {
	OCRURL     string        `yaml:"ocr_url"`
	TTSURL     string        `yaml:"tts_url"`
	Voice      string        `yaml:"voice"`
	Rate       string        `yaml:"rate"`
	Timeout    time.Duration `yaml:"timeout"`
	Player     string        `yaml:"player"`
	PlayerArgs []string      `yaml:"player_args"`
}

// Validate validates the accessory configuration.
func (c *AccessoryConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.OCRURL, is.URL),
		validation.Field(&c.TTSURL, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	if (c.OCRURL == "") != (c.TTSURL == "") {
		return errors.New("accessory: ocr_url and tts_url must be set together")
	}
	_, err := c.VoiceConfig()
	return err
}

// Enabled reports whether read aloud can be offered.
func (c *AccessoryConfig) Enabled() bool {
	return c.OCRURL != "" && c.TTSURL != ""
}

// VoiceConfig resolves the configured voice and speaking rate.
func (c *AccessoryConfig) VoiceConfig() (accessory.VoiceConfig, error) {
	rate, err := accessory.ParseRate(c.Rate)
	if err != nil {
		return accessory.VoiceConfig{}, err
	}
	vc := accessory.VoiceConfig{Voice: accessory.Voice(c.Voice), Rate: rate}
	if vc.Voice == "" {
		vc.Voice = accessory.DefaultVoice.Voice
	}
	if err := vc.Validate(); err != nil {
		return accessory.VoiceConfig{}, fmt.Errorf("accessory: %w", err)
	}
	return vc, nil
}

func cronSchedule(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Path: "./data",
		},
		SQLite: SQLiteConfig{
			Path: "./notecanvas.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Index: IndexConfig{
			Resync:        "@every 10m",
			EventThrottle: 2 * time.Second,
		},
		Editor: EditorConfig{
			BaseURL:        "http://localhost:8080/api",
			CoalesceWindow: history.DefaultWindow,
			SwipeThreshold: surface.DefaultSwipeThreshold,
			HistoryLimit:   history.DefaultLimit,
			Autosave:       "@every 30s",
			Width:          surface.DefaultWidth,
			Height:         surface.DefaultHeight,
		},
		Accessory: AccessoryConfig{
			Voice:   string(accessory.VoiceFemale),
			Rate:    "normal",
			Timeout: 30 * time.Second,
		},
	}
}
