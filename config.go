package ember

import (
	"bytes"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/emberkit/ember/hal"
)

// WindowConfig is the initial window of applications that create one.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// Config is the renderer configuration. Zero values are not defaults; start
// from DefaultConfig or LoadConfig.
type Config struct {
	AppName string       `toml:"app_name"`
	Window  WindowConfig `toml:"window"`

	// Validation enables the validation layers and routes their messages
	// to the logger.
	Validation       bool     `toml:"validation"`
	ValidationLayers []string `toml:"validation_layers"`

	InstanceExtensions []string `toml:"instance_extensions"`
	DeviceExtensions   []string `toml:"device_extensions"`

	MaxFramesInFlight int `toml:"max_frames_in_flight"`
	// PresentMode is one of mailbox, fifo, fifo_relaxed or immediate. FIFO
	// is used when the preferred mode is not offered.
	PresentMode string     `toml:"present_mode"`
	ClearColor  [4]float32 `toml:"clear_color"`
	// MaxMaterials bounds the number of live materials.
	MaxMaterials int `toml:"max_materials"`

	// Debug turns on fence and descriptor invariant checks.
	Debug    bool   `toml:"debug"`
	LogLevel string `toml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		AppName: "ember",
		Window: WindowConfig{
			Title:  "ember",
			Width:  800,
			Height: 600,
		},
		Validation:        false,
		ValidationLayers:  []string{hal.LayerValidation},
		MaxFramesInFlight: 2,
		PresentMode:       "mailbox",
		ClearColor:        [4]float32{0, 0, 0, 1},
		MaxMaterials:      64,
		LogLevel:          "info",
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are an
// error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes TOML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxFramesInFlight < 1 || c.MaxFramesInFlight > 8 {
		return errors.Newf("max_frames_in_flight %d out of range 1..8", c.MaxFramesInFlight)
	}
	if c.MaxMaterials < 1 {
		return errors.Newf("max_materials %d must be positive", c.MaxMaterials)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return errors.Newf("window size %dx%d is negative", c.Window.Width, c.Window.Height)
	}
	if _, err := ParsePresentMode(c.PresentMode); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for i, v := range c.ClearColor {
		if v < 0 || v > 1 {
			return errors.Newf("clear_color[%d] = %g outside 0..1", i, v)
		}
	}
	return nil
}

// Level parses LogLevel. Empty means info.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return l, nil
}

var presentModes = map[string]hal.PresentMode{
	"immediate":    hal.PresentModeImmediate,
	"mailbox":      hal.PresentModeMailbox,
	"fifo":         hal.PresentModeFIFO,
	"fifo_relaxed": hal.PresentModeFIFORelaxed,
}

// ParsePresentMode maps a configuration name to a present mode. Empty
// means mailbox.
func ParsePresentMode(s string) (hal.PresentMode, error) {
	if s == "" {
		return hal.PresentModeMailbox, nil
	}
	m, ok := presentModes[strings.ToLower(s)]
	if !ok {
		return 0, errors.Newf("unknown present mode %q", s)
	}
	return m, nil
}
