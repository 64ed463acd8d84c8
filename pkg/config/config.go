package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"
)

// ErrFatal wraps configuration errors that must stop the process at startup.
var ErrFatal = errors.New("fatal configuration error")

// Fatalf returns an error wrapping ErrFatal.
func Fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}

// LineOffsets mirrors the inverter line offsets in the config file.
type LineOffsets struct {
	Status int `yaml:"status"`
	Power  int `yaml:"power"`
	Energy int `yaml:"energy"`
}

// PVOutput holds the PVOutput credentials from the config file.
type PVOutput struct {
	APIKey     string `yaml:"api_key"`
	SystemID   string `yaml:"system_id"`
	URL        string `yaml:"url"`
	Cumulative *bool  `yaml:"cumulative"`
}

// File is the optional YAML config file. Every value in it can be overridden
// by the matching flag.
type File struct {
	Location  string   `yaml:"location"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
	Timezone  string   `yaml:"timezone"`

	InverterIP          string       `yaml:"inverter_ip"`
	InverterStatusPath  string       `yaml:"inverter_status_path"`
	InverterLineOffsets *LineOffsets `yaml:"inverter_line_offsets"`

	PVOutput PVOutput `yaml:"pvoutput"`

	DBDir string `yaml:"db_dir"`

	RequestInterval        time.Duration `yaml:"request_interval"`
	DefaultRequestInterval time.Duration `yaml:"default_request_interval"`
}

// Configured registers the --config flag and returns the File that is loaded
// once flags are parsed. An empty path leaves the File zero.
func Configured() *File {
	path := lflag.String("config", "", "Path to a YAML config file with default settings")

	f := &File{}

	lflag.Do(func() {
		if *path == "" {
			return
		}
		loaded, err := Load(*path)
		if err != nil {
			panic(fmt.Sprintf("failed to load config file: %v", err))
		}
		*f = *loaded
	})

	return f
}

// Load reads the YAML config file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML config. Unknown keys are rejected so typos don't
// silently fall back to defaults.
func Parse(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return &f, nil
}
