// Package config holds the settings shared by the cotton binaries. Values
// come from defaults, then an optional YAML file, then command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	MaxConns       int    `yaml:"max_conns"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig describes the classifier artifact and the input it expects.
type ModelConfig struct {
	// Path is a SavedModel directory or a frozen GraphDef file.
	Path       string `yaml:"path"`
	Tag        string `yaml:"tag"`
	InputOp    string `yaml:"input_op"`
	OutputOp   string `yaml:"output_op"`
	LabelsPath string `yaml:"labels_path"`

	Height int `yaml:"height"`
	Width  int `yaml:"width"`

	// Each channel value v is fed to the model as (v - Mean) / Scale.
	Mean  float64 `yaml:"mean"`
	Scale float64 `yaml:"scale"`

	// Preprocess is "go" (in-process bicubic resize) or "tf" (TensorFlow
	// bilinear resize graph).
	Preprocess string `yaml:"preprocess"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxSessions caps live sessions; the least recently seen is evicted
	// to make room.
	MaxSessions int `yaml:"max_sessions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:       ":8501",
		GRPCAddr:       ":7001",
		MaxConns:       256,
		MaxUploadBytes: 32 << 20,
		Model: ModelConfig{
			Path:       "model",
			Tag:        "serve",
			InputOp:    "input",
			OutputOp:   "output",
			Height:     128,
			Width:      128,
			Mean:       0,
			Scale:      1,
			Preprocess: "go",
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SweepInterval: time.Hour,
			MaxSessions:   1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a YAML file over the defaults. Keys absent from the file
// keep their default value.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Bind registers a flag for every setting, writing into c.
func Bind(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "dashboard listen host:port")
	fs.StringVar(&c.GRPCAddr, "grpc", c.GRPCAddr, "grpc health listen host:port, empty to disable")
	fs.IntVar(&c.MaxConns, "max-conns", c.MaxConns, "max concurrent http connections")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", c.MaxUploadBytes, "max upload size in bytes")

	fs.StringVar(&c.Model.Path, "model", c.Model.Path, "SavedModel dir or frozen graph .pb")
	fs.StringVar(&c.Model.Tag, "model-tag", c.Model.Tag, "SavedModel tag")
	fs.StringVar(&c.Model.InputOp, "input-op", c.Model.InputOp, "input operation name")
	fs.StringVar(&c.Model.OutputOp, "output-op", c.Model.OutputOp, "output operation name")
	fs.StringVar(&c.Model.LabelsPath, "labels", c.Model.LabelsPath, "labels file, one per line, in model output order")
	fs.IntVar(&c.Model.Height, "input-height", c.Model.Height, "model input height")
	fs.IntVar(&c.Model.Width, "input-width", c.Model.Width, "model input width")
	fs.Float64Var(&c.Model.Mean, "mean", c.Model.Mean, "value subtracted from each channel")
	fs.Float64Var(&c.Model.Scale, "scale", c.Model.Scale, "divisor applied after mean")
	fs.StringVar(&c.Model.Preprocess, "preprocess", c.Model.Preprocess, "preprocessor: go or tf")

	fs.DurationVar(&c.Session.TTL, "session-ttl", c.Session.TTL, "drop sessions idle this long")
	fs.DurationVar(&c.Session.SweepInterval, "session-sweep", c.Session.SweepInterval, "session cleanup interval")
	fs.IntVar(&c.Session.MaxSessions, "max-sessions", c.Session.MaxSessions, "maximum live sessions")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text or json")
}

// Parse binds the config flags on fs, parses args and, when -config names a
// file, loads it and re-applies the flags given on the command line.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	var path string
	c := Default()
	fs.StringVar(&path, "config", "", "YAML config file")
	Bind(fs, c)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if path == "" {
		return c, c.Validate()
	}

	fc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	override := flag.NewFlagSet("override", flag.ContinueOnError)
	Bind(override, fc)
	fs.Visit(func(f *flag.Flag) {
		if err != nil || override.Lookup(f.Name) == nil {
			return
		}
		err = override.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return nil, err
	}
	return fc, fc.Validate()
}

func (c *Config) Validate() error {
	var problems []string
	if c.MaxConns <= 0 {
		problems = append(problems, "max-conns must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "max-upload-bytes must be positive")
	}
	if c.HTTPAddr != "" && !strings.Contains(c.HTTPAddr, ":") {
		problems = append(problems, "http requires a port number")
	}
	if c.GRPCAddr != "" && !strings.Contains(c.GRPCAddr, ":") {
		problems = append(problems, "grpc requires a port number")
	}
	if c.Model.Path == "" {
		problems = append(problems, "model path is required")
	}
	if c.Model.InputOp == "" || c.Model.OutputOp == "" {
		problems = append(problems, "input-op and output-op are required")
	}
	if c.Model.Height <= 0 || c.Model.Width <= 0 {
		problems = append(problems, "input size must be positive")
	}
	if c.Model.Scale == 0 {
		problems = append(problems, "scale must be non-zero")
	}
	switch c.Model.Preprocess {
	case "go", "tf":
	default:
		problems = append(problems, fmt.Sprintf("unknown preprocessor %q", c.Model.Preprocess))
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		problems = append(problems, "session durations must be positive")
	}
	if c.Session.MaxSessions <= 0 {
		problems = append(problems, "max sessions must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log-level: "+err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Setup applies the log settings to the standard logrus logger.
func (l LogConfig) Setup() error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
