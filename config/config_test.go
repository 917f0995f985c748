package config

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "cotton-config")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "cotton.yaml")
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	return fs
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParseFlagsOnly(t *testing.T) {
	c, err := Parse(newFlags(), []string{"-model", "/srv/model.pb", "-mean", "127.5", "-scale", "127.5"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Model.Path != "/srv/model.pb" || c.Model.Mean != 127.5 || c.Model.Scale != 127.5 {
		t.Errorf("model config %+v", c.Model)
	}
	if c.Model.Height != 128 {
		t.Errorf("default height lost: %d", c.Model.Height)
	}
}

func TestParseFileThenFlags(t *testing.T) {
	path := writeFile(t, `
http_addr: ":9000"
model:
  path: /models/lenet
  scale: 255
  labels_path: /models/labels.txt
session:
  ttl: 2h
  max_sessions: 50
log:
  format: json
`)
	c, err := Parse(newFlags(), []string{"-config", path, "-http", ":9100"})
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPAddr != ":9100" {
		t.Errorf("flag did not override file: %s", c.HTTPAddr)
	}
	if c.Model.Path != "/models/lenet" || c.Model.Scale != 255 || c.Model.LabelsPath != "/models/labels.txt" {
		t.Errorf("file values lost: %+v", c.Model)
	}
	if c.Model.InputOp != "input" {
		t.Errorf("default input op lost: %q", c.Model.InputOp)
	}
	if c.Session.TTL != 2*time.Hour || c.Session.SweepInterval != time.Hour || c.Session.MaxSessions != 50 {
		t.Errorf("session %+v", c.Session)
	}
	if c.Log.Format != "json" {
		t.Errorf("log format %q", c.Log.Format)
	}
}

func TestParseKeepsCallerFlags(t *testing.T) {
	fs := newFlags()
	inDir := fs.String("input-dir", "/tf/images", "input dir")
	path := writeFile(t, "model:\n  path: m.pb\n")
	if _, err := Parse(fs, []string{"-config", path, "-input-dir", "/data"}); err != nil {
		t.Fatal(err)
	}
	if *inDir != "/data" {
		t.Errorf("input-dir %q", *inDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero scale", func(c *Config) { c.Model.Scale = 0 }, "scale"},
		{"no port", func(c *Config) { c.HTTPAddr = "localhost" }, "port"},
		{"bad preprocess", func(c *Config) { c.Model.Preprocess = "opencv" }, "preprocessor"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "level"},
		{"no model", func(c *Config) { c.Model.Path = "" }, "model path"},
		{"bad size", func(c *Config) { c.Model.Width = 0 }, "input size"},
		{"no sessions", func(c *Config) { c.Session.MaxSessions = 0 }, "max sessions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "model: [unclosed")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
