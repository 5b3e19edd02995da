// Package config loads gmarchive profiles: YAML files holding the same
// settings as the command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const maxPageSize = 500

type Config struct {
	CredentialsDir  string `yaml:"credentials_dir"`
	AuthFile        string `yaml:"authfile"`
	Mbox            string `yaml:"mbox"`
	Label           string `yaml:"label"`
	Query           string `yaml:"query"`
	ThreadsFile     string `yaml:"threadsfile"`
	LabelsFile      string `yaml:"labelsfile"`
	MsgDelay        Delay  `yaml:"msg_delay"`
	ThreadDelay     Delay  `yaml:"thread_delay"`
	SkipThreadDelay Delay  `yaml:"skip_thread_delay"`
	Delete          bool   `yaml:"delete"`
	NoDownload      bool   `yaml:"nodownload"`
	Verbose         bool   `yaml:"verbose"`
	RPS             int    `yaml:"rps"`
	PageSize        int    `yaml:"page_size"`
	MetricsFile     string `yaml:"metrics_file"`
}

// Defaults returns the settings used when neither a profile nor a flag sets a value.
func Defaults() Config {
	dir := ".gmarchive"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".gmarchive")
	}
	return Config{
		CredentialsDir: dir,
		RPS:            4,
		PageSize:       maxPageSize,
	}
}

// Load reads a profile on top of Defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read profile: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Mbox) == "" {
		return fmt.Errorf("%w: no mbox file given", ErrInvalid)
	}
	for name, d := range map[string]Delay{
		"msg_delay":         c.MsgDelay,
		"thread_delay":      c.ThreadDelay,
		"skip_thread_delay": c.SkipThreadDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalid, name)
		}
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return fmt.Errorf("%w: page_size must be within 1..%d", ErrInvalid, maxPageSize)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%w: rps is negative", ErrInvalid)
	}
	return nil
}

// Delay is a pause between remote accesses. It parses Go durations ("1.5s")
// and bare integers, which count seconds.
type Delay time.Duration

func ParseDelay(s string) (Delay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Delay(time.Duration(n) * time.Second), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse delay %q: %w", s, err)
	}
	return Delay(d), nil
}

func (d Delay) Duration() time.Duration { return time.Duration(d) }

func (d Delay) String() string { return time.Duration(d).String() }

// Set implements flag.Value.
func (d *Delay) Set(s string) error {
	v, err := ParseDelay(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Delay) UnmarshalYAML(node *yaml.Node) error {
	return d.Set(node.Value)
}
