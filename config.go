package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultReadmePath = "README.md"

// credential sources, first non-empty wins
var tokenEnvVars = []string{"PROJECTS_TOKEN", "GH_TOKEN", "GITHUB_TOKEN"}

var projectURLPattern = regexp.MustCompile(`github\.com/(users|orgs)/([^/]+)/projects/(\d+)`)

// ConfigError is a missing or invalid setting. The process exits with 2.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// FileConfig models the optional YAML config file.
type FileConfig struct {
	Owner      string  `yaml:"owner"`
	OwnerType  string  `yaml:"owner_type"`
	Number     string  `yaml:"number"`
	ProjectURL string  `yaml:"project_url"`
	Readme     string  `yaml:"readme"`
	Endpoint   string  `yaml:"endpoint"`
	Note       *string `yaml:"note"`
	Markers    struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"markers"`
	Fields    map[string][]string `yaml:"fields"`
	HistoryDB string              `yaml:"history_db"`
}

// Options holds values given on the command line. They override everything.
type Options struct {
	ConfigPath string
	Owner      string
	Number     string
	ProjectURL string
	Readme     string
	Week       string
	HistoryDB  string
}

type Config struct {
	Owner       string
	OwnerType   string
	Number      int
	ReadmePath  string
	Week        string
	Token       string
	Endpoint    string
	Note        string
	StartMarker string
	EndMarker   string
	Fields      FieldAliases
	HistoryDB   string

	rawNumber string
}

// LoadConfig merges defaults, the YAML file, the environment and opts, in
// that order of precedence. Call Validate before talking to the API.
func LoadConfig(opts Options, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	configPath := firstNonEmpty(opts.ConfigPath, getenv("COURSESYNC_CONFIG"))
	fc, err := readFileConfig(configPath, opts.ConfigPath != "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Owner:       firstNonEmpty(opts.Owner, getenv("PROJECT_OWNER"), fc.Owner),
		OwnerType:   strings.ToLower(firstNonEmpty(getenv("PROJECT_OWNER_TYPE"), fc.OwnerType)),
		ReadmePath:  firstNonEmpty(opts.Readme, getenv("README_PATH"), fc.Readme, DefaultReadmePath),
		Week:        firstNonEmpty(opts.Week, getenv("WEEK")),
		Token:       resolveToken(getenv),
		Endpoint:    firstNonEmpty(getenv("GITHUB_GRAPHQL_URL"), fc.Endpoint, DefaultEndpoint),
		Note:        DefaultNote,
		StartMarker: firstNonEmpty(fc.Markers.Start, DefaultStartMarker),
		EndMarker:   firstNonEmpty(fc.Markers.End, DefaultEndMarker),
		Fields:      DefaultFieldAliases().Merge(fc.Fields),
		HistoryDB:   firstNonEmpty(opts.HistoryDB, getenv("COURSESYNC_HISTORY_DB"), fc.HistoryDB),
	}
	if fc.Note != nil {
		cfg.Note = strings.TrimRight(*fc.Note, "\n")
	}

	number := firstNonEmpty(opts.Number, getenv("PROJECT_NUMBER"), fc.Number)

	// a project URL only fills in what was not given explicitly
	if projectURL := firstNonEmpty(opts.ProjectURL, getenv("COURSE_PROJECT_URL"), fc.ProjectURL); projectURL != "" {
		if m := projectURLPattern.FindStringSubmatch(projectURL); m != nil {
			if cfg.Owner == "" {
				cfg.Owner = m[2]
				if cfg.OwnerType == "" && m[1] == "orgs" {
					cfg.OwnerType = OwnerOrg
				}
			}
			if number == "" {
				number = m[3]
			}
		}
	}

	if cfg.OwnerType == "" {
		cfg.OwnerType = OwnerUser
	}
	if cfg.OwnerType == "organization" {
		cfg.OwnerType = OwnerOrg
	}

	cfg.rawNumber = number
	if n, err := strconv.Atoi(number); err == nil {
		cfg.Number = n
	}

	return cfg, nil
}

// Validate checks everything a sync needs to reach the board.
func (c *Config) Validate() error {
	if c.rawNumber == "" {
		return &ConfigError{Field: "PROJECT_NUMBER", Msg: "project number is required"}
	}
	n, err := strconv.Atoi(c.rawNumber)
	if err != nil || n <= 0 {
		return &ConfigError{Field: "PROJECT_NUMBER", Msg: fmt.Sprintf("must be a positive int, got %q", c.rawNumber)}
	}
	c.Number = n

	if c.Owner == "" {
		return &ConfigError{Field: "PROJECT_OWNER", Msg: "project owner is required (or set COURSE_PROJECT_URL)"}
	}
	if c.OwnerType != OwnerUser && c.OwnerType != OwnerOrg {
		return &ConfigError{Field: "PROJECT_OWNER_TYPE", Msg: fmt.Sprintf("must be %q or %q, got %q", OwnerUser, OwnerOrg, c.OwnerType)}
	}
	if c.Token == "" {
		return &ConfigError{Field: "token", Msg: "set one of " + strings.Join(tokenEnvVars, ", ")}
	}
	if c.StartMarker == c.EndMarker {
		return &ConfigError{Field: "markers", Msg: "start and end markers must differ"}
	}
	return nil
}

// a missing default config file is fine, a missing explicit one is not
func readFileConfig(path string, required bool) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return fc, nil
		}
		return fc, &ConfigError{Field: "config", Msg: err.Error()}
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, &ConfigError{Field: "config", Msg: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return fc, nil
}

func resolveToken(getenv func(string) string) string {
	for _, name := range tokenEnvVars {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
