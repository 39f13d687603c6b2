package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Timeouts applied when neither the file nor DBITIMEOUT sets one.
const (
	DefaultTimeout = 240 * time.Second
	GridTimeout    = 1800 * time.Second
)

// Drivers understood by the SQL backend.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// File is the YAML form of a table configuration.
type File struct {
	SchemaName                string `yaml:"schemaName"`
	TableName                 string `yaml:"tableName"`
	TableType                 string `yaml:"tableType"`
	Driver                    string `yaml:"driver"`
	DBHost                    string `yaml:"dbHost"`
	DBName                    string `yaml:"dbName"`
	DBPort                    int    `yaml:"dbPort"`
	DBUser                    string `yaml:"dbUser"`
	WebServiceURL             string `yaml:"webServiceURL"`
	QueryEngineURL            string `yaml:"queryEngineURL"`
	UnstructuredConditionsURL string `yaml:"unstructuredConditionsURL"`
	ConnectionTimeout         int    `yaml:"connectionTimeout"`
}

// Env holds the DBI* environment overrides.
type Env struct {
	Host  string `env:"DBIHOST"`
	Host2 string `env:"DBIHOST2"`
	Host3 string `env:"DBIHOST3"`
	Host4 string `env:"DBIHOST4"`
	Host5 string `env:"DBIHOST5"`
	Host6 string `env:"DBIHOST6"`
	Host7 string `env:"DBIHOST7"`
	Host8 string `env:"DBIHOST8"`
	Host9 string `env:"DBIHOST9"`

	Name         string `env:"DBINAME"`
	Port         int    `env:"DBIPORT"`
	User         string `env:"DBIUSER"`
	PwdFile      string `env:"DBIPWDFILE"`
	GridPwdFile  string `env:"DBIGRIDPWDFILE"`
	WSURL        string `env:"DBIWSURL"`
	WSURLInt     string `env:"DBIWSURLINT"`
	WSURLPut     string `env:"DBIWSURLPUT"`
	WSPwdFile    string `env:"DBIWSPWDFILE"`
	QEURL        string `env:"DBIQEURL"`
	UConDBURL    string `env:"DBIUCONDBURL"`
	UConDBURLInt string `env:"DBIUCONDBURLINT"`
	CacheDir     string `env:"DBICACHEDIR"`
	Timeout      int    `env:"DBITIMEOUT"`
	Verbosity    int    `env:"DBIVERB"`

	CondorScratchDir string `env:"_CONDOR_SCRATCH_DIR"`
}

// OnGrid reports whether the job runs on a batch worker.
func (e Env) OnGrid() bool {
	return e.CondorScratchDir != ""
}

// hosts returns DBIHOST, DBIHOST2..9 in order, skipping blanks.
func (e Env) hosts() []string {
	all := []string{e.Host, e.Host2, e.Host3, e.Host4, e.Host5, e.Host6, e.Host7, e.Host8, e.Host9}
	out := make([]string, 0, len(all))
	for _, h := range all {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Connection is a fully resolved table configuration.
type Connection struct {
	Schema string
	Table  string
	Type   string
	Driver string

	// Hosts are tried in order when connecting.
	Hosts    []string
	DBName   string
	Port     int
	User     string
	Password string

	WebServiceURL    string
	WebServicePutURL string
	WebPassword      string
	QueryEngineURL   string
	UConDBURL        string

	CacheDir  string
	Timeout   time.Duration
	Verbosity int
	OnGrid    bool
}

// QualifiedName returns "<schema>.<table>", or the bare table name.
func (c Connection) QualifiedName() string {
	if c.Schema == "" {
		return c.Table
	}
	return c.Schema + "." + c.Table
}

// LoadFile reads a YAML table configuration.
func LoadFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// ParseEnv reads the DBI* variables. A nil environment means the process
// environment.
func ParseEnv(environ map[string]string) (Env, error) {
	var e Env
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Resolve merges file values with environment overrides and reads the
// password files.
func Resolve(f File, e Env) (Connection, error) {
	c := Connection{
		Schema:    f.SchemaName,
		Table:     f.TableName,
		Type:      f.TableType,
		Driver:    f.Driver,
		DBName:    firstNonEmpty(e.Name, f.DBName),
		Port:      f.DBPort,
		User:      firstNonEmpty(e.User, f.DBUser),
		Verbosity: e.Verbosity,
		OnGrid:    e.OnGrid(),
	}
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if e.Port != 0 {
		c.Port = e.Port
	}

	hosts := e.hosts()
	if e.Host == "" && f.DBHost != "" {
		hosts = append([]string{f.DBHost}, hosts...)
	}
	c.Hosts = dedupe(hosts)

	switch {
	case e.Timeout > 0:
		c.Timeout = time.Duration(e.Timeout) * time.Second
	case f.ConnectionTimeout > 0:
		c.Timeout = time.Duration(f.ConnectionTimeout) * time.Second
	case c.OnGrid:
		c.Timeout = GridTimeout
	default:
		c.Timeout = DefaultTimeout
	}

	if c.OnGrid {
		c.WebServiceURL = firstNonEmpty(e.WSURL, e.WSURLInt, f.WebServiceURL)
		c.UConDBURL = firstNonEmpty(e.UConDBURL, e.UConDBURLInt, f.UnstructuredConditionsURL)
	} else {
		c.WebServiceURL = firstNonEmpty(e.WSURLInt, e.WSURL, f.WebServiceURL)
		c.UConDBURL = firstNonEmpty(e.UConDBURLInt, e.UConDBURL, f.UnstructuredConditionsURL)
	}
	c.WebServicePutURL = firstNonEmpty(e.WSURLPut, c.WebServiceURL)
	c.QueryEngineURL = firstNonEmpty(e.QEURL, f.QueryEngineURL)

	pwdFile := e.PwdFile
	if c.OnGrid && e.GridPwdFile != "" {
		pwdFile = e.GridPwdFile
	}
	var err error
	if c.Password, err = readPassword(pwdFile); err != nil {
		return c, fmt.Errorf("database password: %w", err)
	}
	if c.WebPassword, err = readPassword(e.WSPwdFile); err != nil {
		return c, fmt.Errorf("web service password: %w", err)
	}

	c.CacheDir = e.CacheDir
	if c.CacheDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.CacheDir = wd
		}
	}
	return c, nil
}

// Load is LoadFile (when path is non-empty), ParseEnv(nil) and Resolve.
func Load(path string) (Connection, error) {
	var f File
	if path != "" {
		var err error
		if f, err = LoadFile(path); err != nil {
			return Connection{}, err
		}
	}
	e, err := ParseEnv(nil)
	if err != nil {
		return Connection{}, err
	}
	return Resolve(f, e)
}

// ErrEmptyPassword is returned for a password file with no content.
var ErrEmptyPassword = errors.New("password file is empty")

// readPassword returns the first line of path. An empty path yields "".
func readPassword(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyPassword)
	}
	return line, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
