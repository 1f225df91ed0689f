/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config defines the asset groups and build settings, with defaults
// that can be overridden from an assetpipe config file, the environment or
// command line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"bennypowers.dev/assetpipe/pipeline"
)

// Group names.
const (
	Pug     = "pug"
	HTML    = "html"
	Styles  = "styles"
	Scripts = "scripts"
	Images  = "images"
)

// GroupNames lists the asset groups in task order.
var GroupNames = []string{Pug, HTML, Styles, Scripts, Images}

// AssetGroup is a named source glob and its output directory.
type AssetGroup struct {
	Name string `mapstructure:"-"`
	Src  string `mapstructure:"src"`
	Dest string `mapstructure:"dest"`
}

type CleanConfig struct {
	Dir  string   `mapstructure:"dir"`
	Keep []string `mapstructure:"keep"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Root is the directory served, relative to the project root.
	Root string `mapstructure:"root"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type ImagesConfig struct {
	Jobs int `mapstructure:"jobs"`
}

type StylesConfig struct {
	// Compiler is auto, lessc or native.
	Compiler string `mapstructure:"compiler"`
}

// Config is the complete build configuration. It is fixed for the life of
// the process.
type Config struct {
	// Root is the project directory every relative path is resolved from.
	Root    string                `mapstructure:"root"`
	Groups  map[string]AssetGroup `mapstructure:"groups"`
	Clean   CleanConfig           `mapstructure:"clean"`
	Server  ServerConfig          `mapstructure:"server"`
	Watch   WatchConfig           `mapstructure:"watch"`
	Images  ImagesConfig          `mapstructure:"images"`
	Styles  StylesConfig          `mapstructure:"styles"`
	Targets []string              `mapstructure:"targets"`
}

var defaultGroups = map[string]AssetGroup{
	Pug:     {Src: "./*.pug", Dest: "dist/"},
	HTML:    {Src: "./*.html", Dest: "dist/"},
	Styles:  {Src: "src/styles/**/*.less", Dest: "dist/css"},
	Scripts: {Src: "src/scripts/**/*.js", Dest: "dist/js"},
	Images:  {Src: "src/img/**/*", Dest: "dist/images"},
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Root:   ".",
		Groups: make(map[string]AssetGroup, len(defaultGroups)),
		Clean:  CleanConfig{Dir: "dist", Keep: []string{"img"}},
		Server: ServerConfig{Host: "localhost", Port: 3000, Root: "."},
		Watch:  WatchConfig{Debounce: 100 * time.Millisecond},
		Images: ImagesConfig{Jobs: runtime.NumCPU()},
		Styles: StylesConfig{Compiler: "auto"},
	}
	for name, g := range defaultGroups {
		g.Name = name
		cfg.Groups[name] = g
	}
	return cfg
}

// SetDefaults registers every default on v, one leaf key at a time so that
// a config file may override a single field of a group.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("root", d.Root)
	for name, g := range d.Groups {
		v.SetDefault("groups."+name+".src", g.Src)
		v.SetDefault("groups."+name+".dest", g.Dest)
	}
	v.SetDefault("clean.dir", d.Clean.Dir)
	v.SetDefault("clean.keep", d.Clean.Keep)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.root", d.Server.Root)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("images.jobs", d.Images.Jobs)
	v.SetDefault("styles.compiler", d.Styles.Compiler)
	v.SetDefault("targets", []string{})
}

// Load reads the configuration from v. Unless v already names a config
// file, an optional assetpipe.{yaml,json,toml} in the project root is
// merged in. The returned Root is absolute.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("ASSETPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("assetpipe")
		v.AddConfigPath(v.GetString("root"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &pipeline.ConfigurationError{Field: "config", Value: v.ConfigFileUsed(), Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &pipeline.ConfigurationError{Field: "config", Err: err}
	}
	for name, g := range cfg.Groups {
		g.Name = name
		cfg.Groups[name] = g
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, &pipeline.ConfigurationError{Field: "root", Value: cfg.Root, Err: err}
	}
	cfg.Root = root
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Group returns the named asset group.
func (c *Config) Group(name string) (AssetGroup, bool) {
	g, ok := c.Groups[name]
	return g, ok
}

// Path resolves p against the project root.
func (c *Config) Path(p string) string {
	return pipeline.Resolve(c.Root, p)
}

// Outputs lists every group's destination directory, relative to Root.
func (c *Config) Outputs() []string {
	var out []string
	for _, name := range GroupNames {
		if g, ok := c.Groups[name]; ok {
			out = append(out, filepath.Clean(g.Dest))
		}
	}
	return out
}

// Validate checks every pattern and destination. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range GroupNames {
		g, ok := c.Groups[name]
		if !ok {
			errs = append(errs, &pipeline.ConfigurationError{Field: "groups." + name, Err: errors.New("missing group")})
			continue
		}
		if g.Src == "" {
			errs = append(errs, &pipeline.ConfigurationError{Field: "groups." + name + ".src", Err: errors.New("empty pattern")})
		} else if !doublestar.ValidatePattern(filepath.ToSlash(g.Src)) {
			errs = append(errs, &pipeline.ConfigurationError{Field: "groups." + name + ".src", Value: g.Src, Err: doublestar.ErrBadPattern})
		}
		if g.Dest == "" {
			errs = append(errs, &pipeline.ConfigurationError{Field: "groups." + name + ".dest", Err: errors.New("empty destination")})
		}
	}
	if c.Clean.Dir == "" {
		errs = append(errs, &pipeline.ConfigurationError{Field: "clean.dir", Err: errors.New("empty directory")})
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, &pipeline.ConfigurationError{Field: "server.port", Value: fmt.Sprint(c.Server.Port), Err: errors.New("out of range")})
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, &pipeline.ConfigurationError{Field: "watch.debounce", Value: c.Watch.Debounce.String(), Err: errors.New("negative duration")})
	}
	if !slices.Contains([]string{"auto", "lessc", "native"}, c.Styles.Compiler) {
		errs = append(errs, &pipeline.ConfigurationError{Field: "styles.compiler", Value: c.Styles.Compiler, Err: errors.New("must be auto, lessc or native")})
	}
	return errors.Join(errs...)
}
