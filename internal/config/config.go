/*
 * config.go, part of semifit.
 *
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 *
 * Gochem is developed at the laboratory for instruction in Swedish, Department of Chemistry,
 * University of Helsinki, Finland.
 *
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

//Package config reads the configuration of the semifit commands from a YAML file, SEMIFIT_*
//environment variables and command-line flags, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rmera/semifit"
)

//EnvPrefix is the prefix of the environment variables read. The variable for a key is the
//prefix plus the key in upper case with dots replaced by underscores, e.g. SEMIFIT_DATA_FILE.
const EnvPrefix = "SEMIFIT"

//Config is the complete configuration of a run.
type Config struct {
	Binary           string        `mapstructure:"binary"`
	Method           string        `mapstructure:"method"`
	Workers          int           `mapstructure:"workers"`
	Scratch          string        `mapstructure:"scratch"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Penalty          float64       `mapstructure:"penalty"`
	GradientStep     float64       `mapstructure:"gradient_step"`
	ParallelGradient bool          `mapstructure:"parallel_gradient"`
	Data             Data          `mapstructure:"data"`
	Parameters       Parameters    `mapstructure:"parameters"`
	Minimize         Minimize      `mapstructure:"minimize"`
	Sample           Sample        `mapstructure:"sample"`
	CV               CV            `mapstructure:"cv"`
	Diagnostics      Diagnostics   `mapstructure:"diagnostics"`
	Log              Log           `mapstructure:"log"`
}

//Data selects the reference data.
type Data struct {
	File            string `mapstructure:"file"`
	XYZDir          string `mapstructure:"xyz_dir"`
	Offset          int    `mapstructure:"offset"`
	Size            int    `mapstructure:"size"`
	ReferenceColumn string `mapstructure:"reference_column"`
	CacheDir        string `mapstructure:"cache_dir"` //empty disables the cache
}

//Parameters names the parameter files.
type Parameters struct {
	Start  string   `mapstructure:"start"`
	Output string   `mapstructure:"output"`
	Scales string   `mapstructure:"scales"` //empty means the default scales
	Ignore []string `mapstructure:"ignore"`
}

//Minimize configures L-BFGS.
type Minimize struct {
	MaxIter int       `mapstructure:"max_iter"`
	Lower   []float64 `mapstructure:"lower"`
	Upper   []float64 `mapstructure:"upper"`
}

//Sample configures NUTS.
type Sample struct {
	Results      int     `mapstructure:"results"`
	Burnin       int     `mapstructure:"burnin"`
	Adaptation   int     `mapstructure:"adaptation"`
	StepSize     float64 `mapstructure:"step_size"`
	TargetAccept float64 `mapstructure:"target_accept"`
	MaxDepth     int     `mapstructure:"max_depth"`
	Seed         uint64  `mapstructure:"seed"`
	InitStddev   float64 `mapstructure:"init_stddev"`
	GradientStep float64 `mapstructure:"gradient_step"`
	Output       string  `mapstructure:"output"`
}

//CV configures cross-validation.
type CV struct {
	Folds int    `mapstructure:"folds"`
	Seed  uint64 `mapstructure:"seed"`
}

//Diagnostics configures where diagnostics go.
type Diagnostics struct {
	Dir         string `mapstructure:"dir"`
	MetricsAddr string `mapstructure:"metrics_addr"` //empty disables the metrics endpoint
	Plot        bool   `mapstructure:"plot"`
	Compress    bool   `mapstructure:"compress"`
}

//Log configures the logger.
type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

//SetDefaults sets the default value of every key in v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("binary", "mndo")
	v.SetDefault("method", "PM3")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("scratch", os.TempDir())
	v.SetDefault("timeout", 10*time.Minute)
	v.SetDefault("penalty", 700.0)
	v.SetDefault("gradient_step", 1e-6)
	v.SetDefault("parallel_gradient", true)

	v.SetDefault("data.file", "data/qm9-reference.csv")
	v.SetDefault("data.xyz_dir", "data/xyz")
	v.SetDefault("data.offset", 110)
	v.SetDefault("data.size", 100)
	v.SetDefault("data.reference_column", "")
	v.SetDefault("data.cache_dir", ".semifit-cache")

	v.SetDefault("parameters.start", "parameters/parameters-pm3.json")
	v.SetDefault("parameters.output", "parameters/parameters-opt.json")
	v.SetDefault("parameters.scales", "")
	ignore := make([]string, len(semifit.DefaultIgnore))
	for i, p := range semifit.DefaultIgnore {
		ignore[i] = p.String()
	}
	v.SetDefault("parameters.ignore", ignore)

	v.SetDefault("minimize.max_iter", 1000)

	v.SetDefault("sample.results", 100)
	v.SetDefault("sample.burnin", 0)
	v.SetDefault("sample.adaptation", 100)
	v.SetDefault("sample.step_size", 1e-3)
	v.SetDefault("sample.target_accept", 0.75)
	v.SetDefault("sample.max_depth", 10)
	v.SetDefault("sample.seed", 42)
	v.SetDefault("sample.init_stddev", 0.5)
	v.SetDefault("sample.gradient_step", 1e-5)
	v.SetDefault("sample.output", "parameters/parameters-opt-hmc.json")

	v.SetDefault("cv.folds", 5)
	v.SetDefault("cv.seed", 42)

	v.SetDefault("diagnostics.dir", "runs")
	v.SetDefault("diagnostics.metrics_addr", "")
	v.SetDefault("diagnostics.plot", true)
	v.SetDefault("diagnostics.compress", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

//flagKeys maps the names of the command-line flags to configuration keys.
var flagKeys = map[string]string{
	"binary":            "binary",
	"method":            "method",
	"workers":           "workers",
	"scratch":           "scratch",
	"timeout":           "timeout",
	"penalty":           "penalty",
	"gradient-step":     "gradient_step",
	"parallel-gradient": "parallel_gradient",
	"data":              "data.file",
	"xyz-dir":           "data.xyz_dir",
	"offset":            "data.offset",
	"size":              "data.size",
	"reference-column":  "data.reference_column",
	"cache-dir":         "data.cache_dir",
	"parameters":        "parameters.start",
	"output":            "parameters.output",
	"scales":            "parameters.scales",
	"ignore":            "parameters.ignore",
	"max-iter":          "minimize.max_iter",
	"results":           "sample.results",
	"burnin":            "sample.burnin",
	"adaptation":        "sample.adaptation",
	"step-size":         "sample.step_size",
	"seed":              "sample.seed",
	"chain-output":      "sample.output",
	"folds":             "cv.folds",
	"diagnostics-dir":   "diagnostics.dir",
	"metrics-addr":      "diagnostics.metrics_addr",
	"plot":              "diagnostics.plot",
	"log-level":         "log.level",
	"log-json":          "log.json",
}

//AddFlags defines in fs the flags that override configuration keys. Flags left unset
//don't override anything.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("binary", "mndo", "oracle program")
	fs.String("method", "PM3", "semi-empirical method")
	fs.Int("workers", runtime.NumCPU(), "number of concurrent oracle runs")
	fs.String("scratch", os.TempDir(), "directory for the worker scratch directories")
	fs.Duration("timeout", 10*time.Minute, "time limit for each oracle run")
	fs.Float64("penalty", 700, "error assigned to molecules the oracle fails on")
	fs.Float64("gradient-step", 1e-6, "finite-difference step")
	fs.Bool("parallel-gradient", true, "evaluate all gradient components in one parallel batch")
	fs.String("data", "data/qm9-reference.csv", "reference CSV file")
	fs.String("xyz-dir", "data/xyz", "directory with the XYZ structures")
	fs.Int("offset", 110, "first row of the reference file to use")
	fs.Int("size", 100, "number of rows of the reference file to use")
	fs.String("reference-column", "", "column with the reference energies (default: the second one)")
	fs.String("cache-dir", ".semifit-cache", "dataset cache directory (empty disables the cache)")
	fs.StringP("parameters", "p", "parameters/parameters-pm3.json", "start parameters")
	fs.StringP("output", "o", "parameters/parameters-opt.json", "file for the fitted parameters")
	fs.String("scales", "", "JSON file with the scale and offset of each parameter")
	fs.StringSlice("ignore", nil, "parameters that are not fitted")
	fs.Int("max-iter", 1000, "maximum number of L-BFGS iterations")
	fs.Int("results", 100, "number of samples")
	fs.Int("burnin", 0, "number of samples discarded")
	fs.Int("adaptation", 100, "number of step-size adaptation steps")
	fs.Float64("step-size", 1e-3, "initial sampler step size")
	fs.Uint64("seed", 42, "sampler seed")
	fs.String("chain-output", "parameters/parameters-opt-hmc.json", "file for the sampled chain")
	fs.Int("folds", 5, "number of cross-validation folds")
	fs.String("diagnostics-dir", "runs", "directory for the diagnostics of each run")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090")
	fs.Bool("plot", true, "plot sampled chains")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-json", false, "log in JSON")
}

//Load reads the configuration: defaults, then the YAML file path (if not empty), then the
//environment, then the flags in fs that were set (fs can be nil). The result is validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if fs != nil {
		var err error
		fs.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || err != nil {
				return
			}
			err = v.BindPFlag(key, f)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//IgnoredProperties returns the parameters that are not fitted.
func (C *Config) IgnoredProperties() ([]semifit.Property, error) {
	return semifit.ParseProperties(C.Parameters.Ignore)
}

//Validate checks that every value makes sense.
func (C *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(C.Log.Level)] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", C.Log.Level)
	}
	if C.Binary == "" {
		return errors.New("binary cannot be empty")
	}
	if C.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", C.Workers)
	}
	if C.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", C.Timeout)
	}
	if C.Penalty < 0 || math.IsNaN(C.Penalty) {
		return fmt.Errorf("penalty must be a non-negative number, got %g", C.Penalty)
	}
	if C.GradientStep <= 0 {
		return fmt.Errorf("gradient_step must be positive, got %g", C.GradientStep)
	}
	if err := C.Data.validate(); err != nil {
		return fmt.Errorf("data validation failed: %w", err)
	}
	if C.Parameters.Start == "" {
		return errors.New("parameters.start cannot be empty")
	}
	if _, err := C.IgnoredProperties(); err != nil {
		return fmt.Errorf("parameters.ignore: %w", err)
	}
	if C.Minimize.MaxIter < 1 {
		return fmt.Errorf("minimize.max_iter must be positive, got %d", C.Minimize.MaxIter)
	}
	if l, u := C.Minimize.Lower, C.Minimize.Upper; l != nil && u != nil {
		if len(l) != len(u) {
			return fmt.Errorf("minimize: %d lower bounds but %d upper bounds", len(l), len(u))
		}
		for i := range l {
			if l[i] > u[i] {
				return fmt.Errorf("minimize: lower bound %g above upper bound %g at position %d", l[i], u[i], i)
			}
		}
	}
	if err := C.Sample.validate(); err != nil {
		return fmt.Errorf("sample validation failed: %w", err)
	}
	if C.CV.Folds < 2 {
		return fmt.Errorf("cv.folds must be at least 2, got %d", C.CV.Folds)
	}
	return nil
}

func (D *Data) validate() error {
	if D.File == "" {
		return errors.New("file cannot be empty")
	}
	if D.Offset < 0 {
		return fmt.Errorf("offset cannot be negative, got %d", D.Offset)
	}
	if D.Size < 0 {
		return fmt.Errorf("size cannot be negative, got %d", D.Size)
	}
	return nil
}

func (S *Sample) validate() error {
	if S.Results < 1 {
		return fmt.Errorf("results must be positive, got %d", S.Results)
	}
	if S.Burnin < 0 || S.Adaptation < 0 {
		return fmt.Errorf("burnin and adaptation cannot be negative, got %d and %d", S.Burnin, S.Adaptation)
	}
	if S.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %g", S.StepSize)
	}
	if S.TargetAccept <= 0 || S.TargetAccept >= 1 {
		return fmt.Errorf("target_accept must be between 0 and 1, got %g", S.TargetAccept)
	}
	if S.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be positive, got %d", S.MaxDepth)
	}
	if S.InitStddev < 0 {
		return fmt.Errorf("init_stddev cannot be negative, got %g", S.InitStddev)
	}
	if S.GradientStep <= 0 {
		return fmt.Errorf("gradient_step must be positive, got %g", S.GradientStep)
	}
	return nil
}
