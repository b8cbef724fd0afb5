package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ImportMapFileConfig describes how one import map file is generated.
type ImportMapFileConfig struct {
	InitialImportMap           *ImportMap `json:"initialImportMap,omitempty" yaml:"initialImportMap,omitempty"`
	MappingsForNodeResolution  bool       `json:"mappingsForNodeResolution" yaml:"mappingsForNodeResolution"`
	MappingsForDevDependencies bool       `json:"mappingsForDevDependencies" yaml:"mappingsForDevDependencies"`
	PackageUserConditions      []string   `json:"packageUserConditions,omitempty" yaml:"packageUserConditions,omitempty" validate:"dive,required"`
	PackageIncludedPatterns    []string   `json:"packageIncludedPatterns,omitempty" yaml:"packageIncludedPatterns,omitempty" validate:"dive,required"`
	PackageExcludedPatterns    []string   `json:"packageExcludedPatterns,omitempty" yaml:"packageExcludedPatterns,omitempty" validate:"dive,required"`
	Runtime                    string     `json:"runtime,omitempty" yaml:"runtime,omitempty" validate:"omitempty,oneof=browser node"`
	ModuleFormat               string     `json:"moduleFormat,omitempty" yaml:"moduleFormat,omitempty" validate:"omitempty,oneof=esm cjs"`
	// Dev adds the "development" condition when true and "production" when
	// false. Unset means NODE_ENV decides.
	Dev                      *bool    `json:"dev,omitempty" yaml:"dev,omitempty"`
	EntryPoints              []string `json:"entryPoints,omitempty" yaml:"entryPoints,omitempty" validate:"dive,required"`
	IgnoreJsFiles            bool     `json:"ignoreJsFiles" yaml:"ignoreJsFiles"`
	RemoveUnusedMappings     bool     `json:"removeUnusedMappings" yaml:"removeUnusedMappings"`
	BareSpecifierAutomapping bool     `json:"bareSpecifierAutomapping" yaml:"bareSpecifierAutomapping"`
	ExtensionlessAutomapping bool     `json:"extensionlessAutomapping" yaml:"extensionlessAutomapping"`
	MagicExtensions          []string `json:"magicExtensions,omitempty" yaml:"magicExtensions,omitempty" validate:"dive,startswith=."`
	UseForJsConfigJSON       bool     `json:"useForJsConfigJSON" yaml:"useForJsConfigJSON"`
}

func (c *ImportMapFileConfig) runtime() string {
	if c.Runtime == "" {
		return "browser"
	}
	return c.Runtime
}

func (c *ImportMapFileConfig) moduleFormat() string {
	if c.ModuleFormat == "" {
		return "esm"
	}
	return c.ModuleFormat
}

type Config struct {
	ProjectDirectory          string                          `json:"projectDirectory,omitempty" yaml:"projectDirectory,omitempty"`
	LogLevel                  string                          `json:"logLevel,omitempty" yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error off"`
	ImportMapFiles            map[string]*ImportMapFileConfig `json:"importMapFiles" yaml:"importMapFiles" validate:"required,min=1,dive,keys,required,endkeys,required"`
	PackagesManualOverrides   PackageManualOverrides          `json:"packagesManualOverrides,omitempty" yaml:"packagesManualOverrides,omitempty"`
	ExportsFieldWarningConfig ExportsFieldWarningConfig       `json:"exportsFieldWarningConfig" yaml:"exportsFieldWarningConfig"`
	BrowserFieldWarning       string                          `json:"browserFieldWarning,omitempty" yaml:"browserFieldWarning,omitempty" validate:"omitempty,oneof=warn debug"`
}

var configFileNames = []string{
	"importmap.config.json",
	"importmap.config.jsonc",
	"importmap.config.yaml",
	"importmap.config.yml",
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// FindConfigFile returns the first config file present in dir.
func FindConfigFile(dir string) (string, bool) {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// LoadConfig loads the configuration from configPath.
// configPath can be a specific file or a directory holding one of the
// importmap.config.* files.
func LoadConfig(configPath string) (*Config, error) {
	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	actualPath := configPath
	if fileInfo.IsDir() {
		found, ok := FindConfigFile(configPath)
		if !ok {
			return nil, errors.Errorf("no config file found in %s (tried %s)", configPath, strings.Join(configFileNames, ", "))
		}
		actualPath = found
	}

	content, err := os.ReadFile(actualPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	config, err := ParseConfig(content, filepath.Ext(actualPath))
	if err != nil {
		return nil, errors.WithMessage(err, actualPath)
	}
	return config, nil
}

// ParseConfig decodes content, ext selects YAML (".yaml", ".yml") or JSON
// with comments.
func ParseConfig(content []byte, ext string) (*Config, error) {
	config := &Config{}
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, config); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(content), config); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	}
	return config, nil
}

// Validate reports the first invalid fields of the config.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return c.validatePatterns()
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Wrap(err, "invalid config")
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, validationMessage(fieldError))
	}
	return errors.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func validationMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fieldError.Namespace(), fieldError.Param(), fieldError.Value())
	case "min":
		return fmt.Sprintf("%s must not be empty", fieldError.Namespace())
	case "startswith":
		return fmt.Sprintf("%s must start with %q, got %q", fieldError.Namespace(), fieldError.Param(), fieldError.Value())
	}
	return fmt.Sprintf("%s is %s", fieldError.Namespace(), fieldError.Tag())
}

func (c *Config) validatePatterns() error {
	for _, file := range sortedKeys(c.ImportMapFiles) {
		fileConfig := c.ImportMapFiles[file]
		if _, err := createPackageIncludedPredicate(fileConfig.PackageIncludedPatterns, fileConfig.PackageExcludedPatterns); err != nil {
			return errors.WithMessagef(err, "importMapFiles[%q]", file)
		}
	}
	return nil
}

// Environment holds the variables read from the process and the project .env
// file, process variables win.
type Environment map[string]string

func LoadEnvironment(projectDir string) Environment {
	env := Environment{}
	if values, err := godotenv.Read(filepath.Join(DenormalizePathForOS(projectDir), ".env")); err == nil {
		for key, value := range values {
			env[key] = value
		}
	}
	for _, key := range []string{"NODE_ENV", "IMPORTMAP_LOG_LEVEL"} {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}
	return env
}

// ApplyEnvironment fills what the config leaves unset: dev from NODE_ENV and
// the log level from IMPORTMAP_LOG_LEVEL.
func (c *Config) ApplyEnvironment(env Environment) {
	if level := env["IMPORTMAP_LOG_LEVEL"]; level != "" && c.LogLevel == "" {
		c.LogLevel = level
	}
	var dev *bool
	switch env["NODE_ENV"] {
	case "development":
		value := true
		dev = &value
	case "production":
		value := false
		dev = &value
	}
	if dev == nil {
		return
	}
	for _, fileConfig := range c.ImportMapFiles {
		if fileConfig.Dev == nil {
			fileConfig.Dev = dev
		}
	}
}
