package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

const defaultImportMapFile = "project.importmap"

var (
	currentDir, _ = os.Getwd()
	rootCmd       = &cobra.Command{
		Use:   "importmap-node-module",
		Short: "Generate import maps from node_modules and project files",
		Long: `Generate import maps for a Node.js project by replicating node module resolution:
package.json "exports", "imports" and "main" fields, nested node_modules and
the import specifiers found in project source files.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

var docsCmd = &cobra.Command{
	Use:   "doc-gen",
	Short: "Generate CLI documentation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doc.GenMarkdownTree(rootCmd, "./docs")
	},
}

// ---------------- generate ----------------

type generateFlags struct {
	cwd           string
	configPath    string
	out           string
	runtime       string
	conditions    []string
	dev           bool
	entryPoints   []string
	removeUnused  bool
	ignoreJsFiles bool
	jsconfig      bool
	logLevel      string
	dryRun        bool
}

func newGenerateCmd() *cobra.Command {
	flags := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the import map files of a project",
		Long: `Write the import map files of a project.
Import map files come from importmap.config.json (or .jsonc, .yaml, .yml) in the
project directory. Without config file a single import map is generated at --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.cwd, "cwd", "c", currentDir,
		"Project directory, the one holding package.json")
	cmd.Flags().StringVar(&flags.configPath, "config", "",
		"Config file (default: importmap.config.* in the project directory)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "",
		"Import map file to generate, relative to the project directory (default: "+defaultImportMapFile+" without config)")
	cmd.Flags().StringVar(&flags.runtime, "runtime", "",
		"Runtime condition: browser or node (default: browser)")
	cmd.Flags().StringArrayVar(&flags.conditions, "condition", []string{},
		"Extra package condition, repeatable")
	cmd.Flags().BoolVar(&flags.dev, "dev", false,
		"Include devDependencies and prefer the development condition")
	cmd.Flags().StringSliceVarP(&flags.entryPoints, "entry-point", "p", []string{},
		"Entry point file(s) scanned for import specifiers (default: package.json entry)")
	cmd.Flags().BoolVar(&flags.removeUnused, "remove-unused", false,
		"Keep only mappings used by the project files")
	cmd.Flags().BoolVar(&flags.ignoreJsFiles, "ignore-js-files", false,
		"Do not scan project files for import specifiers")
	cmd.Flags().BoolVar(&flags.jsconfig, "jsconfig", false,
		"Update jsconfig.json paths with the generated import map")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "",
		"Log level: debug, info, warn, error or off (default: info)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"Print import maps instead of writing them")
	return cmd
}

func loadGenerateConfig(flags *generateFlags, projectDir string) (*Config, error) {
	configPath := flags.configPath
	if configPath != "" && !filepath.IsAbs(configPath) {
		configPath = filepath.Join(DenormalizePathForOS(projectDir), configPath)
	}
	if configPath == "" {
		found, ok := FindConfigFile(DenormalizePathForOS(projectDir))
		if !ok {
			return &Config{ImportMapFiles: map[string]*ImportMapFileConfig{}}, nil
		}
		configPath = found
	}
	return LoadConfig(configPath)
}

// applyGenerateFlags narrows the config to --out and applies the flags
// given explicitly to every import map file left.
func applyGenerateFlags(cmd *cobra.Command, flags *generateFlags, config *Config) {
	if flags.out != "" {
		fileConfig, ok := config.ImportMapFiles[flags.out]
		if !ok {
			fileConfig = &ImportMapFileConfig{MappingsForNodeResolution: true}
		}
		config.ImportMapFiles = map[string]*ImportMapFileConfig{flags.out: fileConfig}
	} else if len(config.ImportMapFiles) == 0 {
		config.ImportMapFiles = map[string]*ImportMapFileConfig{
			defaultImportMapFile: {MappingsForNodeResolution: true},
		}
	}
	if cmd.Flags().Changed("log-level") {
		config.LogLevel = flags.logLevel
	}

	changed := cmd.Flags().Changed
	for _, fileConfig := range config.ImportMapFiles {
		if changed("runtime") {
			fileConfig.Runtime = flags.runtime
		}
		if changed("condition") {
			fileConfig.PackageUserConditions = append(fileConfig.PackageUserConditions, flags.conditions...)
		}
		if changed("dev") {
			dev := flags.dev
			fileConfig.Dev = &dev
			fileConfig.MappingsForDevDependencies = dev
		}
		if changed("entry-point") {
			fileConfig.EntryPoints = flags.entryPoints
		}
		if changed("remove-unused") {
			fileConfig.RemoveUnusedMappings = flags.removeUnused
		}
		if changed("ignore-js-files") {
			fileConfig.IgnoreJsFiles = flags.ignoreJsFiles
		}
		if changed("jsconfig") {
			fileConfig.UseForJsConfigJSON = flags.jsconfig
		}
	}
}

func runGenerate(cmd *cobra.Command, flags *generateFlags) error {
	projectDir := ResolveAbsoluteCwd(flags.cwd)
	config, err := loadGenerateConfig(flags, projectDir)
	if err != nil {
		return err
	}
	if config.ProjectDirectory != "" && !cmd.Flags().Changed("cwd") {
		projectDir = StandardiseDirPath(filepath.Join(DenormalizePathForOS(projectDir), config.ProjectDirectory))
	}
	applyGenerateFlags(cmd, flags, config)
	config.ApplyEnvironment(LoadEnvironment(projectDir))
	if err := config.Validate(); err != nil {
		return err
	}

	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}
	logger := NewLogger(level, cmd.ErrOrStderr())

	importMaps, err := WriteImportMapFiles(cmd.Context(), WriteImportMapFilesOptions{
		ProjectDir:                projectDir,
		ImportMapFiles:            config.ImportMapFiles,
		PackagesManualOverrides:   config.PackagesManualOverrides,
		ExportsFieldWarningConfig: config.ExportsFieldWarningConfig,
		BrowserFieldWarning:       Severity(config.BrowserFieldWarning),
		WriteFiles:                !flags.dryRun,
	}, logger)
	if err != nil {
		return err
	}
	if !flags.dryRun {
		return nil
	}

	out := cmd.OutOrStdout()
	for _, file := range sortedKeys(importMaps) {
		content, err := importMaps[file].Bytes()
		if err != nil {
			return err
		}
		if len(importMaps) > 1 {
			fmt.Fprintf(out, "%s:\n", file)
		}
		if _, err := out.Write(content); err != nil {
			return errors.Wrap(err, "printing import map")
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newGenerateCmd(), docsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
