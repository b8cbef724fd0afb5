package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// importMapToVsCodeConfigPaths converts top-level mappings to the
// "compilerOptions.paths" format. Prefix mappings become "*" patterns.
func importMapToVsCodeConfigPaths(importMap ImportMap) map[string][]string {
	paths := map[string][]string{}
	for _, from := range sortedKeys(importMap.Imports) {
		to := importMap.Imports[from]
		if strings.HasSuffix(from, "/") {
			from += "*"
		}
		if strings.HasSuffix(to, "/") {
			to += "*"
		}
		paths[from] = append(paths[from], to)
	}
	return paths
}

func readJsConfig(ctx context.Context, fs afs.Service, jsConfigFile string, logger *Logger) map[string]interface{} {
	exists, err := fs.Exists(ctx, jsConfigFile)
	if err != nil || !exists {
		return nil
	}
	content, err := fs.DownloadWithURL(ctx, jsConfigFile)
	if err != nil {
		logger.Debug("cannot read jsconfig.json", "file", fileDetail(jsConfigFile), "error", err)
		return nil
	}
	var jsConfig map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(content), &jsConfig); err != nil {
		logger.Debug("cannot parse jsconfig.json", "file", fileDetail(jsConfigFile), "error", err)
		return nil
	}
	return jsConfig
}

// mergeJsConfig keeps the options of current and overwrites
// "compilerOptions.paths", "baseUrl" defaults to ".".
func mergeJsConfig(current map[string]interface{}, paths map[string][]string) map[string]interface{} {
	jsConfig := map[string]interface{}{}
	for key, value := range current {
		jsConfig[key] = value
	}
	compilerOptions := map[string]interface{}{"baseUrl": "."}
	if currentOptions, ok := asObject(current["compilerOptions"]); ok {
		for key, value := range currentOptions {
			compilerOptions[key] = value
		}
	}
	compilerOptions["paths"] = paths
	jsConfig["compilerOptions"] = compilerOptions
	return jsConfig
}

// writeJsConfig updates jsconfig.json in the project directory so editors
// resolve specifiers the way importMap does.
func writeJsConfig(ctx context.Context, fs afs.Service, projectDir string, importMap ImportMap, logger *Logger) ([]byte, error) {
	jsConfigFile := projectDir + "jsconfig.json"
	jsConfig := mergeJsConfig(readJsConfig(ctx, fs, jsConfigFile, logger), importMapToVsCodeConfigPaths(importMap))
	content, err := marshalIndent(jsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "encoding jsconfig.json")
	}
	content = append(content, '\n')
	if err := fs.Upload(ctx, jsConfigFile, file.DefaultFileOsMode, bytes.NewReader(content)); err != nil {
		return nil, errors.Wrapf(err, "writing %s", fileDetail(jsConfigFile))
	}
	logger.Info("-> " + fileDetail(jsConfigFile))
	return content, nil
}
