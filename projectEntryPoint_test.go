package main

import (
	"testing"
)

func TestResolveProjectEntryPoint(t *testing.T) {
	conditions := ConditionSet{"import", "browser", "default"}

	cases := []struct {
		name     string
		files    map[string]string
		expected string
		failure  WarningCode
	}{
		{
			name: "should use the main field",
			files: map[string]string{
				"package.json": `{"name": "app", "main": "src/main.js"}`,
				"src/main.js":  "",
			},
			expected: "./src/main.js",
		},
		{
			name: "should default to index with magic extension",
			files: map[string]string{
				"package.json": `{"name": "app"}`,
				"index.js":     "",
			},
			expected: "./index.js",
		},
		{
			name: "should use the string exports field",
			files: map[string]string{
				"package.json": `{"name": "app", "exports": "./dist/app.js", "main": "ignored.js"}`,
				"dist/app.js":  "",
			},
			expected: "./dist/app.js",
		},
		{
			name: "should use the dot key of conditional exports",
			files: map[string]string{
				"package.json": `{"name": "app", "exports": {".": {"node": "./node.js", "browser": "./browser.js"}, "./feature": "./feature.js"}}`,
				"browser.js":   "",
				"node.js":      "",
				"feature.js":   "",
			},
			expected: "./browser.js",
		},
		{
			name: "should fail when exports is false",
			files: map[string]string{
				"package.json": `{"name": "app", "exports": false}`,
			},
			failure: ProjectEntryPointResolutionFailed,
		},
		{
			name: "should fail when exports has no dot key",
			files: map[string]string{
				"package.json": `{"name": "app", "exports": {"./feature": "./feature.js"}}`,
				"feature.js":   "",
			},
			failure: ProjectEntryPointResolutionFailed,
		},
		{
			name: "should fail when the exported file does not exist",
			files: map[string]string{
				"package.json": `{"name": "app", "exports": "./missing.js"}`,
			},
			failure: ProjectEntryPointResolutionFailed,
		},
		{
			name: "should fail when main is an empty string",
			files: map[string]string{
				"package.json": `{"name": "app", "main": ""}`,
			},
			failure: ProjectEntryPointResolutionFailed,
		},
		{
			name: "should fail when main file does not exist",
			files: map[string]string{
				"package.json": `{"name": "app", "main": "nope.js"}`,
			},
			failure: ProjectEntryPointResolutionFailed,
		},
		{
			name: "should fail when the name is not a string",
			files: map[string]string{
				"package.json": `{"name": 42}`,
				"index.js":     "",
			},
			failure: PackageNameMustBeAString,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := writeFixture(t, c.files)
			logger := newTestLogger()
			got := resolveProjectEntryPoint(readFixturePackage(t, dir, "package.json"), dir, conditions, logger)
			if got != c.expected {
				t.Errorf("Expected %q, got %q", c.expected, got)
			}
			if c.failure != "" && !logger.HasWarning(c.failure) {
				t.Errorf("Expected %s warning, got %v", c.failure, logger.Warnings())
			}
			if c.failure == "" && len(logger.Warnings()) != 0 {
				t.Errorf("Expected no warnings, got %v", logger.Warnings())
			}
		})
	}
}
