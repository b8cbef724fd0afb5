package main

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// PackageMatcher matches package names such as "lodash", "@babel/*" or
// "react@18.*". A "*" does not cross "/" so "@babel/*" only matches the
// packages of the @babel scope.
type PackageMatcher struct {
	globPattern glob.Glob
	withVersion bool
}

func CreatePackageMatchers(patterns []string) ([]PackageMatcher, error) {
	matchers := make([]PackageMatcher, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid package pattern %q", pattern)
		}
		matchers = append(matchers, PackageMatcher{
			globPattern: compiled,
			// "@scope/name" starts with "@", a version separator comes later
			withVersion: strings.Contains(strings.TrimPrefix(pattern, "@"), "@"),
		})
	}
	return matchers, nil
}

func MatchesAnyPackageMatcher(name string, version string, matchers []PackageMatcher) bool {
	for _, matcher := range matchers {
		candidate := name
		if matcher.withVersion {
			candidate = name + "@" + version
		}
		if matcher.globPattern.Match(candidate) {
			return true
		}
	}
	return false
}

// createPackageIncludedPredicate builds the filter deciding which packages
// contribute mappings. Exclusions win over inclusions, an empty include list
// includes everything.
func createPackageIncludedPredicate(include []string, exclude []string) (func(name string, version string) bool, error) {
	includeMatchers, err := CreatePackageMatchers(include)
	if err != nil {
		return nil, err
	}
	excludeMatchers, err := CreatePackageMatchers(exclude)
	if err != nil {
		return nil, err
	}
	return func(name string, version string) bool {
		if MatchesAnyPackageMatcher(name, version, excludeMatchers) {
			return false
		}
		if len(includeMatchers) == 0 {
			return true
		}
		return MatchesAnyPackageMatcher(name, version, includeMatchers)
	}, nil
}
