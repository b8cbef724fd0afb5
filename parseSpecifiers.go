package main

import (
	"bytes"
	"os"
	"sort"
)

type SpecifierKind uint8

const (
	StaticImport SpecifierKind = iota
	DynamicImport
	ExportAll
	ExportNamed
)

func (k SpecifierKind) String() string {
	switch k {
	case DynamicImport:
		return "import-dynamic"
	case ExportAll:
		return "export-all"
	case ExportNamed:
		return "export-named"
	}
	return "import-static"
}

// Specifier is one module specifier found in a source file. Start and End
// are byte offsets of the specifier text, Line and Column are 1 based.
type Specifier struct {
	Value  string
	Kind   SpecifierKind
	Start  int
	End    int
	Line   int
	Column int
}

func isWhiteSpace(char byte) bool {
	return (char == ' ' || char == '\t' || char == '\n' || char == '\r')
}

// skipSpaces skips spaces, tabs, and newlines, returns new index
func skipSpaces(code []byte, i int) int {
	for i < len(code) && isWhiteSpace(code[i]) {
		i++
	}
	return i
}

func isByteIdentifierChar(char byte) bool {
	// 0-9 || A-Z || a-z || _ || $
	return (char >= '0' && char <= '9') || (char >= 'A' && char <= 'Z') || (char >= 'a' && char <= 'z') || char == '_' || char == '$'
}

func hasPrefixAt(code []byte, i int, s string) bool {
	if i < 0 || i+len(s) > len(code) {
		return false
	}
	return string(code[i:i+len(s)]) == s
}

// hasWordAt checks s is at i and is not part of a longer identifier or a
// member access like foo.import.
func hasWordAt(code []byte, i int, s string) bool {
	if !hasPrefixAt(code, i, s) {
		return false
	}
	if i > 0 && (isByteIdentifierChar(code[i-1]) || code[i-1] == '.') {
		return false
	}
	end := i + len(s)
	return end >= len(code) || !isByteIdentifierChar(code[end])
}

// parseStringLiteral extracts the string literal at position i (' or ").
// Returns the value, the index after the closing quote and the value offsets.
func parseStringLiteral(code []byte, i int) (string, int, int, int) {
	quote := code[i]
	i++
	start := i
	for i < len(code) && code[i] != quote && code[i] != '\n' {
		if code[i] == '\\' {
			i++
		}
		i++
	}
	if i >= len(code) || code[i] != quote {
		return "", i, 0, 0
	}
	return string(code[start:i]), i + 1, start, i
}

// parseDynamicImportArgument reads `( "specifier" ...)`. Only a plain string
// literal as first argument gives a specifier, expressions are skipped.
func parseDynamicImportArgument(code []byte, i int) (string, int, int, int) {
	i = skipSpacesAndComments(code, i)
	if i >= len(code) || code[i] != '(' {
		return "", i, 0, 0
	}
	i = skipSpacesAndComments(code, i+1)
	if i >= len(code) {
		return "", i, 0, 0
	}
	if code[i] != '\'' && code[i] != '"' {
		return "", i, 0, 0
	}
	value, next, start, end := parseStringLiteral(code, i)
	next = skipSpacesAndComments(code, next)
	if next < len(code) && (code[next] == ')' || code[next] == ',') {
		return value, next + 1, start, end
	}
	// "a" + b is not a static specifier
	return "", next, 0, 0
}

// skipToStringEnd skips to the end of a string literal.
// Quoted strings cannot span lines, only template literals can.
func skipToStringEnd(code []byte, start int, quote byte) int {
	i := start + 1
	for i < len(code) {
		if code[i] == quote {
			return i
		}
		if code[i] == '\n' && quote != '`' {
			return i
		}
		if code[i] == '\\' && i+1 < len(code) {
			i += 2
		} else {
			i++
		}
	}
	return i
}

// isRegexStart tells if the "/" at i opens a regular expression literal
// rather than a division, based on the token before it.
func isRegexStart(code []byte, i int) bool {
	j := i - 1
	for j >= 0 && isWhiteSpace(code[j]) {
		j--
	}
	if j < 0 {
		return true
	}
	switch code[j] {
	case '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';':
		return true
	}
	return j >= len("return")-1 && hasWordAt(code, j-len("return")+1, "return")
}

// skipRegex returns the index of the closing "/" of the regular expression
// starting at start, "/" inside a character class does not close it.
func skipRegex(code []byte, start int) int {
	i := start + 1
	inClass := false
	for i < len(code) {
		switch code[i] {
		case '\\':
			i += 2
			continue
		case '\n':
			return i
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return i
			}
		}
		i++
	}
	return len(code)
}

// skipLineComment skips to the end of a line comment
func skipLineComment(code []byte, start int) int {
	i := start + 2
	for i < len(code) && code[i] != '\n' {
		i++
	}
	return i
}

// skipBlockComment skips to the end of a block comment
func skipBlockComment(code []byte, start int) int {
	i := start + 2
	for i+1 < len(code) && !(code[i] == '*' && code[i+1] == '/') {
		i++
	}
	if i+1 < len(code) {
		i += 2
	} else {
		i = len(code)
	}
	return i
}

// skipSpacesAndComments skips whitespace, line comments, and block comments
func skipSpacesAndComments(code []byte, i int) int {
	n := len(code)
	for i < n {
		i = skipSpaces(code, i)
		if i+1 < n && code[i] == '/' && code[i+1] == '/' {
			i = skipLineComment(code, i)
			continue
		}
		if i+1 < n && code[i] == '/' && code[i+1] == '*' {
			i = skipBlockComment(code, i)
			continue
		}
		break
	}
	return i
}

// skipBalancedBlock skips from the '{' at i to after its matching '}'.
func skipBalancedBlock(code []byte, i int) int {
	n := len(code)
	depth := 1
	i++
	for i < n && depth > 0 {
		switch {
		case code[i] == '{':
			depth++
		case code[i] == '}':
			depth--
		case code[i] == '\'' || code[i] == '"' || code[i] == '`':
			i = skipToStringEnd(code, i, code[i])
		case i+1 < n && code[i] == '/' && code[i+1] == '/':
			i = skipLineComment(code, i)
			continue
		case i+1 < n && code[i] == '/' && code[i+1] == '*':
			i = skipBlockComment(code, i)
			continue
		}
		i++
	}
	return i
}

// isOnlyTypeBraces checks a { ... } block holds only "type X" entries.
// It assumes code[i] is pointing at '{'.
func isOnlyTypeBraces(code []byte, i int) bool {
	i++
	sawEntry := false
	for i < len(code) {
		i = skipSpacesAndComments(code, i)
		if i >= len(code) {
			return false
		}
		if code[i] == '}' {
			return sawEntry
		}
		if !hasWordAt(code, i, "type") {
			return false
		}
		sawEntry = true
		for i < len(code) && code[i] != ',' && code[i] != '}' {
			i++
		}
		if i < len(code) && code[i] == ',' {
			i++
		}
	}
	return false
}

type parseState struct {
	code       []byte
	n          int
	specifiers []Specifier
}

func (s *parseState) add(value string, kind SpecifierKind, start int, end int) {
	if value == "" {
		return
	}
	s.specifiers = append(s.specifiers, Specifier{Value: value, Kind: kind, Start: start, End: end})
}

// skipTypeKeyword consumes a statement level "type" keyword
// (import type X from "x"). It returns false for a binding named type.
func (s *parseState) skipTypeKeyword(i int) (int, bool) {
	if !hasWordAt(s.code, i, "type") {
		return i, false
	}
	j := skipSpacesAndComments(s.code, i+len("type"))
	if j < s.n && (s.code[j] == ',' || hasWordAt(s.code, j, "from") || s.code[j] == '=') {
		return i, false
	}
	return j, true
}

// findFrom scans to the "from" keyword of the current statement.
func (s *parseState) findFrom(i int) (int, bool) {
	for i < s.n {
		if hasWordAt(s.code, i, "from") {
			return i, true
		}
		switch {
		case i+1 < s.n && s.code[i] == '/' && s.code[i+1] == '/':
			i = skipLineComment(s.code, i)
			continue
		case i+1 < s.n && s.code[i] == '/' && s.code[i+1] == '*':
			i = skipBlockComment(s.code, i)
			continue
		case s.code[i] == ';':
			return i, false
		case hasWordAt(s.code, i, "import") || hasWordAt(s.code, i, "export"):
			return i, false
		}
		i++
	}
	return i, false
}

func (s *parseState) parseSourceAfterFrom(i int, kind SpecifierKind, record bool) int {
	i = skipSpacesAndComments(s.code, i+len("from"))
	if i < s.n && (s.code[i] == '"' || s.code[i] == '\'') {
		value, next, start, end := parseStringLiteral(s.code, i)
		if record {
			s.add(value, kind, start, end)
		}
		return next
	}
	return i
}

func (s *parseState) skipDeclareAmbientBlock(i int) (int, bool) {
	if !hasWordAt(s.code, i, "declare") {
		return i, false
	}
	j := skipSpaces(s.code, i+len("declare"))
	if !hasWordAt(s.code, j, "module") && !hasWordAt(s.code, j, "global") && !hasWordAt(s.code, j, "namespace") {
		return i, false
	}
	for j < s.n && s.code[j] != '{' && s.code[j] != ';' && s.code[j] != '\n' {
		if s.code[j] == '\'' || s.code[j] == '"' {
			j = skipToStringEnd(s.code, j, s.code[j])
		}
		j++
	}
	if j < s.n && s.code[j] == '{' {
		return skipBalancedBlock(s.code, j), true
	}
	return j, true
}

func (s *parseState) parseImportStatement(i int) (int, bool) {
	if !hasWordAt(s.code, i, "import") {
		return i, false
	}
	i += len("import")
	j := skipSpacesAndComments(s.code, i)
	if j >= s.n {
		return j, true
	}

	switch s.code[j] {
	case '(':
		value, next, start, end := parseDynamicImportArgument(s.code, j)
		s.add(value, DynamicImport, start, end)
		return next, true
	case '.':
		// import.meta
		return j + 1, true
	case '"', '\'':
		value, next, start, end := parseStringLiteral(s.code, j)
		s.add(value, StaticImport, start, end)
		return next, true
	}

	typeOnly := false
	if next, ok := s.skipTypeKeyword(j); ok {
		typeOnly = true
		j = next
	}
	if !typeOnly && j < s.n && s.code[j] == '{' && isOnlyTypeBraces(s.code, j) {
		typeOnly = true
	}

	fromAt, found := s.findFrom(j)
	if !found {
		return fromAt, true
	}
	return s.parseSourceAfterFrom(fromAt, StaticImport, !typeOnly), true
}

func (s *parseState) parseExportStatement(i int) (int, bool) {
	if !hasWordAt(s.code, i, "export") {
		return i, false
	}
	i = skipSpacesAndComments(s.code, i+len("export"))
	if i >= s.n {
		return i, true
	}

	typeOnly := false
	if next, ok := s.skipTypeKeyword(i); ok {
		if next < s.n && s.code[next] != '{' && s.code[next] != '*' {
			// export type Foo = ...
			return next, true
		}
		typeOnly = true
		i = next
	}

	switch {
	case s.code[i] == '*':
		fromAt, found := s.findFrom(i + 1)
		if !found {
			return fromAt, true
		}
		return s.parseSourceAfterFrom(fromAt, ExportAll, !typeOnly), true
	case s.code[i] == '{':
		if !typeOnly && isOnlyTypeBraces(s.code, i) {
			typeOnly = true
		}
		closing := bytes.IndexByte(s.code[i:], '}')
		if closing == -1 {
			return s.n, true
		}
		after := skipSpacesAndComments(s.code, i+closing+1)
		if !hasWordAt(s.code, after, "from") {
			// export { a, b } without source
			return after, true
		}
		return s.parseSourceAfterFrom(after, ExportNamed, !typeOnly), true
	case hasWordAt(s.code, i, "namespace") || hasWordAt(s.code, i, "module"):
		for i < s.n && s.code[i] != '{' && s.code[i] != ';' {
			i++
		}
		if i < s.n && s.code[i] == '{' {
			return skipBalancedBlock(s.code, i), true
		}
		return i, true
	}
	// export const, export default, export function...
	return i, true
}

// ParseSpecifiers extracts import/export specifiers from JS or TS source.
// Type only imports and exports are skipped since they are erased at runtime.
func ParseSpecifiers(code []byte) []Specifier {
	state := parseState{
		code:       code,
		n:          len(code),
		specifiers: make([]Specifier, 0, 16),
	}
	i := 0
	n := state.n
	depth := 0 // brace depth: static import/export can only appear at depth 0

	for i < n {
		// Inside braces only dynamic import() can appear.
		if depth > 0 {
			b := code[i]
			switch b {
			case '{':
				depth++
				i++
			case '}':
				depth--
				i++
			case '\'', '"', '`':
				i = skipToStringEnd(code, i, b)
				if i < n {
					i++ // advance past closing quote
				}
			case '/':
				if i+1 < n && code[i+1] == '/' {
					i = skipLineComment(code, i)
				} else if i+1 < n && code[i+1] == '*' {
					i = skipBlockComment(code, i)
				} else if isRegexStart(code, i) {
					i = skipRegex(code, i) + 1
				} else {
					i++
				}
			case 'i':
				if hasWordAt(code, i, "import") {
					j := skipSpacesAndComments(code, i+len("import"))
					if j < n && code[j] == '(' {
						value, next, start, end := parseDynamicImportArgument(code, j)
						state.add(value, DynamicImport, start, end)
						i = next
						continue
					}
				}
				i++
			default:
				i++
			}
			continue
		}

		i = skipSpaces(code, i)
		if i >= n {
			break
		}

		switch {
		case code[i] == '\'' || code[i] == '"' || code[i] == '`':
			i = skipToStringEnd(code, i, code[i])
			if i < n {
				i++
			}
			continue
		case i+1 < n && code[i] == '/' && code[i+1] == '/':
			i = skipLineComment(code, i)
			continue
		case i+1 < n && code[i] == '/' && code[i+1] == '*':
			i = skipBlockComment(code, i)
			continue
		case code[i] == '/' && isRegexStart(code, i):
			i = skipRegex(code, i) + 1
			continue
		}

		switch code[i] {
		case 'd':
			if next, ok := state.skipDeclareAmbientBlock(i); ok {
				i = next
				continue
			}
		case 'i':
			if next, ok := state.parseImportStatement(i); ok {
				i = next
				continue
			}
		case 'e':
			if next, ok := state.parseExportStatement(i); ok {
				i = next
				continue
			}
		}

		if code[i] == '{' {
			depth++
		}
		i++
	}

	addPositions(code, state.specifiers)
	return state.specifiers
}

// addPositions fills Line and Column from byte offsets.
func addPositions(code []byte, specifiers []Specifier) {
	if len(specifiers) == 0 {
		return
	}
	lineStarts := []int{0}
	for i, b := range code {
		if b == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	for i := range specifiers {
		// the quote before the value is where the specifier starts
		offset := specifiers[i].Start - 1
		if offset < 0 {
			offset = 0
		}
		line := sort.Search(len(lineStarts), func(l int) bool { return lineStarts[l] > offset }) - 1
		specifiers[i].Line = line + 1
		specifiers[i].Column = offset - lineStarts[line] + 1
	}
}

// ParseSpecifiersFromFile reads file and parses its specifiers.
func ParseSpecifiersFromFile(file string) ([]Specifier, error) {
	content, err := os.ReadFile(DenormalizePathForOS(file))
	if err != nil {
		return nil, err
	}
	return ParseSpecifiers(content), nil
}
