// Package java turns a submitted snippet into a source file on disk and the
// shell script that compiles and runs it.
package java

import (
	"strings"
)

// NoClassName is used when no public type declaration is found. The
// resulting script fails at compile time, which surfaces as an ordinary
// failed run.
const NoClassName = "NO_CLASS_NAME"

// typeKeywords are the declaration keywords that introduce a top-level type.
var typeKeywords = map[string]bool{
	"class":     true,
	"interface": true,
	"enum":      true,
	"record":    true,
}

// modifiers may appear between "public" and the type keyword.
var modifiers = map[string]bool{
	"final":      true,
	"abstract":   true,
	"static":     true,
	"sealed":     true,
	"strictfp":   true,
	"non-sealed": true,
}

// ClassName returns the name of the first public top-level type declared
// in source, or NoClassName. It is a best-effort line scan, not a parser.
func ClassName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		words := strings.Fields(line)
		if len(words) == 0 || words[0] != "public" {
			continue
		}

		i := 1
		for i < len(words) && modifiers[words[i]] {
			i++
		}
		if i+1 >= len(words) || !typeKeywords[words[i]] {
			continue
		}

		if name := identifier(words[i+1]); name != "" {
			return name
		}
	}
	return NoClassName
}

// identifier trims generic parameters, braces and the like from a word,
// e.g. "Main{" -> "Main", "Box<T>" -> "Box".
func identifier(word string) string {
	if i := strings.IndexAny(word, "{<(;"); i >= 0 {
		word = word[:i]
	}
	return word
}
