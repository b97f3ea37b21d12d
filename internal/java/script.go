package java

import (
	"fmt"
	"strings"
)

// Paths locates the code and library folders used to build a script.
type Paths struct {
	CodeDir string
	LibDir  string
}

// BuildScript returns the shell statements that remove a stale class file,
// compile the snippet against the library folder, and run it.
//
// On POSIX the statements are newline separated for bash -c. cmd.exe cannot
// run a multi-line script, so on Windows they are joined with " && ".
func BuildScript(p Paths, className, goos string) string {
	if goos == "windows" {
		return JoinForCmd(windowsScript(p, className))
	}
	return posixScript(p, className)
}

func posixScript(p Paths, className string) string {
	route := joinPath("/", p.CodeDir, className)
	lines := []string{
		fmt.Sprintf("rm -f %s", shellQuote(route+".class")),
		fmt.Sprintf(`javac -cp "%s" %s`, escapeDouble(".:"+p.LibDir+"/*"), shellQuote(route+".java")),
		fmt.Sprintf("export CLASSPATH=%s", shellQuote(p.CodeDir)),
		fmt.Sprintf("java %s", className),
	}
	return strings.Join(lines, "\n")
}

func windowsScript(p Paths, className string) string {
	route := joinPath(`\`, p.CodeDir, className)
	lines := []string{
		fmt.Sprintf(`if exist %s del /f /q %s`, cmdQuote(route+".class"), cmdQuote(route+".class")),
		fmt.Sprintf(`javac -cp ".;%s\*" %s`, p.LibDir, cmdQuote(route+".java")),
		fmt.Sprintf("set CLASSPATH=%s", p.CodeDir),
		fmt.Sprintf("java %s", className),
	}
	return strings.Join(lines, "\n")
}

// JoinForCmd joins the non-empty lines of script with " && " so cmd /c
// runs them in sequence and stops at the first failure.
func JoinForCmd(script string) string {
	var parts []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " && ")
}

// joinPath joins dir and name with sep, independent of the host OS.
func joinPath(sep, dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, `/\`) + sep + name
}

// shellQuote wraps s in double quotes for bash when it contains characters
// the shell would split on or expand.
func shellQuote(s string) string {
	if strings.ContainsAny(s, " \t'\"&;|<>()$`\\*?[]{}~!#") {
		return `"` + escapeDouble(s) + `"`
	}
	return s
}

// escapeDouble escapes the characters bash still interprets inside double
// quotes.
func escapeDouble(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"', '$', '`', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// cmdQuote wraps s in double quotes when cmd.exe would split on it.
func cmdQuote(s string) string {
	if strings.ContainsAny(s, " \t'&;|") {
		return `"` + s + `"`
	}
	return s
}
