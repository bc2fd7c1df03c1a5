package config

import (
	"fmt"
	"strings"
)

// PermissionError reports a config file or directory the process cannot
// read or write.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string // shell command or steps that grant access
	Details string // owner and mode, when known
}

func (e *PermissionError) Error() string {
	return render(fmt.Sprintf("cannot %s config %s: permission denied", e.Op, e.Path), e.Details, e.Fix)
}

// ConfigNotFoundError reports an explicitly requested config file that does
// not exist.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	hint := e.Hint
	if hint == "" {
		hint = "run 'osm-tag-search config init' or pass --config"
	}
	return render("config file not found: "+e.Path, "", hint)
}

// InvalidConfigError reports a config that does not parse, decode or
// validate. Err is the underlying cause, when there is one.
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
	Err     error
}

func (e *InvalidConfigError) Error() string {
	path := e.Path
	if path == "" {
		path = "(defaults and environment)"
	}
	return render("invalid config: "+path, e.Message, e.Hint)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// render lays out a headline, optional detail lines and an optional hint.
func render(headline, details, hint string) string {
	var sb strings.Builder
	sb.WriteString(headline)
	if details != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(details, "\n"))
	}
	if hint != "" {
		sb.WriteString("\nhint: ")
		sb.WriteString(hint)
	}
	return sb.String()
}
