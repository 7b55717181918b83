// Package secrets reads dotenv-style files holding judge API keys.
package secrets

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Var is one KEY=VALUE assignment.
type Var struct {
	Key   string
	Value string
}

func (v Var) String() string { return v.Key + "=" + v.Value }

// Parse reads an env file. Blank lines, comments and lines without '=' are
// skipped; an "export " prefix and matching outer quotes are stripped.
func Parse(path string) ([]Var, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	var vars []Var
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		vars = append(vars, Var{Key: strings.TrimSpace(k), Value: unquote(strings.TrimSpace(v))})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	return vars, nil
}

// Load exports the file's variables into the process environment. Variables
// already set win. It returns the keys it set.
func Load(path string) ([]string, error) {
	vars, err := Parse(path)
	if err != nil {
		return nil, err
	}
	var set []string
	for _, v := range vars {
		if _, exists := os.LookupEnv(v.Key); exists {
			continue
		}
		if err := os.Setenv(v.Key, v.Value); err != nil {
			return set, fmt.Errorf("setting %s: %w", v.Key, err)
		}
		set = append(set, v.Key)
	}
	return set, nil
}

// Environ renders vars for exec.Cmd.Env.
func Environ(vars []Var) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.String()
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
