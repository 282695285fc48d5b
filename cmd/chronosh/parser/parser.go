// Package parser splits shell input into a command and arguments, keeping
// JSON arguments whole so filters and documents can be typed inline.
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Command struct {
	Name string
	Args []string
	Line string
}

func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}

	parts := SplitArgs(line)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if !strings.HasPrefix(parts[0], ".") {
		return nil, fmt.Errorf("commands must start with '.'")
	}

	return &Command{
		Name: parts[0],
		Args: parts[1:],
		Line: line,
	}, nil
}

// SplitArgs splits on whitespace, except inside JSON objects, arrays and
// strings, so `.find users {"a": {"$gt": 1}}` yields three tokens.
func SplitArgs(line string) []string {
	var args []string
	var buf strings.Builder
	depth := 0
	inString := false
	escaped := false

	flush := func() {
		if buf.Len() > 0 {
			args = append(args, buf.String())
			buf.Reset()
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case inString:
			buf.WriteRune(r)
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			buf.WriteRune(r)
			inString = true
		case r == '{' || r == '[':
			buf.WriteRune(r)
			depth++
		case r == '}' || r == ']':
			buf.WriteRune(r)
			depth--
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return args
}

// ParseJSON decodes one argument into a JSON object.
func ParseJSON(arg string) (map[string]interface{}, error) {
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON %q: %v", arg, err)
	}
	return v, nil
}

func ParseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func ValidateArgs(cmd *Command, count int) error {
	if len(cmd.Args) < count {
		return fmt.Errorf("expected %d argument(s), got %d", count, len(cmd.Args))
	}
	return nil
}
