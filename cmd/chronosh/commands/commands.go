// Package commands implements the shell's command handlers over the client.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kartikbazzad/chronodb/cmd/chronosh/parser"
	"github.com/kartikbazzad/chronodb/pkg/client"
)

// Result is what a command hands back to the REPL loop.
type Result interface {
	Print(w io.Writer)
	IsExit() bool
}

type ErrorResult struct {
	Err string
}

func (e ErrorResult) Print(w io.Writer) {
	fmt.Fprintln(w, "ERROR:", e.Err)
}

func (e ErrorResult) IsExit() bool { return false }

type ExitResult struct{}

func (e ExitResult) Print(w io.Writer) {}
func (e ExitResult) IsExit() bool      { return true }

type OKResult struct {
	Message string
}

func (r OKResult) Print(w io.Writer) {
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	} else {
		fmt.Fprintln(w, "OK")
	}
}

func (r OKResult) IsExit() bool { return false }

// JSONResult pretty-prints any JSON-marshalable value.
type JSONResult struct {
	Value  interface{}
	Pretty bool
}

func (r JSONResult) Print(w io.Writer) {
	var data []byte
	var err error
	if r.Pretty {
		data, err = json.MarshalIndent(r.Value, "", "  ")
	} else {
		data, err = json.Marshal(r.Value)
	}
	if err != nil {
		fmt.Fprintln(w, "ERROR:", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func (r JSONResult) IsExit() bool { return false }

type HelpResult struct{}

func (h HelpResult) Print(w io.Writer) {
	fmt.Fprintln(w, "ChronoDB Shell Commands:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Meta:")
	fmt.Fprintln(w, "  .help                              Show this help")
	fmt.Fprintln(w, "  .exit                              Exit the shell")
	fmt.Fprintln(w, "  .pretty on|off                     Toggle JSON indentation")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Collections:")
	fmt.Fprintln(w, "  .collections                       List collections")
	fmt.Fprintln(w, "  .create-collection <name> [temporal]")
	fmt.Fprintln(w, "  .drop-collection <name>")
	fmt.Fprintln(w, "  .index <col> <name> <spec-json> [unique] [expire=<seconds>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Documents:")
	fmt.Fprintln(w, "  .insert <col> <doc-json>")
	fmt.Fprintln(w, "  .find <col> <filter-json> [sort-json] [limit]")
	fmt.Fprintln(w, "  .count <col> <filter-json>")
	fmt.Fprintln(w, "  .update <col> <pattern-json> <update-json> [multi]")
	fmt.Fprintln(w, "  .delete <col> <pattern-json> [one]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Temporal selectors go inside the filter, e.g.")
	fmt.Fprintln(w, `  .find users {"transaction": {"all": true}}`)
	fmt.Fprintln(w, `  .find users {"transaction": {"at": 1700000000}}`)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "  .stats")
}

func (h HelpResult) IsExit() bool { return false }

func Help() Result { return HelpResult{} }
func Exit() Result { return ExitResult{} }

func Collections(c *client.Client, pretty bool) Result {
	cols, err := c.ListCollections()
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return JSONResult{Value: cols, Pretty: pretty}
}

func CreateCollection(c *client.Client, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	temporal := len(cmd.Args) > 1 && cmd.Args[1] == "temporal"
	if err := c.CreateCollection(cmd.Args[0], temporal); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return OKResult{}
}

func DropCollection(c *client.Client, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 1); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	if err := c.DropCollection(cmd.Args[0]); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return OKResult{}
}

func Insert(c *client.Client, cmd *parser.Command, pretty bool) Result {
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	doc, err := parser.ParseJSON(cmd.Args[1])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	stored, err := c.Insert(cmd.Args[0], doc)
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return JSONResult{Value: stored, Pretty: pretty}
}

func Find(c *client.Client, cmd *parser.Command, pretty bool) Result {
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	filter, err := parser.ParseJSON(cmd.Args[1])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}

	var sort map[string]interface{}
	limit := 0
	for _, arg := range cmd.Args[2:] {
		if n, err := parser.ParseInt(arg); err == nil {
			limit = n
			continue
		}
		if sort == nil {
			sort, err = parser.ParseJSON(arg)
			if err != nil {
				return ErrorResult{Err: err.Error()}
			}
		}
	}

	docs, err := c.Find(cmd.Args[0], filter, sort, limit)
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return JSONResult{Value: docs, Pretty: pretty}
}

func Count(c *client.Client, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	filter, err := parser.ParseJSON(cmd.Args[1])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	n, err := c.Count(cmd.Args[0], filter)
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return OKResult{Message: strconv.Itoa(n)}
}

func Update(c *client.Client, cmd *parser.Command, pretty bool) Result {
	if err := parser.ValidateArgs(cmd, 3); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	pattern, err := parser.ParseJSON(cmd.Args[1])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	update, err := parser.ParseJSON(cmd.Args[2])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	multi := len(cmd.Args) > 3 && cmd.Args[3] == "multi"

	res, err := c.Update(cmd.Args[0], pattern, update, multi)
	if err != nil {
		return ErrorResult{Err: fmt.Sprintf("%v (matched=%d closed=%d inserted=%d)",
			err, res.Matched, res.Closed, res.Inserted)}
	}
	return JSONResult{Value: res, Pretty: pretty}
}

func Delete(c *client.Client, cmd *parser.Command, pretty bool) Result {
	if err := parser.ValidateArgs(cmd, 2); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	pattern, err := parser.ParseJSON(cmd.Args[1])
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	justOne := len(cmd.Args) > 2 && cmd.Args[2] == "one"

	res, err := c.Delete(cmd.Args[0], pattern, justOne)
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return JSONResult{Value: res, Pretty: pretty}
}

func Index(c *client.Client, cmd *parser.Command) Result {
	if err := parser.ValidateArgs(cmd, 3); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	var spec []client.IndexKey
	if err := json.Unmarshal([]byte(cmd.Args[2]), &spec); err != nil {
		return ErrorResult{Err: fmt.Sprintf("invalid spec: %v", err)}
	}

	unique := false
	var expire int64
	for _, arg := range cmd.Args[3:] {
		if arg == "unique" {
			unique = true
			continue
		}
		var n int64
		if _, err := fmt.Sscanf(arg, "expire=%d", &n); err == nil {
			expire = n
		}
	}

	if err := c.EnsureIndex(cmd.Args[0], cmd.Args[1], spec, unique, expire); err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return OKResult{}
}

func Stats(c *client.Client, pretty bool) Result {
	stats, err := c.Stats()
	if err != nil {
		return ErrorResult{Err: err.Error()}
	}
	return JSONResult{Value: stats, Pretty: pretty}
}
