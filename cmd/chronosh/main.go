package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/chronodb/cmd/chronosh/parser"
	"github.com/kartikbazzad/chronodb/cmd/chronosh/shell"
)

const prompt = "chronodb> "

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chronosh_history")
}

func main() {
	socketPath := flag.String("socket", "/tmp/chronodb.sock", "Unix socket path")
	flag.Parse()

	fmt.Println("ChronoDB Shell")
	fmt.Printf("Connecting to %s...\n", *socketPath)

	sh := shell.NewShell(*socketPath)
	defer sh.Close()

	if err := sh.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected. Type '.help' for commands.")
	fmt.Println()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histFile := historyPath()
	if histFile != "" {
		if f, err := os.Open(histFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	saveHistory := func() {
		if histFile == "" {
			return
		}
		if f, err := os.Create(histFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
	defer saveHistory()

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return
			}
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			return
		}

		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		cmd, err := parser.Parse(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			continue
		}

		result := sh.Execute(cmd)
		result.Print(os.Stdout)
		if result.IsExit() {
			return
		}
	}
}
