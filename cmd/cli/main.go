// Command cli is the interactive front-end for the store, grounded on the
// prototype's src/bin/cli.rs: open a directory, then accept `get`, `set`,
// and `exit` lines on stdin. This is the "external collaborator" the core
// spec explicitly keeps out of scope, so it stays a thin wrapper with no
// logic of its own beyond argument parsing.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/intellect4all/lsmstore"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <directory>\n", os.Args[0])
		os.Exit(1)
	}

	store, err := lsmstore.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	repl(store, os.Stdin, os.Stderr)
}

func repl(store *lsmstore.Store, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)

		switch parts[0] {
		case "exit":
			return

		case "get":
			if len(parts) != 2 {
				fmt.Fprintln(out, "usage: get <key>")
				continue
			}
			value, ok, err := store.Get(parts[1])
			if err != nil {
				fmt.Fprintf(out, "failed to read key: %v\n", err)
				continue
			}
			if ok {
				fmt.Fprintln(out, string(value))
			} else {
				fmt.Fprintln(out, "key not found")
			}

		case "set":
			if len(parts) != 3 {
				fmt.Fprintln(out, "usage: set <key> <value>")
				continue
			}
			if err := store.Insert(parts[1], []byte(parts[2])); err != nil {
				fmt.Fprintf(out, "failed to set key: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "key set")

		default:
			fmt.Fprintf(out, "unknown command: %s\n", parts[0])
		}
	}
}
