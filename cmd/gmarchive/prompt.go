package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
)

// errAborted means the user left the selection prompt.
var errAborted = errors.New("selection aborted")

type selection struct {
	label string
	query string
}

// promptSelection asks which folder, label or query to mirror. Any number past
// the listed options asks for a query. It returns
// errAborted on EOF or when ctx is cancelled while waiting for input.
func promptSelection(ctx context.Context, in io.Reader, out io.Writer, options []string) (selection, error) {
	type result struct {
		sel selection
		err error
	}
	done := make(chan result, 1)
	go func() {
		sel, err := readSelection(bufio.NewScanner(in), out, options)
		done <- result{sel: sel, err: err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return selection{}, errAborted
	case r := <-done:
		return r.sel, r.err
	}
}

func readSelection(sc *bufio.Scanner, out io.Writer, options []string) (selection, error) {
	for {
		fmt.Fprintln(out, "Select folder or label to archive: (Ctrl-C to exit)")
		for i, name := range options {
			fmt.Fprintf(out, "  %d. %s\n", i, name)
		}
		fmt.Fprintf(out, "  %d. QUERY\n", len(options))
		fmt.Fprint(out, "Choice: ")

		line, ok := scanLine(sc)
		if !ok {
			fmt.Fprintln(out)
			return selection{}, errAborted
		}
		n, err := strconv.Atoi(line)
		switch {
		case err != nil || n < 0:
			fmt.Fprintln(out, "Please select a folder or label by typing in the number in front of it.")
			fmt.Fprintln(out)
			continue
		case n < len(options):
			fmt.Fprintln(out)
			return selection{label: options[n]}, nil
		}

		for {
			fmt.Fprint(out, "Query: ")
			q, ok := scanLine(sc)
			if !ok {
				fmt.Fprintln(out)
				return selection{}, errAborted
			}
			if q != "" {
				fmt.Fprintln(out)
				return selection{query: q}, nil
			}
		}
	}
}

func scanLine(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// selectionOptions lists the standard folders followed by the user labels in
// name order. System labels carry their name as id and are left out.
func selectionOptions(folders []gc.Folder, byName map[string]gc.LabelID) []string {
	opts := make([]string, 0, len(folders)+len(byName))
	for _, f := range folders {
		opts = append(opts, f.Name)
	}
	labels := make([]string, 0, len(byName))
	for name, id := range byName {
		if string(id) == name {
			continue
		}
		labels = append(labels, name)
	}
	sort.Strings(labels)
	return append(opts, labels...)
}
