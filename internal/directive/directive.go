// Package directive parses the #JOBQ directive lines embedded in submitted
// scripts. The same schema validates a script at submission time (rejecting
// it before it reaches the inbox) and again during intake; a script that
// passed the first stage and fails the second indicates an intake defect,
// not bad user input.
package directive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Marker introduces a directive line. Everything after "#JOBQ " on such a
// line is tokenized as a flat argument list; tokens from all directive
// lines of one script are parsed together against the fixed schema.
const Marker = "#JOBQ"

// Options are the scheduling parameters a script may carry.
type Options struct {
	// Name is the required job name (--job-name).
	Name string

	// Chdir is the optional working directory (-D, --chdir). Empty means
	// the executor's home directory.
	Chdir string
}

// Parse extracts and validates the directives of a script.
func Parse(script []byte) (*Options, error) {
	var tokens []string

	sc := bufio.NewScanner(bytes.NewReader(script))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, Marker+" ")
		if !ok {
			continue
		}
		tokens = append(tokens, strings.Fields(rest)...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	return parseTokens(tokens)
}

func parseTokens(tokens []string) (*Options, error) {
	var opts Options

	fs := pflag.NewFlagSet("directive", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Name, "job-name", "", "job name (required)")
	fs.StringVarP(&opts.Chdir, "chdir", "D", "", "working directory")

	if err := fs.Parse(tokens); err != nil {
		return nil, fmt.Errorf("parse %s directives: %w", Marker, err)
	}
	if args := fs.Args(); len(args) > 0 {
		return nil, fmt.Errorf("parse %s directives: unexpected token %q", Marker, args[0])
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("parse %s directives: --job-name is required", Marker)
	}

	return &opts, nil
}
