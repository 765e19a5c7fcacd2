package main

import (
	"strconv"
	"time"

	"github.com/dweomer/gotail/internal/tail"
)

// defaultLines is the count used when no number is given.
const defaultLines = 10

// parseObsolete recognizes the traditional single-option form:
//
//	gotail +NUM[bcl][f] [file]
//	gotail -NUM[bcl][f] [file]
//
// with 'b' counting 512-byte blocks, 'c' bytes, 'l' lines (the default), and
// a trailing 'f' enabling follow. The form is accepted only with at most one
// file operand (optionally after "--"); anything else goes through normal
// flag parsing. Reports ok=false without touching anything when the first
// argument is not of this shape.
func parseObsolete(args []string) (tail.Config, []string, bool) {
	var cfg tail.Config

	// One option string and at most one file operand; "-" alone is a file,
	// and a second argument that looks like an option disqualifies the form.
	var files []string
	switch {
	case len(args) == 1:
	case len(args) == 2 && args[1] == "--":
	case len(args) == 2 && !(len(args[1]) > 1 && args[1][0] == '-'):
		files = args[1:]
	case len(args) == 3 && args[1] == "--":
		files = args[2:]
	default:
		return cfg, nil, false
	}

	p := args[0]
	if p == "" {
		return cfg, nil, false
	}
	fromStart := false
	switch p[0] {
	case '+':
		fromStart = true
	case '-':
		// The non-obsolete "-" is stdin and "-c" takes an argument; only the
		// multidigit extension is recognized here.
		if len(p) < 2 || p[1] < '0' || p[1] > '9' {
			return cfg, nil, false
		}
	default:
		return cfg, nil, false
	}
	p = p[1:]

	digits := 0
	for digits < len(p) && p[digits] >= '0' && p[digits] <= '9' {
		digits++
	}
	numStr := p[:digits]
	p = p[digits:]

	mult := int64(1)
	countLines := true
	if len(p) > 0 {
		switch p[0] {
		case 'b':
			mult = 512
			countLines = false
			p = p[1:]
		case 'c':
			countLines = false
			p = p[1:]
		case 'l':
			p = p[1:]
		}
	}

	follow := false
	if len(p) > 0 && p[0] == 'f' {
		follow = true
		p = p[1:]
	}
	if len(p) > 0 {
		return cfg, nil, false
	}

	count := int64(defaultLines)
	if numStr != "" {
		n, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return cfg, nil, false
		}
		count = n
	}
	count *= mult

	cfg.Mode = tail.Lines
	if !countLines {
		cfg.Mode = tail.Bytes
	}
	cfg.Count = count
	cfg.FromStart = fromStart
	if fromStart && cfg.Count > 0 {
		cfg.Count--
	}
	if follow {
		cfg.Follow = tail.FollowDescriptor
	}
	cfg.SleepInterval = time.Second
	cfg.MaxUnchangedStats = tail.DefaultMaxUnchangedStats
	return cfg, files, true
}
