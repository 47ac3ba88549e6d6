package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompt reads one line after printing label. Secret input is not echoed
// when reading from a terminal.
func (g *Globals) prompt(label string, secret bool) (string, error) {
	fmt.Fprint(g.stdout(), label)

	if f, ok := g.stdin().(*os.File); ok && secret && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(g.stdout())
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(b), nil
	}

	if g.reader == nil {
		g.reader = bufio.NewReader(g.stdin())
	}
	line, err := g.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
