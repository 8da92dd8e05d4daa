package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go-mangadex-upload/internal/metadata"
)

// consoleDisambiguator asks the user to pick a language by number.
type consoleDisambiguator struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleDisambiguator(in io.Reader, out io.Writer) *consoleDisambiguator {
	return &consoleDisambiguator{in: bufio.NewReader(in), out: out}
}

func (c *consoleDisambiguator) Choose(input string, candidates []metadata.Language) (metadata.Language, error) {
	fmt.Fprintf(c.out, "Language tag %q matches more than one language:\n", input)
	for i, lang := range candidates {
		fmt.Fprintf(c.out, "  %d) %s (%s)\n", i+1, lang.English, lang.Code)
	}
	for {
		fmt.Fprintf(c.out, "Choose 1-%d: ", len(candidates))
		line, err := c.in.ReadString('\n')
		choice, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil && choice >= 1 && choice <= len(candidates) {
			return candidates[choice-1], nil
		}
		if err != nil {
			return metadata.Language{}, fmt.Errorf("%w: no choice made for %q", metadata.ErrAmbiguousLanguage, input)
		}
		fmt.Fprintln(c.out, "Invalid choice.")
	}
}

// confirm prints prompt and reports whether the answer starts with y.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s (y/N): ", prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
