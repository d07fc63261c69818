package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readSecret reads a passphrase. On a terminal it prompts without echo;
// otherwise it reads the first line of in so the passphrase can be piped.
func readSecret(in io.Reader, w io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(w, prompt)
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(bufio.NewReader(in))
}

// confirm prints prompt and reports whether the answer equals want.
func confirm(in io.Reader, w io.Writer, prompt, want string) (bool, error) {
	fmt.Fprint(w, prompt)
	answer, err := readLine(bufio.NewReader(in))
	if err != nil {
		return false, err
	}
	return answer == want, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// parseAssignments splits KEY=VALUE arguments. Values may contain "=".
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", arg)
		}
		out[key] = value
	}
	return out, nil
}
