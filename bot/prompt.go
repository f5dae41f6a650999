package bot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter asks questions on the bot's terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal file descriptor, or -1 when input is not a terminal.
	fd int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

// Line prints question and returns the trimmed answer.
func (p *prompter) Line(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret reads an answer without echo when attached to a terminal.
func (p *prompter) Secret(question string) (string, error) {
	if p.fd < 0 {
		return p.Line(question)
	}
	fmt.Fprint(p.out, question)
	data, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Confirm asks a yes/no question; anything but an answer starting with y is no.
func (p *prompter) Confirm(question string) (bool, error) {
	answer, err := p.Line(question + " (y/n)? ")
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(answer), "y"), nil
}

// Required repeats question until the answer is not empty.
func (p *prompter) Required(question string, secret bool) (string, error) {
	for {
		var (
			answer string
			err    error
		)
		if secret {
			answer, err = p.Secret(question)
		} else {
			answer, err = p.Line(question)
		}
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		fmt.Fprintln(p.out, "A value is required.")
	}
}
