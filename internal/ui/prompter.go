package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// ErrInvalidChoice is returned by Choose when the answer names no option.
var ErrInvalidChoice = errors.New("invalid choice")

// Prompter reads answers from the user. io.EOF means input is closed.
// Every call returns ctx.Err() once ctx is cancelled.
type Prompter interface {
	// Ask shows prompt and returns the trimmed answer.
	Ask(ctx context.Context, prompt string) (string, error)
	// Choose returns the 0-based index of the picked option.
	Choose(ctx context.Context, title string, options []string) (int, error)
	// Confirm returns true for yes or y.
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// NewPrompter returns huh forms when in is a terminal and plain is false,
// and a line prompter otherwise.
func NewPrompter(in *os.File, out io.Writer, plain bool) Prompter {
	if !plain && term.IsTerminal(int(in.Fd())) {
		return &FormPrompter{}
	}
	return NewLinePrompter(in, out)
}

type lineResult struct {
	text string
	err  error
}

// LinePrompter reads one line per answer. It works with pipes and scripted input.
// Lines are read by a background goroutine so a blocked read does not hold up cancellation.
type LinePrompter struct {
	reader *bufio.Reader
	writer io.Writer

	lines     chan lineResult
	startOnce sync.Once
}

func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{reader: bufio.NewReader(r), writer: w}
}

func (p *LinePrompter) pump() {
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" {
			p.lines <- lineResult{text: text}
		}
		if err != nil {
			p.lines <- lineResult{err: err}
			close(p.lines)
			return
		}
	}
}

func (p *LinePrompter) Ask(ctx context.Context, prompt string) (string, error) {
	p.startOnce.Do(func() {
		p.lines = make(chan lineResult)
		go p.pump()
	})

	fmt.Fprint(p.writer, prompt)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}

func (p *LinePrompter) Choose(ctx context.Context, title string, options []string) (int, error) {
	if title != "" {
		fmt.Fprintln(p.writer, title)
	}
	for i, o := range options {
		fmt.Fprintf(p.writer, "%d. %s\n", i+1, o)
	}

	answer, err := p.Ask(ctx, fmt.Sprintf("\nSelect an option (1-%d): ", len(options)))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(options) {
		return 0, ErrInvalidChoice
	}
	return n - 1, nil
}

func (p *LinePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	answer, err := p.Ask(ctx, prompt+" (yes/no): ")
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

// FormPrompter renders each question as a huh form.
type FormPrompter struct{}

func (p *FormPrompter) Ask(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(strings.TrimSpace(prompt)).Value(&answer),
	)).RunWithContext(ctx)
	if err != nil {
		return "", formErr(err)
	}
	return strings.TrimSpace(answer), nil
}

func (p *FormPrompter) Choose(ctx context.Context, title string, options []string) (int, error) {
	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(fmt.Sprintf("%d. %s", i+1, o), i)
	}

	var idx int
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title(title).Options(opts...).Value(&idx),
	)).RunWithContext(ctx)
	if err != nil {
		return 0, formErr(err)
	}
	return idx, nil
}

func (p *FormPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(strings.TrimSpace(prompt)).Affirmative("Yes").Negative("No").Value(&ok),
	)).RunWithContext(ctx)
	if err != nil {
		return false, formErr(err)
	}
	return ok, nil
}

// formErr maps an aborted form (ctrl+c, esc) to closed input.
func formErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return io.EOF
	}
	return err
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y":
		return true
	default:
		return false
	}
}
