// Package chat runs the blocking prompt/response loop on top of the turn
// driver.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// TurnDriver posts one user turn and blocks until it resolves.
type TurnDriver interface {
	PostMessage(ctx context.Context, content string) error
}

// Outcome is how the loop ended.
type Outcome int

const (
	// OutcomeExit means the user ended the session and wants remote
	// resources cleaned up.
	OutcomeExit Outcome = iota
	// OutcomeSave means the user ended the session keeping the agent for
	// continued external use.
	OutcomeSave
)

// Loop reads prompts from an input source and routes them to the driver
// until a sentinel command ends the session.
type Loop struct {
	in     *bufio.Scanner
	out    io.Writer
	driver TurnDriver

	promptColor *color.Color
	errorColor  *color.Color
}

// New creates a Loop reading from in and writing prompts and errors to out.
func New(in io.Reader, out io.Writer, driver TurnDriver) *Loop {
	return &Loop{
		in:          bufio.NewScanner(in),
		out:         out,
		driver:      driver,
		promptColor: color.New(color.FgGreen),
		errorColor:  color.New(color.FgMagenta),
	}
}

// Run blocks until the user enters a sentinel command or the input source is
// exhausted. Blank input re-prompts without posting a turn. Turn errors are
// reported and the loop continues; they never end the session.
func (l *Loop) Run(ctx context.Context) Outcome {
	for {
		l.promptColor.Fprint(l.out, "\nEnter your query (type exit or save to finish): ")

		if !l.in.Scan() {
			// EOF on the input source ends the session like exit.
			fmt.Fprintln(l.out)
			return OutcomeExit
		}

		prompt := strings.TrimSpace(l.in.Text())
		if prompt == "" {
			continue
		}

		switch strings.ToLower(prompt) {
		case "exit":
			return OutcomeExit
		case "save":
			return OutcomeSave
		}

		if err := l.driver.PostMessage(ctx, prompt); err != nil {
			l.errorColor.Fprintf(l.out, "An error occurred posting the message: %v\n", err)
		}
	}
}
