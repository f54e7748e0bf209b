// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	m "github.com/mkhts/navqc"
)

// Decider for the --confirm answer. "ask" prompts only when stdin is a terminal;
// otherwise nobody can answer and the run stops.
func newDecider(confirm string, stdin io.Reader, prompt io.Writer) (m.MismatchDecider, error) {
	switch confirm {
	case "yes":
		return m.FixedDecider(true), nil
	case "no":
		return m.FixedDecider(false), nil
	case "ask":
		if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			return &promptDecider{in: bufio.NewReader(stdin), out: prompt}, nil
		}
		return m.DeciderFunc(func(_ context.Context, s m.MismatchSummary) (bool, error) {
			fmt.Fprintf(prompt, "%sno terminal to confirm on, stopping (use --confirm yes to continue)\n", s)
			return false, nil
		}), nil
	}
	return nil, fmt.Errorf("unknown --confirm value %q", confirm)
}

// promptDecider asks on the terminal
type promptDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func (d *promptDecider) ConfirmMismatch(ctx context.Context, s m.MismatchSummary) (bool, error) {
	fmt.Fprintf(d.out, "\nThe survey and the route may not share a coordinate system.\n%sContinue anyway? [y/N] ", s)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		l, err := d.in.ReadString('\n')
		ch <- answer{l, err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(d.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
