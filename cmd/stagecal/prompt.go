package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/beamtools/stagecal/pkg/calibration"
)

// prompt asks the operator on the terminal before a correction is applied.
type prompt struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompt(in io.Reader, out io.Writer) *prompt {
	return &prompt{in: bufio.NewReader(in), out: out}
}

// Confirm implements calibration.Confirmer. Anything but yes declines.
func (p *prompt) Confirm(ctx context.Context, prop calibration.Proposal) (bool, error) {
	fmt.Fprintln(p.out, bold("Proposed correction (angle %g°):", prop.Angle))
	fmt.Fprintf(p.out, "  Sphere offset: x=%.2f y=%.2f px\n", prop.X, prop.Y)
	fmt.Fprintf(p.out, "  Centroid: row=%.2f col=%.2f\n", prop.Centroid.Row, prop.Centroid.Col)
	fmt.Fprintf(p.out, "  Move center x by %s, center z by %s, lateral x by %s\n",
		signedMM(prop.DeltaXCent), signedMM(prop.DeltaZCent), signedMM(prop.DeltaSampleX))
	fmt.Fprint(p.out, color.YellowString("Apply? [y/N] "))

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	// On cancel this goroutine stays blocked on stdin until the process
	// exits, which follows right away for a CLI run.
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
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

func signedMM(v float64) string {
	s := fmt.Sprintf("%+.4f mm", v)
	if v < 0 {
		return color.RedString(s)
	}
	return color.GreenString(s)
}
