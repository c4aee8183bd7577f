package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Output receives every diagnostic line. Stdout is reserved for the
// host build system, so this defaults to stderr.
var Output io.Writer = os.Stderr

// exit is swapped out by tests
var exit = os.Exit

func write(tag, format string, a ...any) {
	fmt.Fprint(Output, tag)
	fmt.Fprint(Output, ": ")
	fmt.Fprintf(Output, format, a...)
	fmt.Fprint(Output, "\n")
}

func Error(format string, a ...any) {
	write(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	write(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	write(color.RedString("fatal"), format, a...)
	exit(1)
}

func Info(format string, a ...any) {
	write(color.HiGreenString("info"), format, a...)
}

// Step prints a right-aligned green verb followed by a subject, e.g.
// "   Cloning https://github.com/cisco/libsrtp.git".
func Step(verb, format string, a ...any) {
	fmt.Fprintf(Output, "%12s %s\n", color.HiGreenString(verb), fmt.Sprintf(format, a...))
}

// IndentWriter prefixes every line written through it with Indent.
type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
	buf       []byte
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	w.buf = w.buf[:0]
	for _, c := range p {
		if !w.didIndent {
			w.buf = append(w.buf, w.Indent...)
			w.didIndent = true
		}
		w.buf = append(w.buf, c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if _, err := w.W.Write(w.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}
