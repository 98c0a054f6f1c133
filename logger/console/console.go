package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"finvault/e2ee/logger"

	"github.com/fatih/color"
)

// Console prints entries to a terminal. Errors and warnings are always
// shown; info needs Verbose and debug needs Debug.
type Console struct {
	Verbose bool
	Debug   bool

	mu  sync.Mutex
	out io.Writer
}

func New(verbose, debug bool) *Console {
	return &Console{
		Verbose: verbose,
		Debug:   debug,
		out:     os.Stderr,
	}
}

// WithWriter sends output to w instead of stderr.
func (c *Console) WithWriter(w io.Writer) *Console {
	c.out = w
	return c
}

func (c *Console) Log(level logger.Level, msg string, args ...any) {
	var prefix string
	switch level {
	case logger.DebugLevel:
		if !c.Debug {
			return
		}
		prefix = color.CyanString("[debug] ")
	case logger.InfoLevel:
		if !c.Verbose && !c.Debug {
			return
		}
		prefix = color.GreenString("[info] ")
	case logger.WarnLevel:
		prefix = color.YellowString("[warn] ")
	default:
		prefix = color.RedString("[error] ")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, prefix+msg+"\n", args...)
}

func (c *Console) Rotate() error { return nil }

func (c *Console) Stop() {}
