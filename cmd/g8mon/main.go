// Command g8mon is an interactive terminal monitor for a running
// kernel: it puts the terminal in raw mode, reads a line at a time,
// and dispatches small commands (thread table dump, manual tick,
// simulated interrupt fire) against a live Kernel.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/g8kernel/g8rtos/internal/luascript"
	"github.com/g8kernel/g8rtos/kernel"
)

func main() {
	demoPath := flag.String("demo", "", "path to a Lua script registering threads and events")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: g8mon [options]\n\nInteractive kernel monitor.\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands once running:\n")
		fmt.Fprintf(os.Stderr, "  threads          dump the thread table\n")
		fmt.Fprintf(os.Stderr, "  tick [n]         advance the system clock by n ticks (default 1)\n")
		fmt.Fprintf(os.Stderr, "  fire <irq>       simulate irq's hardware line asserting\n")
		fmt.Fprintf(os.Stderr, "  queue <i>        dump diagnostic stats for queue i\n")
		fmt.Fprintf(os.Stderr, "  quit             exit the monitor\n")
	}
	flag.Parse()

	k := kernel.New(kernel.DefaultConfig(), nil)

	var script *luascript.Host
	if *demoPath != "" {
		h, err := luascript.Load(*demoPath, k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "g8mon: loading %s: %v\n", *demoPath, err)
			os.Exit(1)
		}
		script = h
		defer script.Close()
	}

	if err := k.Launch(); err != nil {
		fmt.Fprintf(os.Stderr, "g8mon: launch: %v\n", err)
		os.Exit(1)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		runCommandLoop(k, os.Stdin, os.Stdout)
		return
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "g8mon: failed to set raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	terminal := term.NewTerminal(stdioRW{os.Stdin, os.Stdout}, "g8mon> ")
	runInteractive(k, terminal)
}

// stdioRW adapts separate stdin/stdout files to the single
// io.ReadWriter term.Terminal expects.
type stdioRW struct {
	r *os.File
	w *os.File
}

func (s stdioRW) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s stdioRW) Write(p []byte) (int, error) { return s.w.Write(p) }

// runInteractive drives the monitor through an x/term line editor once
// stdin is a real TTY, giving history and basic line editing for free.
func runInteractive(k *kernel.Kernel, terminal *term.Terminal) {
	fmt.Fprintln(terminal, "g8rtos monitor. Type 'help' for commands, 'quit' to exit.")
	for {
		line, err := terminal.ReadLine()
		if err != nil {
			return
		}
		if !dispatch(k, strings.TrimSpace(line), terminal) {
			return
		}
	}
}

// runCommandLoop is the non-interactive fallback used when stdin is
// not a terminal (pipes, CI, tests): plain line-buffered reading with
// no raw mode or line editing.
func runCommandLoop(k *kernel.Kernel, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !dispatch(k, strings.TrimSpace(scanner.Text()), out) {
			return
		}
	}
}

// dispatch runs one command line against k, writing output to w.
// It returns false when the monitor should exit.
func dispatch(k *kernel.Kernel, line string, w interface{ Write([]byte) (int, error) }) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	out := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}

	switch fields[0] {
	case "quit", "exit":
		return false

	case "help":
		out("threads | tick [n] | fire <irq> | queue <i> | quit\n")

	case "threads":
		for _, info := range k.Threads() {
			marker := " "
			if info.Running {
				marker = "*"
			}
			out("%s %-6d %-12s prio=%-3d state=%-9s wake=%d\n",
				marker, info.ID, info.Name, info.Priority, info.State, info.WakeAt)
		}

	case "tick":
		n := 1
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil {
				n = v
			}
		}
		for i := 0; i < n; i++ {
			k.Tick()
		}
		out("tick: systime=%d\n", k.SysTime())

	case "fire":
		if len(fields) < 2 {
			out("usage: fire <irq>\n")
			break
		}
		irq, err := strconv.Atoi(fields[1])
		if err != nil {
			out("bad irq: %v\n", err)
			break
		}
		if err := k.FireIRQ(irq); err != nil {
			out("fire irq %d: %v\n", irq, err)
		}

	case "queue":
		if len(fields) < 2 {
			out("usage: queue <i>\n")
			break
		}
		i, err := strconv.Atoi(fields[1])
		if err != nil {
			out("bad index: %v\n", err)
			break
		}
		stats, err := k.QueueStats(i)
		if err != nil {
			out("queue %d: %v\n", i, err)
			break
		}
		out("queue %d: size=%d/%d lost=%d\n", i, stats.Size, stats.Capacity, stats.LostData)

	default:
		out("unknown command %q, try 'help'\n", fields[0])
	}
	return true
}
