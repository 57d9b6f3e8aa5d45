// Command g8sim runs the kernel as a standalone simulation: it builds
// a Kernel from the default table sizes, optionally loads a Lua demo
// script to populate threads and events, drives the system tick at a
// configurable rate, and can fire simulated aperiodic interrupts on a
// schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/g8kernel/g8rtos/internal/luascript"
	"github.com/g8kernel/g8rtos/kernel"
)

func main() {
	demoPath := flag.String("demo", "", "path to a Lua script registering threads and events")
	tickInterval := flag.Duration("tick-interval", time.Millisecond, "interval between system ticks")
	runFor := flag.Duration("run-for", 5*time.Second, "how long to run before stopping (0 = until interrupted)")
	fireIRQs := flag.String("fire-irq", "", "comma-separated irq:delay pairs to fire during the run, e.g. 2:500ms,3:1s")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: g8sim [options]\n\nRuns the kernel as a standalone simulation.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := kernel.DefaultConfig()
	cfg.TickInterval = *tickInterval
	k := kernel.New(cfg, nil)

	var script *luascript.Host
	if *demoPath != "" {
		h, err := luascript.Load(*demoPath, k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "g8sim: loading %s: %v\n", *demoPath, err)
			os.Exit(1)
		}
		script = h
		defer script.Close()
	}

	schedule, err := parseIRQSchedule(*fireIRQs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "g8sim: -fire-irq: %v\n", err)
		os.Exit(1)
	}

	if err := k.Launch(); err != nil {
		fmt.Fprintf(os.Stderr, "g8sim: launch: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *runFor > 0 {
		var runCancel context.CancelFunc
		ctx, runCancel = context.WithTimeout(ctx, *runFor)
		defer runCancel()
	}

	var g errgroup.Group
	g.Go(func() error {
		return k.Run(ctx)
	})
	for _, ev := range schedule {
		ev := ev
		g.Go(func() error {
			t := time.NewTimer(ev.delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				return k.FireIRQ(ev.irq)
			}
		})
	}

	if err := g.Wait(); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "g8sim: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("g8sim: stopped at tick %d with %d threads alive\n", k.SysTime(), k.ThreadCount())
}

type irqEvent struct {
	irq   int
	delay time.Duration
}

func parseIRQSchedule(spec string) ([]irqEvent, error) {
	if spec == "" {
		return nil, nil
	}
	var events []irqEvent
	for _, part := range strings.Split(spec, ",") {
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed entry %q, want irq:delay", part)
		}
		irq, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad irq in %q: %w", part, err)
		}
		delay, err := time.ParseDuration(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad delay in %q: %w", part, err)
		}
		events = append(events, irqEvent{irq: irq, delay: delay})
	}
	return events, nil
}
