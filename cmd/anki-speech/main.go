// Command anki-speech narrates Anki notes and keeps the audio in sync with the
// note text.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "anki-speech exited with error: %v\n", err)
		os.Exit(1)
	}
}
