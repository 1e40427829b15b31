// Command test-buttons is a manual test for the button bindings.
// Run it, then press keys 1-5 to see which button and action fire.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-buttons [--stdin]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/marsh/internal/buttons"
	"github.com/chaz8081/marsh/internal/config"
)

func main() {
	stdin := flag.Bool("stdin", false, "read key names from stdin instead of the keyboard hook")
	flag.Parse()

	var bindings []buttons.Binding
	for _, b := range config.DefaultButtons() {
		bindings = append(bindings, buttons.Binding{Key: b.Key, Button: b.Button, Action: b.Action})
		fmt.Printf("  key %-3s -> button %d (%s)\n", b.Key, b.Button, b.Action)
	}
	fmt.Println("Press Ctrl+C to exit.")

	var source buttons.Source = buttons.NewListener(bindings)
	if *stdin {
		source = buttons.NewLineReader(os.Stdin, bindings)
	}

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		source.Stop()
	}()

	// Read events
	go func() {
		for ev := range source.Events() {
			fmt.Printf(">>> button %d: %s\n", ev.Button, ev.Action)
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	source.Start()
	fmt.Println("Done.")
}
