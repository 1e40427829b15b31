// Command test-music is a manual test for the music transport.
// It waits 3 seconds, then sends one media command to the host.
// Start a media player before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-music [--driver media-keys|log] [--cmd 1-5]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/music"
)

func main() {
	driver := flag.String("driver", "media-keys", "music driver: media-keys or log")
	code := flag.Uint("cmd", uint(protocol.MusicPlayPause), "music command: 1 play/pause, 2 previous, 3 next, 4 volume up, 5 volume down")
	flag.Parse()

	cmd := protocol.MusicCommand(*code)
	if !cmd.Valid() {
		fmt.Printf("Error: %d is not a music command\n", *code)
		return
	}

	fmt.Printf("Will send %s using %q in 3 seconds...\n", cmd, *driver)
	fmt.Println("Start a media player now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	player, err := music.New(*driver, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := player.Do(cmd); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("\nDone!")
}
