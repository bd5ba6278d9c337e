// murmurd runs the murmur daemon without the CLI wrapper, for service
// managers that want a dedicated binary to supervise.
package main

import (
	"context"
	"log"

	"murmur/internal/config"
	"murmur/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("murmurd: %v", err)
	}
}
