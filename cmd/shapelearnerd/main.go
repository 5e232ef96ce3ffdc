// Command shapelearnerd runs the classification daemon with the default
// configuration search path. Use "shapelearner serve" to pass flags.
package main

import (
	"context"
	"log"
	"os"

	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
)

func main() {
	path := os.Getenv("SHAPELEARNER_CONFIG")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("shapelearnerd: %v", err)
	}
}
