// Command authzd serves the authorization gateway and its identity, resource
// and admin APIs.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/nebryx/authz/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "config/authzd.yaml", "path to the YAML config file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}
	if err := runtime.RunAPI(ctx); err != nil {
		log.Fatalf("run api: %v", err)
	}
}
