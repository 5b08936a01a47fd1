package main

import (
	"log"
	"os"

	"github.com/cordum/stageflow/core/controlplane/gateway"
	"github.com/cordum/stageflow/core/infra/buildinfo"
	"github.com/cordum/stageflow/core/infra/config"
)

func main() {
	log.Println("stageflow gateway starting...")
	buildinfo.Log("stageflow-gateway")
	cfg, err := config.LoadFile(os.Getenv("STAGEFLOW_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("gateway error: %v", err)
	}
}
