package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/config"
	"github.com/md-rashed-zaman/apptslots/libs/grpcx"
)

// healthcheck queries the local gRPC health service and returns a process
// exit code. It backs the container HEALTHCHECK.
func healthcheck() int {
	_ = config.LoadFile(config.String("CONFIG_FILE", ""))
	addr := "127.0.0.1:" + config.String("GRPC_PORT", "9093")
	service := config.String("SERVICE_NAME", "availability-service")
	if err := grpcx.CheckHealth(context.Background(), addr, service, grpcx.DialOptions{Timeout: 3 * time.Second}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
