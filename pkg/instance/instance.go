// Package instance names the running process for lock ownership and logs.
package instance

import (
	"os"
	"strconv"
)

// envKeys are checked in order. DYNO is set by the container platform.
var envKeys = []string{"LUZIMARKET_WORKER_ID", "DYNO"}

// GetID prefers an explicit worker id, then the platform dyno name, then
// hostname-pid.
func GetID() string {
	for _, key := range envKeys {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
