package instance

import "os"

const fallbackID = "worker-0"

// ID names this process among worker replicas. ROHA_WORKER_ID wins, then the
// hostname, which is the pod name under Kubernetes.
func ID() string {
	if id := os.Getenv("ROHA_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
