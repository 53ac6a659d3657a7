// identity.go resolves a worker's stable instance identity, grounded on
// the resolve_worker_id logic in original_source/scripts/s3_queue_worker.py:
// prefer an explicit WORKER_ID environment override, then the cloud
// instance ID (via IMDSv2), then hostname, then a random suffix so two
// workers never collide even when every other source is unavailable.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"time"
)

const imdsTokenURL = "http://169.254.169.254/latest/api/token"
const imdsInstanceIDURL = "http://169.254.169.254/latest/meta-data/instance-id"

// ResolveWorkerID returns the worker identity to claim shards under.
func ResolveWorkerID(ctx context.Context) string {
	if v := os.Getenv("WORKER_ID"); v != "" {
		return v
	}
	if id, ok := imdsInstanceID(ctx); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-" + randSuffix()
}

// imdsInstanceID queries the AWS EC2 IMDSv2 endpoint with a short timeout;
// any failure (not running on EC2, network disabled in a container) is
// silently treated as "unavailable", never as an error to surface.
func imdsInstanceID(ctx context.Context) (string, bool) {
	client := &http.Client{Timeout: 300 * time.Millisecond}

	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPut, imdsTokenURL, nil)
	if err != nil {
		return "", false
	}
	tokenReq.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", "60")
	tokenResp, err := client.Do(tokenReq)
	if err != nil {
		return "", false
	}
	defer tokenResp.Body.Close()
	if tokenResp.StatusCode != http.StatusOK {
		return "", false
	}
	tokenBuf := make([]byte, 256)
	n, _ := tokenResp.Body.Read(tokenBuf)
	token := string(tokenBuf[:n])
	if token == "" {
		return "", false
	}

	idReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imdsInstanceIDURL, nil)
	if err != nil {
		return "", false
	}
	idReq.Header.Set("X-aws-ec2-metadata-token", token)
	idResp, err := client.Do(idReq)
	if err != nil {
		return "", false
	}
	defer idResp.Body.Close()
	if idResp.StatusCode != http.StatusOK {
		return "", false
	}
	idBuf := make([]byte, 64)
	n, _ = idResp.Body.Read(idBuf)
	id := string(idBuf[:n])
	if id == "" {
		return "", false
	}
	return id, true
}

func randSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
