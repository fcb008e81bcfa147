package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// NewInstanceID builds a unique process identifier based on hostname, pid, and random suffix.
func NewInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "blinkshop"
	}
	pid := os.Getpid()
	return fmt.Sprintf("%s:%d:%s", hostname, pid, randomHex(6))
}

// uploadObjectName names one shortcut image: <unix-ms>-<batch>-<index>-image<ext>.
// batch is unique per upload call so concurrent sellers never share a key.
func uploadObjectName(at time.Time, batch string, index int, ext string) string {
	return fmt.Sprintf("%d-%s-%d-image%s", at.UnixMilli(), batch, index, ext)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
