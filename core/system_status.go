package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// SystemStatus は運用ダッシュボード向けの集約ステータス。
type SystemStatus struct {
	Ledger struct {
		Total      int64 `json:"total"`
		Fresh      int64 `json:"fresh"`
		WindowDays int   `json:"window_days"`
	} `json:"ledger"`
	Redis    string           `json:"redis"`
	Counters map[string]int64 `json:"counters"`
	Memory   struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CollectSystemStatus で現在のステータスを集約する。
// 台帳の集計に失敗した場合のみエラーを返す。
func CollectSystemStatus(ctx context.Context, ledger FreshnessLedger, checker *FreshnessChecker, metrics *MetricsService, startedAt time.Time) (SystemStatus, error) {
	var st SystemStatus

	// Ledger
	window := checker.Window()
	stats, err := ledger.Stats(ctx, checker.now().Add(-window))
	if err != nil {
		return st, err
	}
	st.Ledger.Total = stats.Total
	st.Ledger.Fresh = stats.Fresh
	st.Ledger.WindowDays = int(window / (24 * time.Hour))

	// Counters (best-effort)
	switch {
	case metrics == nil:
		st.Redis = "disabled"
	case metrics.Ping(ctx) != nil:
		st.Redis = "unavailable"
	default:
		st.Redis = "ok"
	}
	st.Counters, _ = metrics.Counters(ctx)
	if st.Counters == nil {
		st.Counters = map[string]int64{}
	}

	// Memory (best-effort from /proc/meminfo)
	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	// Uptime
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	return st, nil
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
