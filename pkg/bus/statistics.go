package bus

import (
	"fmt"
	"log/slog"
	"time"
)

type Statistics struct {
	RunTime       time.Duration
	PostCount     uint64
	DispatchFails uint64
	MaxDepth      int
}

func (s Statistics) Print() {
	slog.Info("router statistics",
		"run_time", fmt.Sprintf("%.2fs", s.RunTime.Seconds()),
		"post_count", s.PostCount,
		"dispatch_fails", s.DispatchFails,
		"max_depth", s.MaxDepth,
		"throughput", fmt.Sprintf("%.2f", float64(s.PostCount)/s.RunTime.Seconds()))
}
