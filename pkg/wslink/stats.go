// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wslink

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

type ServerStats struct {
	NumConns      int     `json:"numconns"`
	NumGoroutines int     `json:"numgoroutines"`
	RSS           uint64  `json:"rss,omitempty"`
	CPUPercent    float64 `json:"cpupercent,omitempty"`
}

func (s *Server) GetStats() ServerStats {
	rtn := ServerStats{
		NumConns:      len(s.ConnIds()),
		NumGoroutines: runtime.NumGoroutine(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return rtn
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		rtn.RSS = memInfo.RSS
	}
	if cpuPct, err := proc.CPUPercent(); err == nil {
		rtn.CPUPercent = cpuPct
	}
	return rtn
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	barr, err := json.Marshal(s.GetStats())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeJson)
	w.Write(barr)
}
