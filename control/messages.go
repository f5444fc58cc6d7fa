package control

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type inbound struct {
	Type string          `json:"type"`
	Cmd  string          `json:"cmd"`
	Val  json.RawMessage `json:"val"`
}

type response struct {
	Type   string `json:"type"`
	Cmd    string `json:"cmd"`
	Status string `json:"status"`
	Value  string `json:"value,omitempty"`
}

type status struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

type register struct {
	Type   string `json:"type"`
	Device string `json:"device"`
}

type info struct {
	Type        string `json:"type"`
	Resolutions string `json:"resolutions"`
	Mode        string `json:"mode"`
	FPS         int    `json:"fps"`
}

type health struct {
	Type        string  `json:"type"`
	Frames      uint64  `json:"frames"`
	Dropped     uint64  `json:"dropped"`
	Failed      uint64  `json:"failed"`
	SuccessRate float64 `json:"successRate"`
	AvgMs       int64   `json:"avgMs"`
	FPS         float64 `json:"fps"`
	Mode        string  `json:"mode"`
	Resolution  string  `json:"resolution"`
	Health      string  `json:"health"`
	Uptime      string  `json:"uptime"`
}

// value returns val as a string whether it was sent as a JSON string,
// number or bool.
func value(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func parseInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", v)
	}
	return n, nil
}

func parseSwitch(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on":
		return true
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}
