package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"sightline/pkg/logging"
)

// key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// maxParamLen drops bulky attributes such as source locations and errors.
const maxParamLen = 20

// logEntry is one parsed slog text record.
type logEntry struct {
	Time    string            `json:"time,omitempty"` // HH:MM:SS
	Level   string            `json:"level,omitempty"`
	Message string            `json:"msg"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// latestLogResponse is returned by GET /api/log/latest.
type latestLogResponse struct {
	Log     string     `json:"log"`
	Entries []logEntry `json:"entries"`
}

// handleLatestLog returns the newest server log line, summarized, plus the
// last n parsed entries (default 1).
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	n := 1
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > logging.DefaultRecentLines {
			writeError(w, http.StatusBadRequest, fmt.Errorf("n must be between 1 and %d", logging.DefaultRecentLines))
			return
		}
		n = v
	}

	resp := latestLogResponse{Entries: []logEntry{}}
	for _, line := range logging.RecentLogs.Lines(n) {
		resp.Entries = append(resp.Entries, parseLogLine(line))
	}
	if k := len(resp.Entries); k > 0 {
		resp.Log = resp.Entries[k-1].String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseLogLine splits a slog text record into its parts. Unstructured input
// comes back as the message.
func parseLogLine(raw string) logEntry {
	var e logEntry
	for _, m := range logRegex.FindAllStringSubmatch(raw, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch m[1] {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				e.Time = t.Format("15:04:05")
			}
		case "level":
			e.Level = val
		case "msg":
			e.Message = val
		default:
			if len(val) > maxParamLen {
				continue
			}
			if e.Attrs == nil {
				e.Attrs = make(map[string]string)
			}
			e.Attrs[m[1]] = val
		}
	}
	if e.Message == "" {
		return logEntry{Message: raw}
	}
	return e
}

// String renders "HH:MM:SS msg (k=v, k=v)" with attributes sorted by key.
func (e logEntry) String() string {
	out := e.Message
	if e.Time != "" {
		out = e.Time + " " + out
	}
	if len(e.Attrs) == 0 {
		return out
	}
	params := make([]string, 0, len(e.Attrs))
	for k, v := range e.Attrs {
		params = append(params, k+"="+v)
	}
	sort.Strings(params)
	return fmt.Sprintf("%s (%s)", out, strings.Join(params, ", "))
}
