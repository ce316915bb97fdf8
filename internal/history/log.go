// Package history reads per-item event logs and replays them against the
// transition graph. The log is append-only JSONL, one event per line, and
// file order is taken as chronological truth: replay is a forward-only
// single pass with no timestamp-based reordering.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tallyboard/tally/internal/result"
)

// Event ops that the replay machine interprets. Any other op (field edits,
// comments) passes through untouched apart from the timestamp check.
const (
	OpCreate = "create"
	OpStatus = "status"
)

// Event is one decoded history log line.
type Event struct {
	TS    string `json:"ts"`
	Actor string `json:"actor,omitempty"`
	Op    string `json:"op"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Limits caps how much of a history file is read. Logs are unbounded by
// design, so a runaway file degrades to a fatal history issue for that
// item instead of unbounded memory growth.
type Limits struct {
	MaxEvents    int
	MaxLineBytes int
}

// DefaultLimits returns the caps used when the workspace config sets none.
func DefaultLimits() Limits {
	return Limits{MaxEvents: 10000, MaxLineBytes: 1 << 20}
}

// Log is a read history file: the events that decoded plus every issue the
// read produced. Missing distinguishes a file that does not exist (history
// rules are skipped) from one that exists but yielded zero valid events.
// LeadingMalformed records that a malformed line preceded the first decoded
// event, so replay cannot attest what the log actually began with.
type Log struct {
	File             string // workspace-relative path, used on issues
	Events           []Event
	Issues           []result.Issue
	Missing          bool
	LeadingMalformed bool
}

// Read loads the history log at absPath. relPath is the workspace-relative
// path recorded on issues. Read never returns an error: every failure mode
// degrades to issues on the returned Log.
func Read(absPath, relPath string, lim Limits) *Log {
	log := &Log{File: relPath}

	f, err := os.Open(absPath) // #nosec G304 -- path derived from workspace layout
	if err != nil {
		if os.IsNotExist(err) {
			log.Missing = true
			log.Issues = append(log.Issues, result.Issue{
				File:    relPath,
				Rule:    result.RuleHistory,
				Message: "history file missing",
			})
			return log
		}
		log.Issues = append(log.Issues, result.Issue{
			File:    relPath,
			Rule:    result.RuleIO,
			Message: fmt.Sprintf("reading history: %v", err),
		})
		return log
	}
	defer f.Close()

	if lim.MaxEvents <= 0 || lim.MaxLineBytes <= 0 {
		lim = DefaultLimits()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), lim.MaxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(log.Events) >= lim.MaxEvents {
			log.Issues = append(log.Issues, result.Issue{
				File:    relPath,
				Rule:    result.RuleHistory,
				Message: fmt.Sprintf("history log exceeds %d events; remainder not replayed", lim.MaxEvents),
			})
			return log
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			if len(log.Events) == 0 {
				log.LeadingMalformed = true
			}
			log.Issues = append(log.Issues, result.Issue{
				File:    relPath,
				Rule:    result.RuleHistory,
				Message: fmt.Sprintf("malformed event on line %d: %v", lineNo, err),
			})
			continue
		}
		log.Events = append(log.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		log.Issues = append(log.Issues, result.Issue{
			File:    relPath,
			Rule:    result.RuleHistory,
			Message: fmt.Sprintf("scanning history on line %d: %v", lineNo+1, err),
		})
		return log
	}

	if len(log.Events) == 0 {
		log.Issues = append(log.Issues, result.Issue{
			File:    relPath,
			Rule:    result.RuleHistory,
			Message: "history file has no valid events",
		})
	}
	return log
}

// parseTS parses an event timestamp. RFC3339 with or without sub-second
// precision, which is what the writers emit.
func parseTS(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
