package history

import (
	"fmt"
	"time"

	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

// DefaultStalenessTolerance is how far the declared updated_at may lag
// behind the newest history timestamp before the record is reported as
// stale. Writers stamp the record and the log in the same operation, so
// anything beyond clock granularity means a missed record write.
const DefaultStalenessTolerance = time.Second

// replayState is the accumulator folded over the event stream: the status
// the log implies so far and the newest valid timestamp seen.
type replayState struct {
	current types.Status
	tracked bool
	lastTS  time.Time
}

// Verify replays the item's event log and returns every finding: illegal
// transitions, declared-from drift, the final implied status versus the
// declared one, and record staleness against the log's newest timestamp.
//
// The tracked replay state is authoritative. When an event declares a from
// status that disagrees with it, the drift is reported but legality is
// still judged from the tracked state; the declared from is trusted only
// when no tracked state exists yet. An illegal transition still advances
// the tracked state to the event's target, so one bad jump does not
// cascade into spurious follow-on violations.
//
// tolerance bounds the staleness check; zero or negative means
// DefaultStalenessTolerance.
func Verify(log *Log, item *types.WorkItem, graph types.TransitionGraph, tolerance time.Duration) []result.Issue {
	if log.Missing {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultStalenessTolerance
	}
	var issues []result.Issue
	var st replayState

	for i, ev := range log.Events {
		if ts, err := parseTS(ev.TS); err != nil {
			issues = append(issues, result.Issue{
				File:    log.File,
				Rule:    result.RuleHistory,
				Message: fmt.Sprintf("event %d has no parseable timestamp: %v", i+1, err),
			})
		} else if ts.After(st.lastTS) {
			st.lastTS = ts
		}

		if i == 0 {
			if ev.Op != OpCreate {
				issues = append(issues, result.Issue{
					File:    log.File,
					Rule:    result.RuleHistory,
					Message: fmt.Sprintf("first event is %q, expected %q", ev.Op, OpCreate),
				})
			} else if log.LeadingMalformed {
				// The create decoded, but a malformed line came before
				// it, so it was not the log's actual first entry.
				issues = append(issues, result.Issue{
					File:    log.File,
					Rule:    result.RuleHistory,
					Message: fmt.Sprintf("log does not begin with a valid %q event", OpCreate),
				})
			}
		}

		switch ev.Op {
		case OpCreate:
			// Seeds the replay state; exempt from legality checking.
			if ev.To != "" {
				st.current = types.Status(ev.To)
				st.tracked = true
			}
		case OpStatus:
			issues = append(issues, st.applyStatus(log.File, item.Type, ev, graph)...)
		}
	}

	if st.tracked && st.current != item.Status {
		issues = append(issues, result.Issue{
			File:    log.File,
			Rule:    result.RuleHistory,
			Message: fmt.Sprintf("declared status %q does not match replayed status %q", item.Status, st.current),
		})
	}

	if !st.lastTS.IsZero() && !item.UpdatedAt.IsZero() &&
		item.UpdatedAt.Add(tolerance).Before(st.lastTS) {
		issues = append(issues, result.Issue{
			File: log.File,
			Rule: result.RuleHistory,
			Message: fmt.Sprintf("record updated_at %s predates last history event %s",
				item.UpdatedAt.UTC().Format(time.RFC3339), st.lastTS.UTC().Format(time.RFC3339)),
		})
	}

	return issues
}

// applyStatus folds one status event into the replay state, reporting any
// drift or illegal transition it exposes.
func (st *replayState) applyStatus(file string, typ types.ItemType, ev Event, graph types.TransitionGraph) []result.Issue {
	var issues []result.Issue

	if ev.To == "" {
		issues = append(issues, result.Issue{
			File:    file,
			Rule:    result.RuleHistory,
			Message: "status event has no target status",
		})
		return issues
	}
	to := types.Status(ev.To)

	// The effective source is the tracked state; the declared from only
	// fills in when nothing has been tracked yet.
	from := st.current
	haveFrom := st.tracked
	if ev.From != "" {
		if st.tracked && types.Status(ev.From) != st.current {
			issues = append(issues, result.Issue{
				File:    file,
				Rule:    result.RuleHistory,
				Message: fmt.Sprintf("event declares from %q but replay tracked %q", ev.From, st.current),
			})
		}
		if !st.tracked {
			from = types.Status(ev.From)
			haveFrom = true
		}
	}

	if haveFrom && !graph.IsLegal(typ, from, to) {
		issues = append(issues, result.Issue{
			File:    file,
			Rule:    result.RuleTransition,
			Message: fmt.Sprintf("illegal %s transition %q -> %q", typ, from, to),
		})
	}

	// Always advance, legal or not.
	st.current = to
	st.tracked = true
	return issues
}
