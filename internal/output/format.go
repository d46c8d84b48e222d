package output

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/logbook/internal/model"
)

// lineOverhead approximates the bytes FormatLine adds around the message and
// stack trace: "(Exception)", the "\n " separator and a long timestamp.
const lineOverhead = 64

// Format controls how entries are rendered as text.
type Format struct {
	Timestamps     bool // prefix each line with "[timestamp]: "
	FullTimestamps bool // "HH:MM:SS 1.25s at #42" instead of "HH:MM:SS"
}

// FormatTimestamp renders ts in the short or long form.
func FormatTimestamp(ts model.Timestamp, full bool) string {
	clock := ts.WallClock.Format("15:04:05")
	if !full {
		return clock
	}
	return fmt.Sprintf("%s %.2fs at #%d", clock, ts.Elapsed, ts.Tick)
}

// AppendLine writes one entry to sb as "[ts]: (Severity)message\n stackTrace".
// ts is only used when f.Timestamps is set.
func (f Format) AppendLine(sb *strings.Builder, e *model.CollapsedEntry, ts model.Timestamp) {
	if f.Timestamps {
		sb.WriteByte('[')
		sb.WriteString(FormatTimestamp(ts, f.FullTimestamps))
		sb.WriteString("]: ")
	}
	sb.WriteByte('(')
	sb.WriteString(e.Severity.String())
	sb.WriteByte(')')
	sb.WriteString(e.Message)
	sb.WriteString("\n ")
	sb.WriteString(e.StackTrace)
}

// Line returns the rendered form of a single entry.
func (f Format) Line(e *model.CollapsedEntry, ts model.Timestamp) string {
	var sb strings.Builder
	sb.Grow(EstimateLen(e))
	f.AppendLine(&sb, e, ts)
	return sb.String()
}

// EstimateLen returns a size hint for the rendered form of e.
func EstimateLen(e *model.CollapsedEntry) int {
	return len(e.Message) + len(e.StackTrace) + lineOverhead
}
