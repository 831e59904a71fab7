package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	renderer *TableRenderer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	// Auto-detect color support
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewTableRenderer(useColor),
	}
}

// NewPlainFormatter creates a formatter that never emits color codes.
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	f := NewOutputFormatter(w)
	f.useColor = false
	f.renderer = NewTableRenderer(false)
	return f
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case JoinBegin:
		return fmt.Sprintf("%s %s %s join of %s",
			latency,
			f.colorize("===", color.FgYellow),
			stringData(event, "kind"),
			f.renderer.RenderJoinOperands(event))

	case JoinOrientation:
		if boolData(event, "flipped") {
			return fmt.Sprintf("%s Swapped operands: %s outer rows, %s inner rows (indices reported unswapped)",
				latency,
				f.colorizeCount("", intData(event, "outer.rows")),
				f.colorizeCount("", intData(event, "inner.rows")))
		}
		return ""

	case JoinDegenerate:
		return fmt.Sprintf("%s Inner table empty, %s join answered without launch: %s",
			latency,
			stringData(event, "kind"),
			f.colorizeCount("pairs", intData(event, "result.size")))

	case JoinEstimate:
		return fmt.Sprintf("%s Estimated %s over %d blocks",
			latency,
			f.colorizeCount("pairs", intData(event, "estimate")),
			intData(event, "grid.size"))

	case JoinAllocate:
		return fmt.Sprintf("%s Attempt %d: allocated capacity for %s",
			latency,
			intData(event, "attempt"),
			f.colorizeCount("pairs", intData(event, "capacity")))

	case JoinMaterialize:
		return fmt.Sprintf("%s Attempt %d: wrote %s into capacity %d",
			latency,
			intData(event, "attempt"),
			f.colorizeCount("pairs", intData(event, "written")),
			intData(event, "capacity"))

	case JoinRetry:
		return fmt.Sprintf("%s %s Capacity %d too small for %d pairs, growing to %d",
			latency,
			f.colorize("↻", color.FgYellow),
			intData(event, "capacity.old"),
			intData(event, "written"),
			intData(event, "capacity.new"))

	case LaunchPlanned:
		cached := ""
		if boolData(event, "cached") {
			cached = " (cached)"
		}
		return fmt.Sprintf("%s Launch %s<<<%d, %d>>>: %d resident blocks × %d multiprocessors%s",
			latency,
			f.colorize(stringData(event, "kernel"), color.FgCyan),
			intData(event, "grid.size"),
			intData(event, "block.size"),
			intData(event, "resident.blocks"),
			intData(event, "multiprocessors"),
			cached)

	case JoinComplete:
		if !boolData(event, "success") {
			return fmt.Sprintf("%s %s Join failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Data["error"])
		}
		return fmt.Sprintf("%s %s Join done with %s after %d attempts.",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("pairs", intData(event, "result.size")),
			intData(event, "attempts"))

	case ErrorDevice:
		return fmt.Sprintf("%s %s Device fault during %s: %v",
			latency,
			f.colorize("✗", color.FgRed),
			stringData(event, "phase"),
			event.Data["error"])

	case ErrorJoinKind:
		return fmt.Sprintf("%s %s Unsupported join kind %s",
			latency,
			f.colorize("✗", color.FgRed),
			stringData(event, "kind"))

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// RenderJoinOperands renders the left and right operands of a JoinBegin event.
func (r *TableRenderer) RenderJoinOperands(event Event) string {
	left := r.RenderTable(stringsData(event, "left.columns"), intData(event, "left.rows"))
	right := r.RenderTable(stringsData(event, "right.columns"), intData(event, "right.rows"))
	if r.useColor {
		return left + color.YellowString(" × ") + right
	}
	return left + " × " + right
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := strings.TrimSpace(fmt.Sprintf("%d %s", count, label))

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "pairs":
		return color.MagentaString(text)
	case "rows":
		return color.CyanString(text)
	default:
		return color.BlueString(text)
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func intData(e Event, key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func boolData(e Event, key string) bool {
	b, _ := e.Data[key].(bool)
	return b
}

func stringData(e Event, key string) string {
	if v, ok := e.Data[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func stringsData(e Event, key string) []string {
	s, _ := e.Data[key].([]string)
	return s
}

// ConsoleHandler creates a handler that prints formatted events to stdout.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stdout).Handle
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
