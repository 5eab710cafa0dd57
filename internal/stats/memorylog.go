package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rescap/internal/benchmark"
	"rescap/internal/reservoir"
)

// LogFileName names the append-only result log of a model family.
func LogFileName(kind reservoir.Kind, topology, suffix string) (string, error) {
	switch kind {
	case reservoir.KindESN:
		return "MemoryCapacity_log_ESN" + suffix + ".txt", nil
	case reservoir.KindRON:
		return "MemoryCapacity_log_RON_" + topology + suffix + ".txt", nil
	case reservoir.KindDeepRON:
		return "MemoryCapacity_log_DEEPRON" + suffix + ".txt", nil
	default:
		return "", fmt.Errorf("%w: %q", reservoir.ErrUnknownKind, kind)
	}
}

func PlotFileName(suffix string, maxDelay int) string {
	return "MemoryCapacity_plot" + suffix + strconv.Itoa(maxDelay) + ".png"
}

// FormatLogLine renders "key: value, " for every field followed by the
// three overall memory capacities. The result has no trailing newline.
func FormatLogLine(fields []benchmark.Field, train, valid, test float64) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString(", ")
	}
	fmt.Fprintf(&b, "Memory capacity for train: %s for valid: %s for test: %s",
		formatMemory(train), formatMemory(valid), formatMemory(test))
	return b.String()
}

// AppendLogLine appends line to dir/name, creating the file when needed.
func AppendLogLine(dir, name, line string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// formatMemory prints the shortest exact form and always keeps a decimal
// point, so whole numbers read as 12.0 rather than 12.
func formatMemory(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}
