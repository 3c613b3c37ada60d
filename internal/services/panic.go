package services

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"amoflow/internal/models"
)

// PanicResponse turns a recovered panic into a failure envelope. The panic site
// (file and line) is included only in debug mode.
func PanicResponse(rec any, debug bool, now time.Time) models.Response {
	msg := fmt.Sprintf("processing error: %v", rec)
	if !debug {
		return models.NewResponse(false, msg, nil, now)
	}
	file, line := panicSite()
	return models.NewResponse(false, msg, map[string]any{"file": file, "line": line}, now)
}

// panicSite ищет первый кадр стека вне runtime, т.е. место вызова panic.
func panicSite() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	sawPanic := false
	for {
		f, more := frames.Next()
		if strings.HasPrefix(f.Function, "runtime.") {
			if f.Function == "runtime.gopanic" {
				sawPanic = true
			}
		} else if sawPanic {
			return f.File, f.Line
		}
		if !more {
			break
		}
	}
	return "unknown", 0
}
