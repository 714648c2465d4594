package sandbox

import (
	"os"
	"regexp"
	"strconv"

	"hwjudge/internal/grader/model"
)

// timing holds the parsed time(1) report in milliseconds. Fields that
// could not be parsed carry the -1 sentinel.
type timing struct {
	realMs int64
	userMs int64
	sysMs  int64
}

var timeLineRe = regexp.MustCompile(`(?m)^(real|user|sys)\s+(\d+)m([0-9.]+)s`)

// parseTimeFile reads the `2> time.txt` report written by the shell's time
// keyword. A missing or garbled file never fails the run; the caller gets
// sentinels and the test completes without timing data.
func parseTimeFile(path string) timing {
	t := timing{
		realMs: model.TimeUnavailableMs,
		userMs: model.TimeUnavailableMs,
		sysMs:  model.TimeUnavailableMs,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	for _, m := range timeLineRe.FindAllStringSubmatch(string(raw), -1) {
		mins, err1 := strconv.ParseInt(m[2], 10, 64)
		secs, err2 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		ms := mins*60_000 + int64(secs*1000)
		switch m[1] {
		case "real":
			t.realMs = ms
		case "user":
			t.userMs = ms
		case "sys":
			t.sysMs = ms
		}
	}
	return t
}
