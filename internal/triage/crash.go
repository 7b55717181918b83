package triage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/signalnine/triage/internal/trajectory"
)

type CrashKind string

const (
	CrashContextWindow CrashKind = "context_window_overflow"
	CrashTimeout       CrashKind = "timeout"
	CrashOther         CrashKind = "other"
)

var CrashKinds = []CrashKind{CrashContextWindow, CrashTimeout, CrashOther}

// ShortMessageWidth bounds the display width of CrashRecord.Short.
const ShortMessageWidth = 120

// CrashRecord describes a trial that never produced a transcript.
type CrashRecord struct {
	TaskID         int       `json:"task_id"`
	Trial          int       `json:"trial"`
	Kind           CrashKind `json:"kind"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	TokenLimit     int       `json:"token_limit,omitempty"`
	OverflowAmount int       `json:"overflow_amount,omitempty"`
	Message        string    `json:"message,omitempty"`
	Short          string    `json:"error_short"`
}

// CrashClass is the outcome of inspecting an error message.
type CrashClass struct {
	Kind       CrashKind
	TokensUsed int
	TokenLimit int
}

func (c CrashClass) Overflow() int {
	if c.Kind != CrashContextWindow {
		return 0
	}
	return c.TokensUsed - c.TokenLimit
}

type crashMatcher func(msg string) (CrashClass, bool)

// crashMatchers run in priority order; the first match wins.
var crashMatchers = []crashMatcher{
	matchTokenOverflow,
	matchTimeout,
}

var (
	tokensUsedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`your request has (\d+) input tokens`),
		regexp.MustCompile(`resulted in (\d+) tokens`),
		regexp.MustCompile(`you requested (\d+) tokens`),
		regexp.MustCompile(`tokens_used\s*[=:]\s*(\d+)`),
	}
	tokenLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`maximum context length is (\d+) tokens`),
		regexp.MustCompile(`\blimit\s*[=:]\s*(\d+)`),
	}
	// Whole words or exception names only: "runtime output" is not a timeout.
	timeoutPattern = regexp.MustCompile(`(?i)\btimed[- ]out\b|\btime[- ]?outs?\b|timeout(?:error|exception)?\b`)
)

func firstInt(patterns []*regexp.Regexp, msg string) (int, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func matchTokenOverflow(msg string) (CrashClass, bool) {
	used, ok := firstInt(tokensUsedPatterns, msg)
	if !ok {
		return CrashClass{}, false
	}
	limit, ok := firstInt(tokenLimitPatterns, msg)
	if !ok || used <= limit {
		return CrashClass{}, false
	}
	return CrashClass{Kind: CrashContextWindow, TokensUsed: used, TokenLimit: limit}, true
}

func matchTimeout(msg string) (CrashClass, bool) {
	if timeoutPattern.MatchString(msg) {
		return CrashClass{Kind: CrashTimeout}, true
	}
	return CrashClass{}, false
}

// ClassifyCrash applies the matchers in priority order and falls back to
// CrashOther.
func ClassifyCrash(msg string) CrashClass {
	for _, m := range crashMatchers {
		if c, ok := m(msg); ok {
			return c
		}
	}
	return CrashClass{Kind: CrashOther}
}

func NewCrashRecord(r trajectory.TrialRecord) CrashRecord {
	msg := r.ErrorMessage()
	c := ClassifyCrash(msg)
	rec := CrashRecord{
		TaskID:  r.TaskID,
		Trial:   r.Trial,
		Kind:    c.Kind,
		Message: msg,
	}
	switch c.Kind {
	case CrashContextWindow:
		rec.TokensUsed = c.TokensUsed
		rec.TokenLimit = c.TokenLimit
		rec.OverflowAmount = c.Overflow()
		rec.Short = "Context window exceeded (" + strconv.Itoa(c.TokensUsed) + "/" + strconv.Itoa(c.TokenLimit) + " tokens)"
	case CrashTimeout:
		rec.Short = "API request timed out"
	default:
		first, _, _ := strings.Cut(msg, "\n")
		rec.Short = runewidth.Truncate(strings.TrimSpace(first), ShortMessageWidth, "")
	}
	return rec
}
