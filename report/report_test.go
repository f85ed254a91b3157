package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tweet-publisher/email"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Warning(context.Background(), "careful")
	l.Success(context.Background(), "done")

	dec := json.NewDecoder(&buf)
	want := []struct{ level, msg, outcome string }{
		{"WARN", "careful", "warning"},
		{"INFO", "done", "success"},
	}
	for _, w := range want {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode log record: %v", err)
		}
		if rec["level"] != w.level || rec["msg"] != w.msg || rec["outcome"] != w.outcome {
			t.Errorf("record = %v, want level=%s msg=%s outcome=%s", rec, w.level, w.msg, w.outcome)
		}
	}
}

type fakeMailer struct {
	levels []email.Level
	err    error
}

func (f *fakeMailer) SendOutcome(_ context.Context, level email.Level, _ string) error {
	f.levels = append(f.levels, level)
	return f.err
}

func TestMail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	quiet := &fakeMailer{}
	NewMail(quiet, false, logger).Warning(context.Background(), "w")
	NewMail(quiet, false, logger).Success(context.Background(), "s")
	if len(quiet.levels) != 1 || quiet.levels[0] != email.LevelSuccess {
		t.Errorf("levels = %v, want only success", quiet.levels)
	}

	loud := &fakeMailer{err: errors.New("smtp down")}
	m := NewMail(loud, true, logger)
	m.Warning(context.Background(), "w")
	m.Success(context.Background(), "s")
	if len(loud.levels) != 2 {
		t.Errorf("levels = %v, want warning and success despite errors", loud.levels)
	}
}

type countingReporter struct{ warnings, successes int }

func (c *countingReporter) Warning(context.Context, string) { c.warnings++ }
func (c *countingReporter) Success(context.Context, string) { c.successes++ }

func TestMulti(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	m := Multi{a, b}
	m.Warning(context.Background(), "w")
	m.Success(context.Background(), "s")
	m.Success(context.Background(), "s")
	for _, r := range []*countingReporter{a, b} {
		if r.warnings != 1 || r.successes != 2 {
			t.Errorf("reporter got %d warnings, %d successes", r.warnings, r.successes)
		}
	}
}
