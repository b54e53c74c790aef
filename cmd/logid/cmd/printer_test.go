package cmd

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/logquery"
)

var ansiSeq = regexp.MustCompile("\033\\[[0-9;]*m")

func TestPrintQueryTable_AlignsColoredLevels(t *testing.T) {
	res := &logquery.QueryResult{
		LogID:  "abc",
		Region: "us",
		Messages: []filter.CanonicalMessage{
			{ID: "1-1", Group: filter.Group{PSM: "svc.api"}, Level: "ERROR", Location: "a.go:1",
				Values: []filter.Value{{Key: filter.MessageKey, Value: "boom"}}},
			{ID: "1-2", Group: filter.Group{PSM: "svc.api"}, Level: "INFO", Location: "b.go:2",
				Values: []filter.Value{{Key: filter.MessageKey, Value: "fine"}}},
			{ID: "1-3", Group: filter.Group{PSM: "svc.api"}, Location: "c.go:3",
				Values: []filter.Value{{Key: filter.MessageKey, Value: "bare"}}},
		},
	}

	var buf bytes.Buffer
	if err := newPrinter(&buf, config.OutputConfig{Format: "table"}).PrintQueryResult(res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), ansiRed+"ERROR") {
		t.Errorf("ERROR should be colored: %q", buf.String())
	}

	plain := ansiSeq.ReplaceAllString(buf.String(), "")
	col := -1
	for _, line := range strings.Split(plain, "\n") {
		switch {
		case strings.HasPrefix(line, "ID "):
			col = strings.Index(line, "LOCATION")
		case strings.HasPrefix(line, "1-"):
			loc := strings.Index(line, ".go:")
			if loc-1 != col {
				t.Errorf("location column at %d, header at %d: %q", loc-1, col, line)
			}
		}
	}
	if col < 0 {
		t.Fatalf("no table header in output:\n%s", plain)
	}
}

func TestColorLevel(t *testing.T) {
	for _, level := range []string{"ERROR", "warn", "INFO", ""} {
		got := colorLevel(level)
		if len(got)-len(ansiSeq.ReplaceAllString(got, "")) != len(ansiDefault)+len(ansiReset) {
			t.Errorf("colorLevel(%q) = %q: control bytes differ", level, got)
		}
	}
	if got := ansiSeq.ReplaceAllString(colorLevel(""), ""); got != "-" {
		t.Errorf("empty level = %q, want -", got)
	}
}
