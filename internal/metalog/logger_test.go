package metalog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type bufferCloser struct {
	bytes.Buffer
	closed   int
	order    *[]string
	name     string
	closeErr error
	writeErr error
}

func (b *bufferCloser) Write(p []byte) (int, error) {
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	return b.Buffer.Write(p)
}

func (b *bufferCloser) Close() error {
	b.closed++
	if b.order != nil {
		*b.order = append(*b.order, b.name)
	}
	return b.closeErr
}

func TestFormatList(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{name: "empty", input: nil, want: "[]"},
		{name: "single", input: []string{"A"}, want: "['A']"},
		{name: "multiple", input: []string{"A", "B"}, want: "['A', 'B']"},
		{name: "quote", input: []string{"it's"}, want: `['it\'s']`},
		{name: "backslash", input: []string{`a\b`}, want: `['a\\b']`},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatList(tc.input); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestLoggerWritesLinesIncrementally(t *testing.T) {
	labels := &bufferCloser{}
	threads := &bufferCloser{}
	l := New(labels, threads)

	if err := l.LogThread("T1", []string{"Work"}); err != nil {
		t.Fatalf("log thread: %v", err)
	}
	if err := l.LogThreadMessageIDs("T1", []string{"A", "B"}); err != nil {
		t.Fatalf("log ids: %v", err)
	}
	if labels.String() != "T1: ['Work']\n" {
		t.Fatalf("labels log %q", labels.String())
	}
	if threads.String() != "T1: ['A', 'B']\n" {
		t.Fatalf("threads log %q", threads.String())
	}

	if err := l.LogThread("T2", nil); err != nil {
		t.Fatalf("log thread: %v", err)
	}
	if got := strings.Count(labels.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 label lines, got %d", got)
	}
}

func TestLoggerWithoutDestinations(t *testing.T) {
	l := New(nil, nil)
	if err := l.LogThread("T1", []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.LogThreadMessageIDs("T1", []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCloseOrderAndOnce(t *testing.T) {
	var order []string
	labels := &bufferCloser{order: &order, name: "labels"}
	threads := &bufferCloser{order: &order, name: "threads"}
	l := New(labels, threads)

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if strings.Join(order, ",") != "labels,threads" {
		t.Fatalf("unexpected close order %v", order)
	}
	if labels.closed != 1 || threads.closed != 1 {
		t.Fatalf("expected one close each, got %d and %d", labels.closed, threads.closed)
	}
}

func TestCloseErrorsStillCloseBoth(t *testing.T) {
	boom := errors.New("boom")
	labels := &bufferCloser{closeErr: boom}
	threads := &bufferCloser{}
	err := New(labels, threads).Close()
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if threads.closed != 1 {
		t.Fatalf("threads log not closed after labels failure")
	}
}

func TestWriteErrorSurfaces(t *testing.T) {
	boom := errors.New("disk full")
	l := New(&bufferCloser{writeErr: boom}, nil)
	if err := l.LogThread("T1", nil); !errors.Is(err, boom) {
		t.Fatalf("expected disk full, got %v", err)
	}
}
