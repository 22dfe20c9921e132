package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []Request
	replies  []string
	errs     []error
}

func (f *fakeGenerator) Generate(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", nil
}

var testEquipment = calllog.Equipment{ProductType: "Thermostat", Brand: "Daikin"}

func newTestClient(gen Generator, retries int) *Client {
	c := New(gen, Options{
		FastModel:      "fast-model",
		DeepModel:      "deep-model",
		ThinkingBudget: 32768,
		Retries:        retries,
	})
	c.retryInterval = time.Millisecond
	return c
}

func TestSummarize_Fast(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`{"subject":"Thermostat HS","issue":"Écran noir","solution":"Reset","nextSteps":"RAS","sentiment":"positive"}`,
	}}
	c := newTestClient(gen, 0)

	got, err := c.Summarize(context.Background(), "écran noir, reset ok", testEquipment)
	if err != nil {
		t.Fatalf("Summarize error = %v", err)
	}
	if got.Subject != "Thermostat HS" || got.Sentiment != calllog.Positive {
		t.Errorf("Summarize = %+v", got)
	}

	req := gen.requests[0]
	if req.Model != "fast-model" {
		t.Errorf("Model = %q, want fast-model", req.Model)
	}
	if req.ThinkingBudget != 0 {
		t.Errorf("fast mode should not send a thinking budget, got %d", req.ThinkingBudget)
	}
	if !strings.Contains(req.Prompt, "Marque: Daikin, Produit: Thermostat") {
		t.Errorf("prompt missing equipment context: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "écran noir, reset ok") {
		t.Errorf("prompt missing notes: %q", req.Prompt)
	}
	if len(req.Schema.Required) != 5 {
		t.Errorf("schema Required = %v, want 5 fields", req.Schema.Required)
	}
	if got := req.Schema.Properties["sentiment"].Enum; len(got) != 3 {
		t.Errorf("sentiment enum = %v", got)
	}
}

func TestDeepAnalyze(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`{"subject":"S","issue":"Cause racine","solution":"Mesures","nextSteps":"Remplacement","sentiment":"negative"}`,
	}}
	c := newTestClient(gen, 0)

	got, err := c.DeepAnalyze(context.Background(), "carte brûlée", testEquipment)
	if err != nil {
		t.Fatalf("DeepAnalyze error = %v", err)
	}
	if got.Sentiment != calllog.Negative {
		t.Errorf("Sentiment = %q, want negative", got.Sentiment)
	}

	req := gen.requests[0]
	if req.Model != "deep-model" || req.ThinkingBudget != 32768 {
		t.Errorf("request = model %q budget %d", req.Model, req.ThinkingBudget)
	}
	if !strings.Contains(req.Prompt, "Équipement : Daikin - Thermostat.") {
		t.Errorf("deep prompt missing equipment: %q", req.Prompt)
	}
	if desc := req.Schema.Properties["issue"].Description; desc != "Analyse des causes racines et probabilités" {
		t.Errorf("issue description = %q", desc)
	}
}

func TestSummarize_EmptyNotesRejected(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestClient(gen, 0)

	_, err := c.Summarize(context.Background(), "   ", testEquipment)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("error = %v, want INVALID_REQUEST", err)
	}
	if len(gen.requests) != 0 {
		t.Error("generator should not be called for empty notes")
	}
}

func TestSummarize_EmptyBodyIsNeutral(t *testing.T) {
	c := newTestClient(&fakeGenerator{replies: []string{""}}, 0)

	got, err := c.Summarize(context.Background(), "notes", testEquipment)
	if err != nil {
		t.Fatalf("Summarize error = %v", err)
	}
	want := calllog.CallSummary{Sentiment: calllog.Neutral}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
}

func TestSummarize_RemoteFailure(t *testing.T) {
	gen := &fakeGenerator{errs: []error{fmt.Errorf("connection reset")}}
	c := newTestClient(gen, 0)

	_, err := c.Summarize(context.Background(), "notes", testEquipment)
	if !errors.Is(err, errors.ErrRemoteFailure) {
		t.Fatalf("error = %v, want REMOTE_FAILURE", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("attempts = %d, want exactly 1 with no retries", len(gen.requests))
	}
}

func TestSummarize_RetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{&StatusError{Code: 503, Err: fmt.Errorf("unavailable")}, nil},
		replies: []string{"", `{"subject":"ok","sentiment":"neutral"}`},
	}
	c := newTestClient(gen, 2)

	got, err := c.Summarize(context.Background(), "notes", testEquipment)
	if err != nil {
		t.Fatalf("Summarize error = %v", err)
	}
	if got.Subject != "ok" {
		t.Errorf("Subject = %q, want ok", got.Subject)
	}
	if len(gen.requests) != 2 {
		t.Errorf("attempts = %d, want 2", len(gen.requests))
	}
}

func TestSummarize_ClientErrorIsPermanent(t *testing.T) {
	gen := &fakeGenerator{errs: []error{&StatusError{Code: 400, Err: fmt.Errorf("bad request")}}}
	c := newTestClient(gen, 3)

	_, err := c.Summarize(context.Background(), "notes", testEquipment)
	if !errors.Is(err, errors.ErrRemoteFailure) {
		t.Fatalf("error = %v, want REMOTE_FAILURE", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("attempts = %d, want 1 for a 4xx", len(gen.requests))
	}
}

func TestSummarize_InvalidJSON(t *testing.T) {
	c := newTestClient(&fakeGenerator{replies: []string{"pas du json"}}, 0)

	_, err := c.Summarize(context.Background(), "notes", testEquipment)
	if !errors.Is(err, errors.ErrRemoteFailure) {
		t.Fatalf("error = %v, want REMOTE_FAILURE", err)
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want calllog.CallSummary
	}{
		{
			name: "fenced json",
			in:   "```json\n{\"subject\":\"A\",\"sentiment\":\"positive\"}\n```",
			want: calllog.CallSummary{Subject: "A", Sentiment: calllog.Positive},
		},
		{
			name: "bare fence",
			in:   "```\n{\"subject\":\"B\",\"sentiment\":\"negative\"}\n```",
			want: calllog.CallSummary{Subject: "B", Sentiment: calllog.Negative},
		},
		{
			name: "unknown sentiment",
			in:   `{"subject":"C","sentiment":"angry"}`,
			want: calllog.CallSummary{Subject: "C", Sentiment: calllog.Neutral},
		},
		{
			name: "whitespace only",
			in:   "  \n ",
			want: calllog.CallSummary{Sentiment: calllog.Neutral},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSummary(tt.in)
			if err != nil {
				t.Fatalf("parseSummary error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseSummary = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSummarize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{errs: []error{context.Canceled}}
	c := newTestClient(gen, 2)

	_, err := c.Summarize(ctx, "notes", testEquipment)
	if !errors.Is(err, errors.ErrCancelled) {
		t.Fatalf("error = %v, want CANCELLED", err)
	}
}
