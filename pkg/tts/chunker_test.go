package tts_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/teslashibe/go-coach/pkg/tts"
)

func TestChunker_ShortText(t *testing.T) {
	c := tts.NewChunker(0)
	chunks := c.Split("  Hello there.  ")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Hello there." || !chunks[0].Final {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}

	if got := c.Split("   "); got != nil {
		t.Errorf("expected no chunks for blank text, got %v", got)
	}
}

func TestChunker_PrefersSentenceEnds(t *testing.T) {
	sentence := "This sentence is about forty characters. "
	text := strings.Repeat(sentence, 10)

	c := tts.NewChunker(200)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := utf8.RuneCountInString(ch.Text); n > 200 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if !strings.HasSuffix(ch.Text, ".") {
			t.Errorf("chunk %d does not end at a sentence: %q", i, ch.Text)
		}
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.Final != (i == len(chunks)-1) {
			t.Errorf("chunk %d final=%v", i, ch.Final)
		}
	}
}

func TestChunker_FallsBackToWords(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks := tts.NewChunker(60).Split(text)
	for i, ch := range chunks {
		if utf8.RuneCountInString(ch.Text) > 60 {
			t.Errorf("chunk %d too long", i)
		}
		if strings.Contains(ch.Text, "wor ") || strings.HasSuffix(ch.Text, "wo") {
			t.Errorf("chunk %d split inside a word: %q", i, ch.Text)
		}
	}
	joined := strings.Join(func() []string {
		var out []string
		for _, ch := range chunks {
			out = append(out, ch.Text)
		}
		return out
	}(), " ")
	if joined != strings.TrimSpace(text) {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestChunker_HardSplit(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := tts.NewChunker(100).Split(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 100 || len(chunks[2].Text) != 50 {
		t.Errorf("unexpected sizes %d/%d", len(chunks[0].Text), len(chunks[2].Text))
	}
}

func TestChunker_Info(t *testing.T) {
	text := strings.Repeat("Short sentence here. ", 20)
	info := tts.NewChunker(100).Info(text)
	if info.ChunkCount != len(info.Chunks) {
		t.Errorf("count mismatch %d vs %d", info.ChunkCount, len(info.Chunks))
	}
	if info.MaxChunkUsed > 100 {
		t.Errorf("max chunk %d exceeds limit", info.MaxChunkUsed)
	}
	if info.AvgChunkSize <= 0 {
		t.Error("expected positive average")
	}
	if !info.Chunks[len(info.Chunks)-1].Final {
		t.Error("last chunk should be final")
	}
}

func TestChunked_JoinsInOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	inner := tts.NewMock()
	inner.SynthesizeFunc = func(ctx context.Context, req tts.Request) (*tts.AudioResult, error) {
		mu.Lock()
		seen[req.Text] = true
		mu.Unlock()
		if req.VoiceID != "v1" {
			t.Errorf("voice not forwarded: %q", req.VoiceID)
		}
		return &tts.AudioResult{Audio: []byte(req.Text[:1])}, nil
	}

	c := tts.NewChunked(inner, tts.NewChunker(21), 2, nil)
	text := "Alpha is first here. Bravo is second one. Charlie comes third."
	res, err := c.SynthesizeChunked(context.Background(), tts.Request{Text: text, VoiceID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "ABC" {
		t.Errorf("expected audio in chunk order, got %q", res.Audio)
	}
	if res.ChunkCount != 3 {
		t.Errorf("expected 3 chunks, got %d", res.ChunkCount)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct requests, got %d", len(seen))
	}
}

func TestChunked_FailsOnChunkError(t *testing.T) {
	boom := errors.New("backend down")
	inner := tts.NewMock()
	inner.SynthesizeFunc = func(ctx context.Context, req tts.Request) (*tts.AudioResult, error) {
		if strings.HasPrefix(req.Text, "Bravo") {
			return nil, boom
		}
		return &tts.AudioResult{Audio: []byte("x")}, nil
	}

	c := tts.NewChunked(inner, tts.NewChunker(21), 0, nil)
	_, err := c.SynthesizeChunked(context.Background(), tts.Request{Text: "Alpha is first here. Bravo is second one."})
	if !errors.Is(err, boom) {
		t.Fatalf("expected chunk error, got %v", err)
	}

	_, err = c.SynthesizeChunked(context.Background(), tts.Request{Text: " "})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}
