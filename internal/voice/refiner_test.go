package voice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/nutrivision/internal/resilience"
	"github.com/MrWong99/nutrivision/internal/voice"
	"github.com/MrWong99/nutrivision/internal/voice/mock"
	"github.com/MrWong99/nutrivision/pkg/audio"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
	livemock "github.com/MrWong99/nutrivision/pkg/provider/live/mock"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
	llmmock "github.com/MrWong99/nutrivision/pkg/provider/llm/mock"
)

func TestLiveRefiner_Refine(t *testing.T) {
	t.Parallel()

	p := &livemock.Provider{Responses: []*live.Response{{
		Text:  "  Looks balanced. Enjoy it.  ",
		Audio: []audio.Chunk{{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 0}}},
	}}}
	r := voice.NewLiveRefiner(p, "Kore")

	frame := &live.Blob{MIMEType: "image/jpeg", Data: []byte{1}}
	res, err := r.Refine(context.Background(), voice.RefineRequest{
		Draft: "Score B.", Language: "en", Domain: "food", Frame: frame, OutputAudio: true,
	})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Text != "Looks balanced. Enjoy it." {
		t.Errorf("Text = %q", res.Text)
	}
	if len(res.Audio) != 1 {
		t.Errorf("Audio = %d chunks, want 1", len(res.Audio))
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	c := calls[0]
	if c.Voice != "Kore" || !c.OutputAudio || c.Frame != frame {
		t.Errorf("request = %+v", c)
	}
	if c.Temperature != voice.RefineTemperature || c.MaxOutputTokens != voice.RefineMaxTokens {
		t.Errorf("generation params = %v/%d", c.Temperature, c.MaxOutputTokens)
	}
}

func TestLiveRefiner_DropsAudioWhenNotRequested(t *testing.T) {
	t.Parallel()

	p := &livemock.Provider{Responses: []*live.Response{{Text: "ok", Audio: []audio.Chunk{{MIMEType: "audio/wav", Data: []byte{1}}}}}}
	res, err := voice.NewLiveRefiner(p, "").Refine(context.Background(), voice.RefineRequest{Draft: "d"})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(res.Audio) != 0 {
		t.Errorf("unexpected audio: %+v", res.Audio)
	}
}

func TestLLMRefiner_Refine(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Rewritten.\n"}}
	res, err := voice.NewLLMRefiner(p).Refine(context.Background(), voice.RefineRequest{
		Draft: "Score C.", Language: "de", Domain: "food", Audio: &live.Blob{MIMEType: "audio/webm", Data: []byte{1}},
	})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Text != "Rewritten." {
		t.Errorf("Text = %q", res.Text)
	}
	req := p.Calls()[0].Req
	if len(req.Messages) != 1 || llm.HasImages(req.Messages) {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.MaxTokens != voice.RefineMaxTokens || req.Temperature == nil || *req.Temperature != voice.RefineTemperature {
		t.Errorf("generation params = %+v", req)
	}
}

func TestLLMRefiner_Error(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Err: errors.New("503")}
	if _, err := voice.NewLLMRefiner(p).Refine(context.Background(), voice.RefineRequest{Draft: "d"}); err == nil {
		t.Error("expected error")
	}
}

func TestFallbackRefiner(t *testing.T) {
	t.Parallel()

	primary := &mock.Refiner{Errs: []error{errors.New("live down")}}
	secondary := &mock.Refiner{Results: []*voice.RefineResult{{Text: "from llm"}}}

	f := voice.NewFallbackRefiner(primary, "gemini-live", resilience.FallbackConfig{})
	f.AddFallback("llm", secondary)

	res, err := f.Refine(context.Background(), voice.RefineRequest{Draft: "d"})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Text != "from llm" {
		t.Errorf("Text = %q, want %q", res.Text, "from llm")
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls primary=%d secondary=%d", len(primary.Calls()), len(secondary.Calls()))
	}
	if _, ok := f.Breakers()["gemini-live"]; !ok {
		t.Error("missing breaker for primary")
	}
}

func TestFallbackRefiner_AllFail(t *testing.T) {
	t.Parallel()

	f := voice.NewFallbackRefiner(&mock.Refiner{Errs: []error{errors.New("a")}}, "a", resilience.FallbackConfig{})
	f.AddFallback("b", &mock.Refiner{Errs: []error{errors.New("b")}})

	_, err := f.Refine(context.Background(), voice.RefineRequest{Draft: "d"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
