// Package speech implements §4.3 SpeechClient: rate-limited transcribe/
// synthesize calls against an external speech service, with a three
// dimensional token-bucket limiter and batch/streaming modes.
package speech

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"golang.org/x/time/rate"
)

// TranscriptResult is the STT response shape, mirroring the speech
// service's JSON body (§6): text, optional language, optional segments.
type TranscriptResult struct {
	Text       string
	Language   string
	Segments   []Segment
	Confidence float64
	IsFinal    bool
}

// Segment is one STT word/phrase timing entry.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Options carries per-call tuning shared by transcribe/synthesize.
type Options struct {
	Voice          string
	ResponseFormat string
	Speed          float64
	Language       string
}

// StreamFrame is one PCM frame pushed into the streaming transcriber,
// tagged with caller-supplied metadata used to correlate back to a
// CallTask (§4.3).
type StreamFrame struct {
	PCM      []byte
	Metadata map[string]string
}

// Client is the provider-agnostic SpeechClient surface. Concrete
// implementations (openai, deepgram, google, azure) live alongside this
// file, selected by SpeechConfig.Provider.
type Client interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (*TranscriptResult, error)
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
	// StreamTranscribe starts a streaming session: frames pushed on the
	// returned channel are transcribed incrementally; results arrive on
	// results tagged with the metadata from the originating frame.
	StreamTranscribe(ctx context.Context, results chan<- TaggedTranscript) (chan<- StreamFrame, error)
}

// TaggedTranscript correlates a streamed result back to its caller metadata.
type TaggedTranscript struct {
	Result   TranscriptResult
	Metadata map[string]string
}

// BucketConfig is the three rate dimensions from §4.3.
type BucketConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	UnitsPerHour      int // characters for TTS, audio-seconds for STT
}

// limiter composes three token buckets; a call must acquire from all three
// to proceed. Refill is elapsed-time-proportional via rate.Limiter.
type limiter struct {
	perMinute *rate.Limiter
	perHour   *rate.Limiter
	units     *rate.Limiter
}

func newLimiter(cfg BucketConfig) *limiter {
	return &limiter{
		perMinute: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), max(1, cfg.RequestsPerMinute)),
		perHour:   rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerHour)/3600.0), max(1, cfg.RequestsPerHour)),
		units:     rate.NewLimiter(rate.Limit(float64(cfg.UnitsPerHour)/3600.0), max(1, cfg.UnitsPerHour)),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// allow waits for capacity in all three buckets, consuming `units` from the
// unit bucket. Returns RateLimited immediately if ctx is done first.
func (l *limiter) allow(ctx context.Context, units int) error {
	if err := l.perMinute.Wait(ctx); err != nil {
		return dialererr.New(dialererr.KindRateLimited, "speech.rate_limit.minute", err)
	}
	if err := l.perHour.Wait(ctx); err != nil {
		return dialererr.New(dialererr.KindRateLimited, "speech.rate_limit.hour", err)
	}
	if units <= 0 {
		units = 1
	}
	burst := l.units.Burst()
	if units > burst {
		units = burst // never request more than the bucket can ever hold
	}
	if err := l.units.WaitN(ctx, units); err != nil {
		return dialererr.New(dialererr.KindRateLimited, "speech.rate_limit.units", err)
	}
	return nil
}

// retryPolicy implements §4.3: up to N attempts with exponential backoff on
// network errors and HTTP 429; non-retryable on other 4xx.
type retryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p retryPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		delay := p.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
	}
	return lastErr
}

// isRetryable classifies network errors and HTTP 429 as retryable; any
// other 4xx is not, per §4.3.
func isRetryable(err error) bool {
	var de *dialererr.Error
	if errors.As(err, &de) {
		return de.Kind == dialererr.KindTransientNetwork || de.Kind == dialererr.KindRateLimited
	}
	var he *httpStatusError
	if errors.As(err, &he) {
		if he.Status == http.StatusTooManyRequests {
			return true
		}
		if he.Status >= 400 && he.Status < 500 {
			return false
		}
		return true // 5xx and transport-level are retryable
	}
	return true
}

// httpStatusError wraps a non-2xx HTTP response for retry classification.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string { return "speech service http error" }

// resampleLinear16 upsamples/downsamples 16-bit mono PCM by linear
// interpolation between samples. The call-leg's native rate is G.711's
// 8kHz (§4.1); the Google and Azure backends expect 16kHz linear PCM, so
// their Transcribe resamples before handing audio to the provider.
func resampleLinear16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	in := make([]int16, len(pcm)/2)
	for i := range in {
		in[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	outLen := len(in) * toRate / fromRate
	if outLen < 1 {
		return pcm
	}
	out := make([]byte, outLen*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		var sample int16
		if idx+1 < len(in) {
			sample = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
		} else {
			sample = in[len(in)-1]
		}
		out[2*i] = byte(uint16(sample))
		out[2*i+1] = byte(uint16(sample) >> 8)
	}
	return out
}

// baseClient factors the rate limiter + retry policy shared by every
// provider implementation; concrete providers embed it and implement the
// actual wire call.
type baseClient struct {
	mu      sync.Mutex
	limits  *limiter
	retries retryPolicy
}

func newBaseClient(cfg BucketConfig, maxRetries int) baseClient {
	return baseClient{
		limits:  newLimiter(cfg),
		retries: retryPolicy{MaxAttempts: maxRetries, BaseDelay: 200 * time.Millisecond},
	}
}
