package speech

import (
	"bytes"
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// openaiClient is the primary SpeechClient backend. The speech service's
// wire contract in §6 — STT multipart WAV in, TTS JSON
// {model,input,voice,response_format,speed} in, raw audio bytes out — is
// exactly OpenAI's Whisper transcription and TTS endpoints, so this
// provider talks to the real SDK rather than a bespoke HTTP client.
type openaiClient struct {
	baseClient
	sdk            *openai.Client
	model          string
	transcribeModel string
}

// NewOpenAIClient builds the default SpeechClient backend.
func NewOpenAIClient(apiKey string, cfg BucketConfig, maxRetries int) Client {
	sdk := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{
		baseClient:      newBaseClient(cfg, maxRetries),
		sdk:             &sdk,
		model:           "tts-1",
		transcribeModel: "whisper-1",
	}
}

func (c *openaiClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (*TranscriptResult, error) {
	wav := wrapWAV(pcm, sampleRate)
	approxSeconds := len(pcm) / (sampleRate * 2)

	var result *TranscriptResult
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, approxSeconds); err != nil {
			return err
		}
		resp, err := c.sdk.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
			Model: openai.AudioModel(c.transcribeModel),
			File:  bytes.NewReader(wav),
		})
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.openai.transcribe", err)
		}
		result = &TranscriptResult{Text: resp.Text, IsFinal: true}
		return nil
	})
	return result, err
}

func (c *openaiClient) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	format := opts.ResponseFormat
	if format == "" {
		format = "pcm"
	}
	var audio []byte
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(text)); err != nil {
			return err
		}
		resp, err := c.sdk.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Model:          openai.SpeechModel(c.model),
			Input:          text,
			Voice:          openai.AudioSpeechNewParamsVoice(opts.Voice),
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
			Speed:          openai.Float(orDefaultSpeed(opts.Speed)),
		})
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.openai.synthesize", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.openai.synthesize.read", err)
		}
		audio = data
		return nil
	})
	return audio, err
}

func (c *openaiClient) StreamTranscribe(ctx context.Context, results chan<- TaggedTranscript) (chan<- StreamFrame, error) {
	frames := make(chan StreamFrame, 64)
	go func() {
		defer close(results)
		var buf bytes.Buffer
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-frames:
				if !ok {
					return
				}
				buf.Write(f.PCM)
				// Batch into ~1s windows before calling the batch endpoint;
				// OpenAI's transcription API has no streaming mode, so this
				// backend approximates streaming with small batches.
				if buf.Len() >= 16000*2 {
					result, err := c.Transcribe(ctx, buf.Bytes(), 16000, Options{})
					buf.Reset()
					if err == nil && result != nil {
						results <- TaggedTranscript{Result: *result, Metadata: f.Metadata}
					}
				}
			}
		}
	}()
	return frames, nil
}

func orDefaultSpeed(s float64) float64 {
	if s <= 0 {
		return 1.0
	}
	return s
}

// wrapWAV produces a minimal 16-bit PCM WAV container around raw samples,
// the format the STT endpoint's multipart upload expects (§6).
func wrapWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * 2)
	writeStr := func(s string) { buf.WriteString(s) }
	writeU32 := func(v uint32) {
		buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	}
	writeU16 := func(v uint16) {
		buf.Write([]byte{byte(v), byte(v >> 8)})
	}
	writeStr("RIFF")
	writeU32(36 + dataLen)
	writeStr("WAVE")
	writeStr("fmt ")
	writeU32(16)
	writeU16(1) // PCM
	writeU16(1) // mono
	writeU32(uint32(sampleRate))
	writeU32(byteRate)
	writeU16(2) // block align
	writeU16(16) // bits per sample
	writeStr("data")
	writeU32(dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}
