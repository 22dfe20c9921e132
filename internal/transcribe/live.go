package transcribe

import (
	"context"
	"io"

	"google.golang.org/genai"
)

// Event is one inbound message from the live endpoint.
type Event struct {
	// Transcript is an incremental fragment of the input transcription.
	Transcript string
}

// LiveSession is an open bidirectional audio session.
type LiveSession interface {
	SendAudio(pcm []byte) error
	// Receive blocks for the next message. It returns io.EOF once the
	// remote side has closed.
	Receive() (Event, error)
	Close() error
}

// Dialer opens live sessions.
type Dialer interface {
	Dial(ctx context.Context) (LiveSession, error)
}

// GeminiDialer connects to the Gemini Live API with audio responses and
// input transcription enabled.
type GeminiDialer struct {
	Client *genai.Client
	Model  string
}

func (d *GeminiDialer) Dial(ctx context.Context) (LiveSession, error) {
	session, err := d.Client.Live.Connect(ctx, d.Model, &genai.LiveConnectConfig{
		ResponseModalities:      []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, err
	}
	return &geminiSession{session: session}, nil
}

type geminiSession struct {
	session *genai.Session
}

// SendAudio uploads one PCM chunk; the SDK base64-encodes blob bytes on the wire.
func (g *geminiSession) SendAudio(pcm []byte) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: MIMEType},
	})
}

func (g *geminiSession) Receive() (Event, error) {
	msg, err := g.session.Receive()
	if err != nil {
		return Event{}, err
	}
	if msg == nil {
		return Event{}, io.EOF
	}
	var ev Event
	if sc := msg.ServerContent; sc != nil && sc.InputTranscription != nil {
		ev.Transcript = sc.InputTranscription.Text
	}
	return ev, nil
}

func (g *geminiSession) Close() error {
	return g.session.Close()
}
