package engine

import (
	"testing"

	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/inference"
	"github.com/samcharles93/pocket/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession panics or returns canned output.
type fakeSession struct {
	m          *model.Model
	state      inference.State
	generate   func() (string, error)
	next       func() (string, error)
	stopCalled int
}

func (f *fakeSession) Model() *model.Model    { return f.m }
func (f *fakeSession) State() inference.State { return f.state }
func (f *fakeSession) Streaming() bool        { return f.state == inference.Streaming }
func (f *fakeSession) Complete() bool         { return f.state != inference.Streaming }
func (f *fakeSession) Footprint() int64       { return 1024 }
func (f *fakeSession) Compact() int64         { return 0 }

func (f *fakeSession) Start(string, int) error {
	f.state = inference.Streaming
	return nil
}

func (f *fakeSession) Next() (string, error) { return f.next() }

func (f *fakeSession) Stop() {
	f.stopCalled++
	if f.state == inference.Streaming {
		f.state = inference.Idle
	}
}

func (f *fakeSession) Generate(string, int, bool) (string, inference.Stats, error) {
	out, err := f.generate()
	return out, inference.Stats{}, err
}

func engineWithFake(t *testing.T, fake *fakeSession) (*Engine, ContextHandle) {
	t.Helper()
	e := newEngine(Options{})
	e.newSession = func(m *model.Model, _ inference.Options) (session, error) {
		fake.m = m
		return fake, nil
	}
	mh, err := e.LoadModel(tinyModel(t))
	require.NoError(t, err)
	ch, err := e.CreateContext(mh)
	require.NoError(t, err)
	return e, ch
}

func TestGeneratePanicBecomesPlaceholder(t *testing.T) {
	t.Parallel()

	fake := &fakeSession{generate: func() (string, error) { panic("generate boom") }}
	e, ch := engineWithFake(t, fake)

	out, err := e.Generate(ch, "hello", 5)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderResponse, out)
	assert.Equal(t, 1, fake.stopCalled)
	assert.Equal(t, 1, e.SystemInfo().Contexts, "the context survives the fault")
}

func TestGenerateInternalErrorBecomesPlaceholder(t *testing.T) {
	t.Parallel()

	fake := &fakeSession{generate: func() (string, error) {
		return "", fault.New(fault.ErrInternal, "forward", "panic in Forward: boom")
	}}
	e, ch := engineWithFake(t, fake)

	out, err := e.Generate(ch, "hello", 5)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderResponse, out)
}

func TestGenerateEmptyOutputStaysEmpty(t *testing.T) {
	t.Parallel()

	fake := &fakeSession{generate: func() (string, error) { return "", nil }}
	e, ch := engineWithFake(t, fake)

	out, err := e.Generate(ch, "hello", 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, EmptyResponse, ResponseText(out))
	assert.Equal(t, "hi there", ResponseText("hi there"))
}

func TestGenerateOutOfMemoryPropagates(t *testing.T) {
	t.Parallel()

	fake := &fakeSession{generate: func() (string, error) {
		return "", fault.New(fault.ErrOutOfMemory, "forward", "scratch")
	}}
	e, ch := engineWithFake(t, fake)

	_, err := e.Generate(ch, "hello", 5)
	assert.True(t, fault.IsOutOfMemory(err), "got %v", err)
}

func TestNextStreamingTokenPanicStopsSession(t *testing.T) {
	t.Parallel()

	fake := &fakeSession{next: func() (string, error) { panic("next boom") }}
	e, ch := engineWithFake(t, fake)

	require.NoError(t, e.StartStreaming(ch, "hello", 5))
	tok, err := e.NextStreamingToken(ch)
	assert.Empty(t, tok)
	assert.True(t, fault.IsInternal(err), "got %v", err)
	assert.Equal(t, inference.Idle, fake.state)
	assert.True(t, e.IsStreamingComplete(ch))
}
