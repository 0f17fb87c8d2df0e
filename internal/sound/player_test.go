package sound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/mediacache"
	"github.com/Seednode/earwax/internal/speech"
)

var fast = Timing{
	Ceiling:       300 * time.Millisecond,
	ReadyFallback: 50 * time.Millisecond,
	ErrorGrace:    20 * time.Millisecond,
	RetryInitial:  5 * time.Millisecond,
	RetryMax:      3,
}

type fakeHandle struct {
	src    string
	events chan Event
	plays  atomic.Int32
	closed atomic.Int32
	onPlay func(n int32, h *fakeHandle) error
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) Play() error {
	n := h.plays.Add(1)
	if h.onPlay != nil {
		return h.onPlay(n, h)
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

func (h *fakeHandle) send(t EventType) {
	h.events <- Event{Type: t, Detail: string(t)}
}

// fakeDevice hands out scripted handles. setup runs on every new handle
// before Load returns.
type fakeDevice struct {
	mu      sync.Mutex
	handles []*fakeHandle
	setup   func(h *fakeHandle)
	err     error
}

func (d *fakeDevice) Load(src string) (Handle, error) {
	if d.err != nil {
		return nil, d.err
	}

	h := &fakeHandle{src: src, events: make(chan Event, 16)}
	if d.setup != nil {
		d.setup(h)
	}

	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()

	return h, nil
}

func (d *fakeDevice) last() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.handles[len(d.handles)-1]
}

func testRegistry() *catalog.Registry {
	return catalog.NewRegistry([]catalog.Sound{
		{ID: "1", Name: "airhorn", Kind: catalog.KindClip},
		{ID: "2", Name: "sad trombone", Kind: catalog.KindClip},
		{ID: "tts-x", Name: "hello", Kind: catalog.KindSpeech, Text: "hello there"},
	})
}

func newTestPlayer(d Device, opts ...Option) *Player {
	opts = append([]Option{WithTiming(fast), WithMediaURL("https://media.example/")}, opts...)

	return NewPlayer(testRegistry(), d, opts...)
}

func TestPlayEndsAfterReady(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.onPlay = func(int32, *fakeHandle) error {
			h.send(EventPlaying)
			h.send(EventEnded)
			return nil
		}
		h.send(EventReady)
	}}

	require.NoError(t, newTestPlayer(d).Play("1"))

	h := d.last()
	assert.Equal(t, int32(1), h.plays.Load())
	assert.Equal(t, int32(1), h.closed.Load())
	assert.Equal(t, "https://media.example/Audio/1.ogg", h.src)
}

func TestPlayNeverRespondingCompletesAtCeiling(t *testing.T) {
	d := &fakeDevice{}

	start := time.Now()
	err := newTestPlayer(d).Play("1")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, fast.Ceiling)
	assert.Less(t, elapsed, fast.Ceiling+200*time.Millisecond)

	h := d.last()
	assert.Equal(t, int32(1), h.plays.Load(), "fallback attempts play once without a ready event")
	assert.Equal(t, int32(1), h.closed.Load())
}

func TestPlayReadyAndFallbackPlayOnce(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.send(EventReady)
	}}

	assert.ErrorIs(t, newTestPlayer(d).Play("1"), ErrTimeout)
	assert.Equal(t, int32(1), d.last().plays.Load())
}

func TestPlayRetriesThenGivesUp(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.onPlay = func(int32, *fakeHandle) error {
			h.send(EventPlayFailed)
			return nil
		}
		h.send(EventReady)
	}}

	err := newTestPlayer(d).Play("1")
	assert.ErrorIs(t, err, ErrPlayFailed)
	assert.Equal(t, int32(1+fast.RetryMax), d.last().plays.Load())
}

func TestPlayRetrySucceeds(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.onPlay = func(n int32, _ *fakeHandle) error {
			if n == 1 {
				h.send(EventPlayFailed)
			} else {
				h.send(EventEnded)
			}
			return nil
		}
		h.send(EventReady)
	}}

	require.NoError(t, newTestPlayer(d).Play("1"))
	assert.Equal(t, int32(2), d.last().plays.Load())
}

func TestNoRetryAfterCompletion(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.onPlay = func(int32, *fakeHandle) error {
			h.send(EventPlayFailed)
			h.send(EventEnded)
			return nil
		}
		h.send(EventReady)
	}}

	timing := fast
	timing.RetryInitial = 50 * time.Millisecond

	require.NoError(t, newTestPlayer(d, WithTiming(timing)).Play("1"))

	time.Sleep(3 * timing.RetryInitial)
	assert.Equal(t, int32(1), d.last().plays.Load())
	assert.Equal(t, int32(1), d.last().closed.Load())
}

func TestPlayMediaErrorAfterGrace(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.send(EventError)
	}}

	start := time.Now()
	err := newTestPlayer(d).Play("1")

	assert.ErrorIs(t, err, ErrMediaError)
	assert.GreaterOrEqual(t, time.Since(start), fast.ErrorGrace)
	assert.Less(t, time.Since(start), fast.Ceiling)
}

func TestPlayEndedWithinErrorGraceWins(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.send(EventError)
		h.send(EventEnded)
	}}

	assert.NoError(t, newTestPlayer(d).Play("1"))
}

func TestPlayClosedEventsCompletes(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		close(h.events)
	}}

	assert.NoError(t, newTestPlayer(d).Play("1"))
}

func TestPlayDeviceRefusesPlay(t *testing.T) {
	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.onPlay = func(int32, *fakeHandle) error { return ErrNoDevice }
		h.send(EventReady)
	}}

	assert.ErrorIs(t, newTestPlayer(d).Play("1"), ErrNoDevice)
}

func TestPlayUnknownSound(t *testing.T) {
	d := &fakeDevice{}

	assert.ErrorIs(t, newTestPlayer(d).Play("nope"), ErrUnknownSound)
	assert.Empty(t, d.handles)
}

func TestPlayNoDevice(t *testing.T) {
	d := &fakeDevice{err: ErrNoDevice}

	assert.ErrorIs(t, newTestPlayer(d).Play("1"), ErrNoDevice)
}

func TestPlaySpeechUsesNarrator(t *testing.T) {
	d := &fakeDevice{}

	var spoken []string
	n := speech.Func(func(text string) error {
		spoken = append(spoken, text)
		return errors.New("voice unavailable")
	})

	require.NoError(t, newTestPlayer(d, WithNarrator(n)).Play("tts-x"))
	assert.Equal(t, []string{"hello there"}, spoken)
	assert.Empty(t, d.handles)
}

func TestPlaySpeechCompletesAtCeiling(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	n := speech.Func(func(string) error {
		<-release
		return nil
	})

	start := time.Now()
	err := newTestPlayer(&fakeDevice{}, WithNarrator(n)).Play("tts-x")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, fast.Ceiling)
	assert.Less(t, elapsed, fast.Ceiling+500*time.Millisecond)
}

type countingOrigin struct {
	fetches atomic.Int32
	data    []byte
	err     error
}

func (o *countingOrigin) Fetch(context.Context, catalog.ID) ([]byte, error) {
	o.fetches.Add(1)
	return o.data, o.err
}

func (o *countingOrigin) Online() bool { return true }

func TestPlayServesCachedBytesThroughHandle(t *testing.T) {
	handles := NewHandles("/clips")
	cache := mediacache.NewMemory()
	origin := &countingOrigin{data: []byte("OggS")}

	var served []byte
	d := &fakeDevice{setup: func(h *fakeHandle) {
		token := strings.TrimPrefix(h.src, "/clips/")
		served, _, _ = handles.Lookup(token)
		h.send(EventEnded)
	}}

	p := newTestPlayer(d, WithHandles(handles), WithCache(cache), WithOrigin(origin))

	require.NoError(t, p.Play("1"))
	assert.True(t, strings.HasPrefix(d.last().src, "/clips/"))
	assert.Equal(t, []byte("OggS"), served)
	assert.Equal(t, 0, len(handles.clips), "handles are released after play")

	require.NoError(t, p.Play("1"))
	assert.Equal(t, int32(1), origin.fetches.Load(), "second play is served from the cache")

	data, ok, err := cache.Get(context.Background(), "https://media.example/Audio/1.ogg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("OggS"), data)
}

func TestPlayFallsBackToMediaURL(t *testing.T) {
	handles := NewHandles("/clips/")
	origin := &countingOrigin{err: errors.New("offline")}

	d := &fakeDevice{setup: func(h *fakeHandle) {
		h.send(EventEnded)
	}}

	p := newTestPlayer(d, WithHandles(handles), WithCache(mediacache.NewMemory()), WithOrigin(origin))

	require.NoError(t, p.Play("2"))
	assert.Equal(t, "https://media.example/Audio/2.ogg", d.last().src)
}

func TestCompletionFirstResolveWins(t *testing.T) {
	c := newCompletion()
	first := errors.New("first")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := first
			if i > 0 {
				err = errors.New("later")
			}
			if c.resolve(err) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, c.resolved())
	assert.Error(t, c.Err())
	assert.False(t, c.resolve(nil))
}

func TestHTTPOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Audio/7.ogg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("clip-7"))
	}))
	defer srv.Close()

	o := NewHTTPOrigin(srv.URL+"/", srv.Client())
	assert.True(t, o.Online())

	data, err := o.Fetch(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, []byte("clip-7"), data)

	_, err = o.Fetch(context.Background(), "8")
	assert.Error(t, err)
	assert.False(t, o.Online(), "an origin failure starts a cooldown")

	o.cooldown = 0
	assert.True(t, o.Online())
}

func TestDirOrigin(t *testing.T) {
	o := NewDirOrigin(fstest.MapFS{
		"Audio/3.ogg": {Data: []byte("three")},
	})

	data, err := o.Fetch(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), data)

	_, err = o.Fetch(context.Background(), "4")
	assert.Error(t, err)
	assert.True(t, o.Online())
}

func TestMediaURL(t *testing.T) {
	assert.Equal(t, "/media/Audio/5.ogg", MediaURL("/media", "5"))
	assert.Equal(t, "https://cdn.example/Audio/5.ogg", MediaURL(" https://cdn.example// ", "5"))
}
