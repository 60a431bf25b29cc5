package widget

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/livechat/internal/api"
)

// fakeClock fires due callbacks synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	when  time.Time
	seq   int
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward by d, running every callback that becomes due in
// deadline order, including callbacks scheduled by earlier callbacks.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].when.Equal(c.timers[j].when) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].when.Before(c.timers[j].when)
		})
		var next *fakeTimer
		live := c.timers[:0]
		for _, t := range c.timers {
			if t.done {
				continue
			}
			live = append(live, t)
		}
		c.timers = live
		if len(c.timers) > 0 && !c.timers[0].when.After(target) {
			next = c.timers[0]
			next.done = true
			c.timers = c.timers[1:]
			c.now = next.when
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts timers that have not fired or been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

var errOffline = &api.Error{Op: "test", Kind: api.KindNetwork, Err: errors.New("connection refused")}

// fakeAPI is a scriptable chat API.
type fakeAPI struct {
	mu sync.Mutex

	online      bool
	presenceErr error

	createID  string
	createErr error
	sendErr   error
	fetchErr  error
	messages  []api.RemoteMessage

	// fetchHook, createHook and initialHook run inside the call before it returns.
	fetchHook   func()
	createHook  func()
	initialHook func()

	presenceCalls int
	initial       []api.InitialMessageRequest
	created       []api.CreateSessionRequest
	transfers     []api.TransferRequest
	sent          []api.SendMessageRequest
	fetches       []string
}

func (f *fakeAPI) Presence(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceCalls++
	return f.online, f.presenceErr
}

func (f *fakeAPI) StoreInitialMessage(_ context.Context, tempID, text string) error {
	f.mu.Lock()
	hook := f.initialHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initial = append(f.initial, api.InitialMessageRequest{TempSessionID: tempID, MessageContent: text, MessageType: "text"})
	return nil
}

func (f *fakeAPI) CreateSession(_ context.Context, req api.CreateSessionRequest) (string, error) {
	f.mu.Lock()
	hook := f.createHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.createID != "" {
		return f.createID, nil
	}
	return req.SessionID, nil
}

func (f *fakeAPI) TransferMessages(_ context.Context, req api.TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	return nil
}

func (f *fakeAPI) FetchMessages(_ context.Context, sessionID string) ([]api.RemoteMessage, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, sessionID)
	hook := f.fetchHook
	msgs := append([]api.RemoteMessage(nil), f.messages...)
	err := f.fetchErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, req api.SendMessageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return f.sendErr
}

func (f *fakeAPI) ResolveURL(ref string) string {
	if ref == "" || ref[0] != '/' {
		return ref
	}
	return "https://chat.example.com" + ref
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) initialRequests() []api.InitialMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.InitialMessageRequest(nil), f.initial...)
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type countingRecorder struct {
	mu       sync.Mutex
	ticks    map[string]int
	presence map[string]int
	received int
	failed   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ticks: map[string]int{}, presence: map[string]int{}}
}

func (r *countingRecorder) PollTick(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[result]++
}

func (r *countingRecorder) PresenceCheck(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[result]++
}

func (r *countingRecorder) MessagesReceived(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received += n
}

func (r *countingRecorder) NotifyFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}
