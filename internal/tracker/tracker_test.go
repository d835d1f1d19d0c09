package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
	seen []int
}

func (s *recordingSender) Send(_ context.Context, rs []domain.Receiver, msg notify.Message) notify.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.seen = append(s.seen, len(rs))
	return notify.Result{Total: len(rs), Success: len(rs)}
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func strptr(s string) *string { return &s }

func setup(t *testing.T) (*Tracker, *memory.Store, *recordingSender, domain.DomainID) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	d := &domain.Domain{Name: "example.com", Label: strptr("Example"), IsUp: true, CustomSoundDown: strptr("alarm.mp3")}
	require.NoError(t, store.UpsertDomain(ctx, d))
	_, err := store.AddReceiver(ctx, &domain.Receiver{Token: "tok-1", Platform: "android"})
	require.NoError(t, err)
	sender := &recordingSender{}
	return New(store, sender, zaptest.NewLogger(t)), store, sender, d.ID
}

func sig(id domain.DomainID, at time.Time) domain.Signal {
	return domain.Signal{DomainID: id, DetectedAt: at}
}

func TestDown_OpensIncidentAndNotifies(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	out, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	assert.True(t, out.StatusChanged)
	assert.Equal(t, 1, out.Notifications.Success)

	d, err := store.GetDomain(ctx, id)
	require.NoError(t, err)
	assert.False(t, d.IsUp)

	open, err := store.OpenIncident(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.Start.Equal(t0))

	require.Equal(t, 1, sender.count())
	msg := sender.msgs[0]
	assert.Equal(t, "🔴 example.com DOWN", msg.Title)
	assert.Equal(t, "Example (example.com) is currently unreachable", msg.Body)
	assert.Equal(t, "alarm", msg.Sound)
	assert.Equal(t, ChannelDown, msg.Channel)
	assert.Equal(t, "down", msg.Data["type"])
	assert.Equal(t, "Example", msg.Data["domain_label"])
	assert.Equal(t, "alarm", msg.Data["sound"])
	assert.Equal(t, t0.Format(time.RFC3339), msg.Data["timestamp"])
}

func TestDown_IsIdempotent(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	out, err := tr.Down(ctx, sig(id, t0.Add(time.Minute)))
	require.NoError(t, err)

	assert.False(t, out.StatusChanged)
	assert.Equal(t, notify.Result{}, out.Notifications)
	assert.Equal(t, 1, sender.count())

	all, err := store.Incidents(ctx, repo.IncidentQuery{DomainID: id})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUp_ClosesIncidentWithDuration(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	out, err := tr.Up(ctx, sig(id, t0.Add(90*time.Second)))
	require.NoError(t, err)

	assert.True(t, out.StatusChanged)
	require.NotNil(t, out.Duration)
	assert.EqualValues(t, 90, *out.Duration)

	require.Equal(t, 2, sender.count())
	msg := sender.msgs[1]
	assert.Equal(t, "✅ example.com RECOVERED", msg.Title)
	assert.Equal(t, "Example (example.com) is back online after 1m 30s", msg.Body)
	assert.Equal(t, domain.DefaultSoundUp, msg.Sound)
	assert.Equal(t, ChannelUp, msg.Channel)
	assert.Equal(t, "90", msg.Data["duration"])
	assert.Equal(t, "1m 30s", msg.Data["duration_formatted"])

	d, _ := store.GetDomain(ctx, id)
	assert.True(t, d.IsUp)
	open, _ := store.OpenIncident(ctx, id)
	assert.Nil(t, open)
}

func TestUp_NoActiveIncident(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	// domain marked down without an incident: status flips, nothing is sent
	d, _ := store.GetDomain(ctx, id)
	d.IsUp = false
	require.NoError(t, store.UpsertDomain(ctx, d))

	out, err := tr.Up(ctx, sig(id, t0))
	require.NoError(t, err)
	assert.True(t, out.NoActiveIncident)
	assert.Zero(t, sender.count())

	d, _ = store.GetDomain(ctx, id)
	assert.True(t, d.IsUp)

	// already up: still no notification
	out, err = tr.Up(ctx, sig(id, t0))
	require.NoError(t, err)
	assert.True(t, out.NoActiveIncident)
	assert.Zero(t, sender.count())
}

func TestUp_ZeroDurationFlapIsSilent(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	out, err := tr.Up(ctx, sig(id, t0.Add(400*time.Millisecond)))
	require.NoError(t, err)

	assert.EqualValues(t, 0, *out.Duration)
	assert.Equal(t, 1, sender.count(), "only the down notification")

	all, _ := store.Incidents(ctx, repo.IncidentQuery{DomainID: id})
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	d, _ := store.GetDomain(ctx, id)
	assert.True(t, d.IsUp)
}

func TestUp_ClockSkewClampsToZero(t *testing.T) {
	tr, store, _, id := setup(t)
	ctx := context.Background()

	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	out, err := tr.Up(ctx, sig(id, t0.Add(-time.Minute)))
	require.NoError(t, err)
	assert.EqualValues(t, 0, *out.Duration)

	all, _ := store.Incidents(ctx, repo.IncidentQuery{DomainID: id})
	assert.EqualValues(t, 0, all[0].Duration())
}

func TestUnknownDomainStillLogs(t *testing.T) {
	tr, store, sender, _ := setup(t)
	ctx := context.Background()

	out, err := tr.Down(ctx, sig(42, t0))
	require.NoError(t, err)
	assert.True(t, out.StatusChanged)
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "🔴 Domain #42 DOWN", sender.msgs[0].Title)
	assert.Equal(t, domain.DefaultSoundDown, sender.msgs[0].Sound)

	open, err := store.OpenIncident(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, open)

	// open incident suppresses a repeat
	out, err = tr.Down(ctx, sig(42, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, out.StatusChanged)

	d, _ := store.GetDomain(ctx, 42)
	assert.Nil(t, d, "no domain row is created")

	out, err = tr.Up(ctx, sig(42, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, out.StatusChanged)
	assert.EqualValues(t, 60, *out.Duration)
	assert.Equal(t, 1, sender.count(), "unknown domains were never down, so no recovery push")
}

func TestReceiversAreFetchedPerCall(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)
	_, err = store.AddReceiver(ctx, &domain.Receiver{Token: "tok-2", Platform: "ios"})
	require.NoError(t, err)
	_, err = tr.Up(ctx, sig(id, t0.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, sender.seen)
}

func TestInvalidSignal(t *testing.T) {
	tr, _, _, _ := setup(t)
	_, err := tr.Down(context.Background(), domain.Signal{DomainID: 0, DetectedAt: t0})
	assert.True(t, domain.IsValidation(err))
	_, err = tr.Up(context.Background(), domain.Signal{DomainID: 1})
	assert.True(t, domain.IsValidation(err))
}

type failingStore struct{ *memory.Store }

func (f failingStore) InTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	return f.Store.InTx(ctx, func(tx repo.Tx) error { return fn(failingTx{tx}) })
}

type failingTx struct{ repo.Tx }

func (failingTx) SetStatus(context.Context, domain.DomainID, bool) error {
	return errors.New("db down")
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	_, store, sender, id := setup(t)
	ctx := context.Background()
	tr := New(failingStore{store}, sender, zaptest.NewLogger(t))

	_, err := tr.Down(ctx, sig(id, t0))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Zero(t, sender.count())

	open, _ := store.OpenIncident(ctx, id)
	assert.Nil(t, open, "incident insert must be rolled back")
	d, _ := store.GetDomain(ctx, id)
	assert.True(t, d.IsUp)
}

func TestConcurrentDownsProduceOneTransition(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := tr.Down(ctx, sig(id, t0.Add(time.Duration(i)*time.Millisecond)))
			if err == nil && out.StatusChanged {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, changed)
	assert.Equal(t, 1, sender.count())
	all, _ := store.Incidents(ctx, repo.IncidentQuery{DomainID: id})
	assert.Len(t, all, 1)
}

func (s *recordingSender) sent(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Data["type"] == kind {
			n++
		}
	}
	return n
}

// assertConsistent checks the status flag agrees with the incident table.
func assertConsistent(t *testing.T, store *memory.Store, id domain.DomainID) (open *domain.Incident, all []domain.Incident) {
	t.Helper()
	ctx := context.Background()
	d, err := store.GetDomain(ctx, id)
	require.NoError(t, err)
	open, err = store.OpenIncident(ctx, id)
	require.NoError(t, err)
	all, err = store.Incidents(ctx, repo.IncidentQuery{DomainID: id})
	require.NoError(t, err)

	unresolved := 0
	for _, inc := range all {
		if !inc.Resolved {
			unresolved++
		}
	}
	assert.LessOrEqual(t, unresolved, 1)
	assert.Equal(t, open == nil, d.IsUp, "is_up=%v open=%v", d.IsUp, open)
	return open, all
}

func TestConcurrentUpsCloseOnce(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()
	_, err := tr.Down(ctx, sig(id, t0))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
		missing int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := tr.Up(ctx, sig(id, t0.Add(90*time.Second+time.Duration(i)*time.Millisecond)))
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.StatusChanged {
				changed++
			}
			if out.NoActiveIncident {
				missing++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, changed)
	assert.Equal(t, 19, missing)
	assert.Equal(t, 1, sender.sent("up"))

	open, all := assertConsistent(t, store, id)
	assert.Nil(t, open)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
}

func TestInterleavedDownUpStaysConsistent(t *testing.T) {
	tr, store, sender, id := setup(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		downs  int
		closes int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := t0.Add(time.Duration(i) * time.Minute)
			if i%2 == 0 {
				out, err := tr.Down(ctx, sig(id, at))
				if err == nil && out.StatusChanged {
					mu.Lock()
					downs++
					mu.Unlock()
				}
				return
			}
			out, err := tr.Up(ctx, sig(id, at))
			if err == nil && out.StatusChanged {
				mu.Lock()
				closes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	open, all := assertConsistent(t, store, id)
	resolved := 0
	for _, inc := range all {
		if inc.Resolved {
			resolved++
		}
	}
	assert.Equal(t, downs, len(all))
	assert.Equal(t, closes, resolved)
	assert.Equal(t, downs, sender.sent("down"))
	assert.LessOrEqual(t, sender.sent("up"), closes)
	if open != nil {
		assert.Equal(t, downs-1, closes)
	} else {
		assert.Equal(t, downs, closes)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{
		0:    "0s",
		45:   "45s",
		60:   "1m 0s",
		90:   "1m 30s",
		3599: "59m 59s",
		3600: "1h 0m",
		3661: "1h 1m",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), "seconds=%d", in)
	}
}
