package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 10 * time.Second
)

// Fanout delivers a message to every receiver through a bounded worker pool.
// Each receiver is attempted exactly once; one failure never affects another.
type Fanout struct {
	transport Transport
	workers   int
	timeout   time.Duration
	log       *zap.Logger
}

func NewFanout(t Transport, workers int, timeout time.Duration, log *zap.Logger) *Fanout {
	if t == nil {
		t = Disabled{}
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{transport: t, workers: workers, timeout: timeout, log: log.Named("fanout")}
}

func (f *Fanout) Send(ctx context.Context, receivers []domain.Receiver, msg Message) Result {
	if len(receivers) == 0 {
		f.log.Info("fanout_skipped_no_receivers", zap.String("title", msg.Title))
		return Result{}
	}

	batch := uuid.NewString()
	p := Payload{
		Title:   msg.Title,
		Body:    msg.Body,
		Sound:   msg.Sound,
		Channel: msg.Channel,
		Data:    stringify(msg.Data),
	}

	details := make([]Detail, len(receivers))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := f.workers
	if workers > len(receivers) {
		workers = len(receivers)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				details[i] = f.deliver(ctx, batch, receivers[i], p)
			}
		}()
	}
	for i := range receivers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	res := Result{BatchID: batch, Total: len(receivers), Details: details}
	for _, d := range details {
		if d.Status == StatusSuccess {
			res.Success++
		} else {
			res.Failed++
		}
	}
	metrics.AddNotifications(msg.Channel, res.Success, res.Failed)
	f.log.Info("fanout_complete",
		zap.String("batch", batch),
		zap.String("title", msg.Title),
		zap.Int("total", res.Total),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
	)
	return res
}

func (f *Fanout) deliver(ctx context.Context, batch string, r domain.Receiver, p Payload) (d Detail) {
	d = Detail{Token: r.Token, Platform: r.Platform, Status: StatusFailed}
	defer func() {
		if rec := recover(); rec != nil {
			d.Status = StatusFailed
			d.MessageID = ""
			d.Error = fmt.Sprintf("panic: %v", rec)
			f.log.Error("fanout_delivery_panic", zap.String("batch", batch), zap.String("token", Redact(r.Token)), zap.Any("panic", rec))
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	id, err := f.transport.Deliver(cctx, r.Token, p)
	if err != nil {
		d.Error = err.Error()
		f.log.Warn("fanout_delivery_failed",
			zap.String("batch", batch),
			zap.String("token", Redact(r.Token)),
			zap.String("platform", r.Platform),
			zap.Error(err),
		)
		return d
	}
	d.Status = StatusSuccess
	d.MessageID = id
	return d
}

// Redact keeps at most a quarter of a token, capped at 20 characters, so
// short tokens are never shown whole.
func Redact(token string) string {
	n := len(token) / 4
	if n > 20 {
		n = 20
	}
	return token[:n] + "..."
}

func stringify(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case fmt.Stringer:
			out[k] = x.String()
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}
