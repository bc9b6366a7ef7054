package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher wraps a Notifier with fire-and-forget delivery. Verification
// codes go out best-effort: the HTTP request that triggered them must not
// block on (or fail because of) a slow SMTP or SMS hop. Failures are logged,
// not returned.
//
// Wait exists so tests and graceful shutdown can drain in-flight sends.
type Dispatcher struct {
	Notifier Notifier
	Logger   *slog.Logger

	// Timeout bounds each delivery attempt. Zero means 15s.
	Timeout time.Duration

	wg sync.WaitGroup
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 15 * time.Second
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// EmailAsync delivers an email on a background goroutine.
func (d *Dispatcher) EmailAsync(to, subject, body string) {
	d.dispatch(func(ctx context.Context) error {
		return d.Notifier.SendEmail(ctx, to, subject, body)
	}, "email", to)
}

// SMSAsync delivers an SMS on a background goroutine.
func (d *Dispatcher) SMSAsync(to, body string) {
	d.dispatch(func(ctx context.Context) error {
		return d.Notifier.SendSMS(ctx, to, body)
	}, "sms", to)
}

func (d *Dispatcher) dispatch(send func(context.Context) error, channel, to string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()

		if err := send(ctx); err != nil {
			d.logger().Error("notification delivery failed",
				slog.String("channel", channel),
				slog.String("to", to),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
