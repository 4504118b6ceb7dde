package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/streamchat/pkg/connection"
)

// ReconnectPolicy bounds automatic reconnection after a transport failure.
type ReconnectPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p *ReconnectPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}

// reconnect runs until the transport is open again, the retries are used up or the session
// is closed. The first attempt waits one initial interval. gen identifies the loop so that
// it does not clear the bookkeeping of a loop started after it.
func (c *Controller) reconnect(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer func() {
		cancel()
		c.mu.Lock()
		if c.retryGen == gen {
			c.reconnecting = false
			c.cancelRetry = nil
		}
		c.mu.Unlock()
	}()

	rLog := log.With().Str("component", "session").Logger()
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.policy.InitialInterval):
	}

	attempts := 0
	op := func() error {
		attempts++
		err := c.transport.Connect(ctx)
		if errors.Is(err, connection.ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		rLog.Info().Err(err).Int("attempt", attempts).Dur("wait", wait).Msg("reconnect attempt failed")
	}

	err := backoff.RetryNotify(op, c.policy.backOff(ctx), notify)
	switch {
	case err == nil:
		rLog.Info().Int("attempts", attempts).Msg("reconnected")
	case ctx.Err() != nil || errors.Is(err, connection.ErrClosed):
		rLog.Debug().Msg("reconnect cancelled")
	default:
		rLog.Warn().Err(err).Int("attempts", attempts).Msg("giving up reconnecting")
		c.appendSystem(fmt.Sprintf("Giving up reconnecting after %d attempts", attempts))
	}
}
