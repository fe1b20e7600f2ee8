package ircfeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/rs/zerolog/log"
)

// Engine delivers one formatted line to a feed address.
type Engine interface {
	Send(ctx context.Context, addr, line string) error
}

// UDPEngine writes each line as a single datagram.
type UDPEngine struct {
	Timeout time.Duration
}

func (e UDPEngine) Send(ctx context.Context, addr, line string) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("dial feed %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("write feed %s: %w", addr, err)
	}
	return nil
}

// Publisher fans a recent change out to every configured feed.
type Publisher struct {
	formatter *Formatter
	engine    Engine
	feeds     []config.Feed
}

func NewPublisher(formatter *Formatter, engine Engine, feeds []config.Feed) *Publisher {
	if engine == nil {
		engine = UDPEngine{}
	}
	return &Publisher{formatter: formatter, engine: engine, feeds: feeds}
}

// Publish returns how many feeds received the line.
func (p *Publisher) Publish(ctx context.Context, rc wiki.RecentChange, actionComment string) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, feed := range p.feeds {
		line, ok := p.formatter.Line(ctx, feed, rc, actionComment)
		if !ok {
			continue
		}
		if err := p.engine.Send(ctx, feed.Addr, line); err != nil {
			log.Warn().Err(err).Str("feed", feed.Addr).Msg("irc feed send failed")
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
