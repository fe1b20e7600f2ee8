package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/magicctl/internal/wiki"
)

// LogEmail is the payload of one log-action notification.
type LogEmail struct {
	UserName    string
	WikiID      string
	LogType     string
	CommentText string
}

func (m LogEmail) Subject() string {
	return fmt.Sprintf("[%s] %s performed %s", m.WikiID, m.UserName, m.LogType)
}

func (m LogEmail) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s\n", m.UserName)
	fmt.Fprintf(&b, "Wiki: %s\n", m.WikiID)
	fmt.Fprintf(&b, "Log type: %s\n", m.LogType)
	fmt.Fprintf(&b, "Comment: %s\n", m.CommentText)
	return b.String()
}

// RecentChangeSave mails the watchers of the performer when a log entry is
// saved. A rule with a log type only matches entries of that type.
func (h *Handler) RecentChangeSave(ctx context.Context, rc wiki.RecentChange) (sent int, err error) {
	if rc.Type != wiki.ChangeLog {
		return 0, nil
	}
	start := time.Now()
	defer func() { h.observe("RecentChangeSave", start, err) }()

	if h.db == nil {
		return 0, fmt.Errorf("%w: database", ErrUnavailable)
	}
	global, err := h.db.Global(ctx)
	if err != nil {
		return 0, err
	}
	rules, err := global.LogEmailRules(ctx, rc.UserText)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		return 0, nil
	}
	if h.mailer == nil {
		return 0, fmt.Errorf("%w: mailer", ErrUnavailable)
	}

	msg := LogEmail{
		UserName:    rc.UserText,
		WikiID:      h.cfg.DBName,
		LogType:     rc.LogType + "/" + rc.LogAction,
		CommentText: rc.Comment,
	}
	logger := h.logger("RecentChangeSave").With().Str("wiki", h.cfg.DBName).Str("user", rc.UserText).Logger()

	var errs []error
	for _, rule := range rules {
		if rule.LogType != "" && rule.LogType != rc.LogType && rule.LogType != msg.LogType {
			continue
		}
		if err := h.mailer.Send(ctx, rule.Email, msg.Subject(), msg.Body()); err != nil {
			logger.Warn().Err(err).Str("email", rule.Email).Msg("log email failed")
			errs = append(errs, err)
			continue
		}
		sent++
	}
	logger.Debug().Int("sent", sent).Str("log_type", msg.LogType).Msg("log emails sent")
	return sent, errors.Join(errs...)
}
