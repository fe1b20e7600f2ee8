package hooks

import (
	"context"
	"time"

	"github.com/danmuck/magicctl/internal/cache"
	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/observability"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Databases hands out handles on farm databases. *store.Pool satisfies it.
type Databases interface {
	Global(ctx context.Context) (*store.Store, error)
	Database(ctx context.Context, dbname string) (*store.Store, error)
}

// Messages reads interface messages of the current wiki.
type Messages interface {
	// PageExists reports whether MediaWiki:<key> exists for lang.
	PageExists(key, lang string) bool
	// Text returns the content-language text of key, false when disabled.
	Text(key string) (string, bool)
}

// Mailer sends one plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Deps wires a Handler. Nil services disable the steps that need them.
type Deps struct {
	Runner   tools.CommandRunner
	DB       Databases
	Swift    *swift.Manager
	Purger   *cache.Purger
	Messages Messages
	Mailer   Mailer
}

// Handler owns every hook callback for one wiki context.
type Handler struct {
	cfg      config.Farm
	runner   tools.CommandRunner
	db       Databases
	swift    *swift.Manager
	purger   *cache.Purger
	messages Messages
	mailer   Mailer
}

func New(cfg config.Farm, deps Deps) *Handler {
	runner := deps.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	purger := deps.Purger
	if purger == nil {
		purger = cache.NewPurger(nil)
	}
	return &Handler{
		cfg:      cfg,
		runner:   runner,
		db:       deps.DB,
		swift:    deps.Swift,
		purger:   purger,
		messages: deps.Messages,
		mailer:   deps.Mailer,
	}
}

func (h *Handler) Config() config.Farm {
	return h.cfg
}

func (h *Handler) logger(hook string) zerolog.Logger {
	return log.With().Str("hook", hook).Logger()
}

func (h *Handler) observe(hook string, start time.Time, err error) {
	observability.RecordHook(hook, time.Since(start), err)
}
