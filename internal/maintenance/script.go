package maintenance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/magicctl/internal/cache"
	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/hooks"
	"github.com/danmuck/magicctl/internal/observability"
	"github.com/danmuck/magicctl/internal/store"
	"github.com/danmuck/magicctl/internal/swift"
	"github.com/danmuck/magicctl/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var (
	ErrFatal   = errors.New("maintenance: fatal")
	ErrMissing = errors.New("maintenance: service not configured")
)

// ExitAborted is the exit code of a refused confirmation.
const ExitAborted = 2

// FatalError stops a script with a message for the operator.
type FatalError struct {
	Message string
	Code    int
}

func (e *FatalError) Error() string {
	return e.Message
}

func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

func fatalf(format string, args ...any) error {
	return &FatalError{Message: fmt.Sprintf(format, args...), Code: 1}
}

// ExitCode maps a script error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var fatal *FatalError
	if errors.As(err, &fatal) && fatal.Code != 0 {
		return fatal.Code
	}
	return 1
}

// Metadata describes a script for the registry and the CLI.
type Metadata struct {
	ID          string
	Name        string
	Description string
	// Group nests the script under a parent command, empty for top level.
	Group string
}

// Script is one maintenance entry point.
type Script interface {
	Metadata() Metadata
	BindFlags(fs *pflag.FlagSet)
	SetArgs(args []string) error
	Run(ctx context.Context, env *Env) error
}

// Databases hands out database handles. *store.Pool satisfies it.
type Databases interface {
	Global(ctx context.Context) (*store.Store, error)
	Database(ctx context.Context, dbname string) (*store.Store, error)
	Wiki(ctx context.Context, dbname string) (*store.Store, error)
}

// Cluster is one database server holding wiki schemas. *store.Cluster
// satisfies it.
type Cluster interface {
	Name() string
	ListDatabases(ctx context.Context, suffix string) ([]string, error)
	DropDatabase(ctx context.Context, name string) error
}

// Env carries everything a script may touch. Unset services make the scripts
// that need them fail with ErrMissing.
type Env struct {
	Out      io.Writer
	In       io.Reader
	Config   config.Farm
	DB       Databases
	Clusters func(ctx context.Context) ([]Cluster, error)
	Swift    swift.Backend
	Hooks    *hooks.Handler
	Cache    *cache.ObjectCache
	// LocalRunner runs commands on this host, never on the static host.
	LocalRunner tools.CommandRunner
	Now         func() time.Time

	in *bufio.Reader
}

// Wiki is the wiki the script runs against.
func (e *Env) Wiki() string {
	return e.Config.DBName
}

func (e *Env) Printf(format string, args ...any) {
	out := e.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) localRunner() tools.CommandRunner {
	if e.LocalRunner != nil {
		return e.LocalRunner
	}
	return tools.ExecRunner{}
}

// Confirm prints prompt and reads one answer line. Only y or Y confirms.
func (e *Env) Confirm(prompt string) bool {
	e.Printf("%s", prompt)
	if e.In == nil {
		return false
	}
	if e.in == nil {
		e.in = bufio.NewReader(e.In)
	}
	line, err := e.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

func (e *Env) global(ctx context.Context) (*store.Store, error) {
	if e.DB == nil {
		return nil, fmt.Errorf("%w: database", ErrMissing)
	}
	return e.DB.Global(ctx)
}

func (e *Env) wikiDB(ctx context.Context) (*store.Store, error) {
	if e.DB == nil {
		return nil, fmt.Errorf("%w: database", ErrMissing)
	}
	return e.DB.Wiki(ctx, e.Wiki())
}

func (e *Env) hooks() (*hooks.Handler, error) {
	if e.Hooks == nil {
		return nil, fmt.Errorf("%w: hooks", ErrMissing)
	}
	return e.Hooks, nil
}

// Execute runs script against env and records the outcome.
func Execute(ctx context.Context, script Script, env *Env) error {
	meta := script.Metadata()
	start := time.Now()
	logger := log.With().Str("script", meta.ID).Str("wiki", env.Wiki()).Logger()
	logger.Debug().Msg("script start")

	err := script.Run(ctx, env)
	observability.RecordScript(meta.ID, err)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("script failed")
		return err
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("script complete")
	return nil
}

// noArgs is embedded by scripts without positional arguments.
type noArgs struct{}

func (noArgs) SetArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	return nil
}
