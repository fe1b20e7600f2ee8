package swift

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/observability"
	"github.com/danmuck/magicctl/internal/tools"
	"github.com/rs/zerolog/log"
)

// CLI drives the python-swiftclient binary through a command runner.
type CLI struct {
	Runner  tools.CommandRunner
	Binary  string
	AuthURL string
	User    string
	Key     string
	WorkDir string
}

func NewCLI(cfg config.Swift, runner tools.CommandRunner) *CLI {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "swift"
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &CLI{
		Runner:  runner,
		Binary:  binary,
		AuthURL: cfg.AuthURL,
		User:    cfg.User,
		Key:     cfg.Key,
		WorkDir: workDir,
	}
}

func (c *CLI) ListContainers(ctx context.Context, prefix string) ([]string, error) {
	args := []string{"list"}
	if prefix != "" {
		args = append(args, "--prefix", prefix)
	}
	out, err := c.run(ctx, "list", args...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (c *CLI) ListObjects(ctx context.Context, container, prefix string) ([]string, error) {
	args := []string{"list", container}
	if prefix != "" {
		args = append(args, "--prefix", prefix)
	}
	out, err := c.run(ctx, "list", args...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (c *CLI) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	return c.run(ctx, "download", "download", container, object, "-o", "-")
}

func (c *CLI) PutObject(ctx context.Context, container, object string, data []byte) error {
	tmp, err := os.CreateTemp(c.WorkDir, "magicctl-upload-*")
	if err != nil {
		return fmt.Errorf("stage upload %s/%s: %w", container, object, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stage upload %s/%s: %w", container, object, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage upload %s/%s: %w", container, object, err)
	}
	_, err = c.run(ctx, "upload", "upload", container, tmp.Name(), "--object-name", object)
	return err
}

func (c *CLI) DeleteObject(ctx context.Context, container, object string) error {
	_, err := c.run(ctx, "delete", "delete", container, object)
	return err
}

func (c *CLI) DeleteContainer(ctx context.Context, container string) error {
	_, err := c.run(ctx, "delete", "delete", container)
	return err
}

// CopyContainer downloads src into the work dir and uploads it as dst. The
// staging dir is removed on success and kept for inspection on failure.
func (c *CLI) CopyContainer(ctx context.Context, src, dst string) error {
	staging := filepath.Join(c.WorkDir, src)
	if _, err := c.run(ctx, "download", "download", src, "-D", staging); err != nil {
		return err
	}
	if _, err := c.run(ctx, "upload", "upload", dst, staging, "--object-name", ""); err != nil {
		log.Warn().Str("container", src).Str("staging", staging).Msg("copy failed, staging dir kept")
		return err
	}
	if _, _, code, err := c.Runner.Run(ctx, "rm", "-rf", staging); err != nil || code != 0 {
		log.Warn().Err(err).Str("staging", staging).Msg("staging cleanup failed")
	}
	return nil
}

func (c *CLI) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append(append([]string{}, args...), c.authArgs()...)
	log.Debug().Str("op", op).Str("cmd", c.redacted(args)).Msg("swift")

	stdout, stderr, code, err := c.Runner.Run(ctx, c.Binary, full...)
	if err == nil && code == 0 {
		observability.RecordStorage(op, nil)
		return stdout, nil
	}
	msg := strings.TrimSpace(string(stderr))
	if notFound(msg) {
		err = fmt.Errorf("%w: %s", ErrNotFound, msg)
	} else {
		err = fmt.Errorf("%w: %s exit=%d: %s", ErrCommandFailed, c.redacted(args), code, msg)
	}
	observability.RecordStorage(op, err)
	return nil, err
}

func (c *CLI) authArgs() []string {
	return []string{"-A", c.AuthURL, "-U", c.User, "-K", c.Key}
}

func (c *CLI) redacted(args []string) string {
	shown := append([]string{}, args...)
	return tools.CommandLine(c.Binary, append(shown, "-A", c.AuthURL, "-U", c.User, "-K", "***")...)
}

func notFound(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "404") || strings.Contains(lower, "not found")
}

func lines(out []byte) []string {
	var list []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			list = append(list, line)
		}
	}
	return list
}
