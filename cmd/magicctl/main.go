package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/farm"
	"github.com/danmuck/magicctl/internal/logging"
	"github.com/danmuck/magicctl/internal/maintenance"
	"github.com/spf13/cobra"
)

const (
	envConfigPath     = "MAGICCTL_CONFIG"
	defaultConfigPath = "/etc/magicctl/farm.toml"
)

// envOpener builds the script environment for a loaded farm config. The
// returned func releases its connections.
type envOpener func(ctx context.Context, cfg config.Farm, out io.Writer, in io.Reader) (*maintenance.Env, func() error, error)

type app struct {
	configPath string
	wiki       string

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	open   envOpener
}

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, openFarmEnv)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer, open envOpener) int {
	a := &app{in: in, out: out, errOut: errOut, open: open}
	root := a.rootCmd(maintenance.DefaultRegistry())
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, maintenance.ErrFatal) {
		fmt.Fprintln(errOut, err.Error())
	} else {
		fmt.Fprintf(errOut, "magicctl: %v\n", err)
	}
	return maintenance.ExitCode(err)
}

func (a *app) rootCmd(registry *maintenance.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:           "magicctl",
		Short:         "Wiki farm maintenance scripts and lifecycle hooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := os.Getenv(envConfigPath)
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultPath, "farm config path (env "+envConfigPath+")")
	root.PersistentFlags().StringVar(&a.wiki, "wiki", "", "database name of the wiki to run against")

	groups := map[string]*cobra.Command{}
	for _, meta := range registry.ListMetadata() {
		script, _ := registry.Resolve(meta.ID)
		cmd := a.scriptCmd(meta, script)
		if meta.Group == "" {
			root.AddCommand(cmd)
			continue
		}
		parent, ok := groups[meta.Group]
		if !ok {
			parent = &cobra.Command{Use: meta.Group, Short: "Run " + meta.Group + " lifecycle hooks"}
			groups[meta.Group] = parent
			root.AddCommand(parent)
		}
		parent.AddCommand(cmd)
	}

	root.AddCommand(&cobra.Command{
		Use:   "scripts",
		Short: "List the registered maintenance scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, meta := range registry.ListMetadata() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", meta.ID, meta.Description)
			}
			return nil
		},
	})
	return root
}

func (a *app) scriptCmd(meta maintenance.Metadata, script maintenance.Script) *cobra.Command {
	use := meta.ID
	if meta.Group != "" {
		use = meta.Name
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: meta.Name,
		Long:  meta.Description,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := script.SetArgs(args); err != nil {
				return err
			}
			return a.execute(cmd.Context(), script)
		},
	}
	script.BindFlags(cmd.Flags())
	return cmd
}

func (a *app) execute(ctx context.Context, script maintenance.Script) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if wiki := strings.TrimSpace(a.wiki); wiki != "" {
		cfg.DBName = wiki
	}
	env, closeEnv, err := a.open(ctx, cfg, a.out, a.in)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEnv(); err != nil {
			fmt.Fprintf(a.errOut, "magicctl: close: %v\n", err)
		}
	}()
	return maintenance.Execute(ctx, script, env)
}

func openFarmEnv(ctx context.Context, cfg config.Farm, out io.Writer, in io.Reader) (*maintenance.Env, func() error, error) {
	services, err := farm.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return services.Env(out, in), services.Close, nil
}
