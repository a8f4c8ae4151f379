// Package main is the entry point for the PixTube admin CLI.
// It runs moderation and maintenance tasks against the configured stores,
// acting as an administrator account.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/prn-tf/pixtube/internal/app"
	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/domain"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		printUsage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "pixtube-admin: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and executes one command, writing its report to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("pixtube-admin", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file")
	actAs := flags.String("as", "", "administrator handle to act as (default: bootstrap.admin_handle)")
	dryRun := flags.Bool("dry-run", false, "gc: report orphan files without deleting them")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return errUsage
	}

	switch rest[0] {
	case "version":
		fmt.Fprintf(out, "PixTube Admin CLI\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		return nil
	case "help":
		printUsage(out)
		return nil
	case "user", "video", "comment", "gc":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}
	if len(rest) < 2 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dryRun {
		cfg.GC.DryRun = true
	}
	if *actAs == "" {
		*actAs = cfg.Bootstrap.AdminHandle
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	// Keep the report readable; only problems are logged.
	logger = logger.Level(zerolog.WarnLevel)

	infra, err := app.Open(ctx, cfg, app.ModeCommand, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	c := &cli{svcs: app.NewServices(cfg, infra, logger), out: out}

	admin, err := c.svcs.Accounts.GetByHandle(ctx, *actAs)
	if err != nil {
		return fmt.Errorf("cannot act as %q: %w", *actAs, err)
	}
	if !domain.CanModerate(admin) {
		return fmt.Errorf("cannot act as %q: not an administrator", *actAs)
	}
	c.admin = admin

	return c.dispatch(ctx, rest[0], rest[1], rest[2:])
}

type cli struct {
	svcs  *app.Services
	admin *domain.Account
	out   io.Writer
}

func (c *cli) dispatch(ctx context.Context, group, action string, args []string) error {
	switch group + " " + action {
	case "user list":
		return c.listUsers(ctx)
	case "user ban":
		return c.withID(args, func(id int64) error { return c.ban(ctx, id) })
	case "user unban":
		return c.withID(args, func(id int64) error {
			if err := c.svcs.Moderation.UnbanAccount(ctx, c.admin, id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "account %d unbanned\n", id)
			return nil
		})
	case "video block", "video unblock":
		return c.withID(args, func(id int64) error {
			if err := c.svcs.Moderation.SetVideoVisibility(ctx, c.admin, id, visibilityFor(action)); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "video %d %sed\n", id, action)
			return nil
		})
	case "comment block", "comment unblock":
		return c.withID(args, func(id int64) error {
			if err := c.svcs.Moderation.SetCommentVisibility(ctx, c.admin, id, visibilityFor(action)); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "comment %d %sed\n", id, action)
			return nil
		})
	case "gc run":
		return c.sweep(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, group+" "+action)
	}
}

func (c *cli) withID(args []string, fn func(id int64) error) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one id", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: invalid id %q", errUsage, args[0])
	}
	return fn(id)
}

func (c *cli) listUsers(ctx context.Context) error {
	accounts, err := c.svcs.Accounts.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHANDLE\tROLE\tSTANDING\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.Handle, a.Role, a.Standing, a.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (c *cli) ban(ctx context.Context, id int64) error {
	result, err := c.svcs.Moderation.BanAccount(ctx, c.admin, id)
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Fprintf(c.out, "account %d is an administrator and was not banned\n", id)
		return nil
	}
	fmt.Fprintf(c.out, "account %d banned: %d videos deleted, %d file cleanup failures\n",
		id, len(result.DeletedVideos), result.CleanupFailures)
	return nil
}

func (c *cli) sweep(ctx context.Context) error {
	result := c.svcs.Sweeper.RunOnce(ctx)
	if result.Skipped {
		fmt.Fprintln(c.out, "another sweep is running; nothing done")
		return nil
	}
	fmt.Fprintf(c.out, "orphan files removed: %d (%d bytes), errors: %d, more pending: %t\n",
		result.FilesDeleted, result.BytesFreed, result.Errors, result.HasMore)
	if result.Errors > 0 {
		return fmt.Errorf("sweep finished with %d errors", result.Errors)
	}
	return nil
}

func visibilityFor(action string) domain.Visibility {
	if action == "block" {
		return domain.VisibilityBlocked
	}
	return domain.VisibilityVisible
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `PixTube Admin CLI

Usage:
  pixtube-admin [--config file] [--as handle] <command> [arguments]

Commands:
  user list                 List accounts
  user ban <id>             Ban an account and delete its videos
  user unban <id>           Restore an account to active standing
  video block <id>          Hide a video
  video unblock <id>        Show a hidden video
  comment block <id>        Hide a comment
  comment unblock <id>      Show a hidden comment
  gc run [--dry-run]        Remove stored files no video references
  version                   Print version information
  help                      Show this help message

Examples:
  pixtube-admin user ban 42
  pixtube-admin gc run --dry-run`)
}
