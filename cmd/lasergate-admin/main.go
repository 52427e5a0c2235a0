// Command lasergate-admin performs offline maintenance on the lasergate
// directory database: adding and removing users, purging expired records,
// importing legacy databases and writing backups.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/config"
	"github.com/BrandonDHaskell/lasergate/internal/db"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store/sqlite"
	"github.com/BrandonDHaskell/lasergate/internal/logging"
)

const usage = `usage: lasergate-admin [--config FILE] [--db PATH] <command> [flags]

commands:
  add-user       --card ID --name NAME [--secondary-id ID]
  add-admin      --card ID --name NAME [--secondary-id ID]
  delete         --card ID
  purge-expired  [--include-admins]
  list           [--logs] [--limit N]
  merge          --from LEGACY.db
  backup         --dir DIR
  verify-backup  ARCHIVE.db.zst
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "lasergate-admin:", err)
		os.Exit(1)
	}
}

// env is the shared state every command runs against.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	conn   *sql.DB
	writer *db.Worker
	dir    *sqlite.Directory
}

func (e *env) close() {
	if e.writer != nil {
		e.writer.Close()
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"add-user":      func(ctx context.Context, e *env, args []string) error { return cmdAdd(ctx, e, args, false) },
	"add-admin":     func(ctx context.Context, e *env, args []string) error { return cmdAdd(ctx, e, args, true) },
	"delete":        cmdDelete,
	"purge-expired": cmdPurge,
	"list":          cmdList,
	"merge":         cmdMerge,
	"backup":        cmdBackup,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("lasergate-admin", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", os.Getenv("LASERGATE_CONFIG"), "path to YAML config file")
	dbPath := global.String("db", "", "directory database (overrides config)")
	verbose := global.BoolP("verbose", "v", false, "debug logging")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}
	name, args := rest[0], rest[1:]

	// verify-backup needs neither config nor database.
	if name == "verify-backup" {
		return cmdVerify(args, out)
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, closeLog, err := logging.New(logging.Options{Level: level})
	if err != nil {
		return err
	}
	defer closeLog()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DB.Path, Env: cfg.Env})
	if err != nil {
		return err
	}
	e := &env{cfg: cfg, logger: logger, out: out, conn: conn}
	e.writer = db.NewWorker(conn)
	e.dir = sqlite.NewDirectory(conn, e.writer)
	defer e.close()

	return cmd(ctx, e, args)
}

func cmdAdd(ctx context.Context, e *env, args []string, admin bool) error {
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	card := fs.String("card", "", "card id")
	name := fs.String("name", "", "full name")
	secondary := fs.String("secondary-id", "", "secondary id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *card == "" || *name == "" {
		return fmt.Errorf("%w: --card and --name are required", errUsage)
	}

	users := service.NewUserService(e.dir, clock.Real(), e.cfg.Validity(), e.logger)
	updated, err := users.Add(ctx, *card, *secondary, *name, admin)
	if err != nil {
		return err
	}
	verb := "added"
	if updated {
		verb = "updated"
	}
	fmt.Fprintf(e.out, "%s %s (admin=%t)\n", verb, *card, admin)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	card := fs.String("card", "", "card id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *card == "" {
		return fmt.Errorf("%w: --card is required", errUsage)
	}

	deleted, err := e.dir.Delete(ctx, *card)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("card %s: not found", *card)
	}
	fmt.Fprintf(e.out, "deleted %s\n", *card)
	return nil
}

func cmdPurge(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("purge-expired", pflag.ContinueOnError)
	includeAdmins := fs.Bool("include-admins", false, "also remove expired admin records")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	n, err := e.dir.PurgeExpired(ctx, clock.Real().Now(), *includeAdmins)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "removed %d expired record(s)\n", n)
	return nil
}

func cmdMerge(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("merge", pflag.ContinueOnError)
	from := fs.String("from", "", "legacy database to import")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *from == "" && fs.NArg() == 1 {
		*from = fs.Arg(0)
	}
	if *from == "" {
		return fmt.Errorf("%w: --from is required", errUsage)
	}

	src, err := db.OpenReadOnly(ctx, *from)
	if err != nil {
		return err
	}
	defer src.Close()

	stats, err := sqlite.ImportLegacy(ctx, src, e.dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "imported %d, skipped %d\n", stats.Imported, stats.Skipped)
	return nil
}

func cmdBackup(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("backup", pflag.ContinueOnError)
	dir := fs.String("dir", "./backups", "destination directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	res, err := db.Backup(ctx, e.conn, *dir, clock.Real().Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s %d bytes blake3:%s\n", res.Path, res.Bytes, res.Digest)
	return nil
}

func cmdVerify(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: verify-backup takes one archive", errUsage)
	}
	if err := db.VerifyBackup(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s ok\n", args[0])
	return nil
}
