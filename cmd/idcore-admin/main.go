// Command idcore-admin inspects and maintains numbering entities in the
// configured store.
//
//	idcore-admin show <id>
//	idcore-admin next [-commit] [-per-range] [-range from-to ...] <id> <type>
//	idcore-admin upgrade [prefix]
//
// The store is selected with IDCORE_STORAGE_DRIVER and its companion
// variables; logging follows IDCORE_LOG_LEVEL and IDCORE_LOG_FORMAT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"idcore/internal/core"
	"idcore/internal/logger"
	"idcore/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage:
  idcore-admin show <id>
  idcore-admin next [-commit] [-per-range] [-range from-to ...] <id> <type>
  idcore-admin upgrade [prefix]
`

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	zl := logger.FromEnv()
	defer func() { _ = zl.Sync() }()
	log := logger.NewSugared(zl)

	var err error
	switch args[0] {
	case "show":
		err = runShow(args[1:], stdout, log)
	case "next":
		err = runNext(args[1:], stdout, stderr, log)
	case "upgrade":
		err = runUpgrade(args[1:], stdout, log)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		_, _ = fmt.Fprintf(stderr, "%v\n%s", err, usage)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "idcore-admin: %v\n", err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func openService(ctx context.Context, log logger.Logger) (*core.Service, error) {
	store, err := core.OpenEntityStore(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := core.OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	return core.NewService(store, append(opts, core.WithLogger(log))...)
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func runShow(args []string, stdout io.Writer, log logger.Logger) error {
	if len(args) != 1 {
		return usageError("show takes exactly one entity id")
	}
	ctx := context.Background()
	svc, err := openService(ctx, log)
	if err != nil {
		return err
	}
	e, err := svc.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, args[0])
	}
	return writeJSON(stdout, e)
}

// rangeList collects repeated -range flags.
type rangeList []domain.Range

func (r *rangeList) String() string {
	parts := make([]string, len(*r))
	for i, rg := range *r {
		parts[i] = fmt.Sprintf("%d-%d", rg.From, rg.To)
	}
	return strings.Join(parts, ",")
}

func (r *rangeList) Set(value string) error {
	from, to, ok := strings.Cut(value, "-")
	if !ok {
		return fmt.Errorf("range %q must look like from-to", value)
	}
	f, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return fmt.Errorf("range %q: %w", value, err)
	}
	t, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return fmt.Errorf("range %q: %w", value, err)
	}
	rg := domain.Range{From: f, To: t}
	if !rg.Valid() {
		return fmt.Errorf("range %q is empty or not positive", value)
	}
	*r = append(*r, rg)
	return nil
}

func runNext(args []string, stdout, stderr io.Writer, log logger.Logger) error {
	fs := flag.NewFlagSet("next", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		ranges   rangeList
		commit   bool
		perRange bool
	)
	fs.Var(&ranges, "range", "declared range as from-to; repeatable (default: the stored ranges)")
	fs.BoolVar(&commit, "commit", false, "record the number as consumed")
	fs.BoolVar(&perRange, "per-range", false, "report the first free number of every range")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError(err.Error())
	}
	if fs.NArg() != 2 {
		return usageError("next takes an entity id and a consumption key")
	}
	id, key := fs.Arg(0), fs.Arg(1)

	ctx := context.Background()
	svc, err := openService(ctx, log)
	if err != nil {
		return err
	}
	declared := []domain.Range(ranges)
	if len(declared) == 0 {
		e, err := svc.Load(ctx, id)
		if err != nil {
			return err
		}
		if e == nil || len(e.Ranges) == 0 {
			return usageError("no -range given and no ranges stored for " + id)
		}
		declared = e.Ranges
	}
	res, err := svc.NextID(ctx, core.NextIDRequest{
		EntityID: id,
		Type:     key,
		Ranges:   declared,
		PerRange: perRange,
		Commit:   commit,
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout, res)
}

func runUpgrade(args []string, stdout io.Writer, log logger.Logger) error {
	if len(args) > 1 {
		return usageError("upgrade takes at most one id prefix")
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	ctx := context.Background()
	svc, err := openService(ctx, log)
	if err != nil {
		return err
	}
	report, err := svc.UpgradeAll(ctx, prefix)
	if err != nil {
		return err
	}
	return writeJSON(stdout, report)
}
