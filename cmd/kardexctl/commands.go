package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"kardex/internal/app"
	appctx "kardex/internal/core/context"
	"kardex/internal/core/id"
	"kardex/internal/domain/recalc"
	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/http/v1/dto"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/pkg/config"
)

var errUsage = errors.New("invalid arguments")

type command func(ctx context.Context, args []string, out io.Writer) error

var commands = map[string]command{
	"migrate":      cmdMigrate,
	"recalc":       cmdRecalc,
	"kardex":       cmdKardex,
	"seq":          cmdSeq,
	"close-period": cmdClosePeriod,
	"catalog":      cmdCatalog,
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func requireID(name, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), usageErr("--%s is required", name)
	}
	parsed, err := dto.ParseID(name, value)
	if err != nil {
		return id.Nil(), usageErr("--%s: invalid uuid %q", name, value)
	}
	return parsed, nil
}

func requireDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, usageErr("--%s is required", name)
	}
	t, err := dto.ParseDate(name, value)
	if err != nil {
		return time.Time{}, usageErr("--%s: invalid date %q", name, value)
	}
	return t, nil
}

func cmdMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageErr("migrate needs up, down, version or force")
	}
	action := args[0]
	var forceVersion int
	switch action {
	case "up", "down", "version":
	case "force":
		if len(args) < 2 {
			return usageErr("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return usageErr("force: invalid version %q", args[1])
		}
		forceVersion = v
	default:
		return usageErr("unknown migrate action %q", action)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := postgres.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "force":
		err = m.Force(ctx, forceVersion)
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

type recalcArgs struct {
	owner  id.ID
	unit   id.ID
	from   time.Time
	reason string
}

func parseRecalc(args []string) (recalcArgs, error) {
	fs := newFlags("recalc")
	owner := fs.String("owner", "", "owner uuid")
	unit := fs.String("unit", "", "stock unit uuid")
	from := fs.String("from", "", "first date to recalculate")
	reason := fs.String("reason", "manual recalculation", "audit reason")
	if err := fs.Parse(args); err != nil {
		return recalcArgs{}, usageErr("%v", err)
	}

	var (
		a   = recalcArgs{reason: *reason}
		err error
	)
	if a.owner, err = requireID("owner", *owner); err != nil {
		return a, err
	}
	if a.unit, err = requireID("unit", *unit); err != nil {
		return a, err
	}
	if a.from, err = requireDate("from", *from); err != nil {
		return a, err
	}
	return a, nil
}

func cmdRecalc(ctx context.Context, args []string, out io.Writer) error {
	a, err := parseRecalc(args)
	if err != nil {
		return err
	}

	svc, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx = appctx.WithTrace(appctx.WithOwner(ctx, a.owner), appctx.NewTrace(appctx.OriginCLI))
	res, err := svc.Recalculator.Run(ctx, recalc.Request{
		OwnerID: a.owner,
		Reason:  a.reason,
		Units:   []recalc.UnitRequest{{UnitID: a.unit, FromDate: a.from}},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run %s: %d movements, %d lots, %d documents updated in %s\n",
		res.RunID, res.MovementsAffected, res.LotsUpdated, res.DocumentsUpdated, res.Elapsed)
	return nil
}

type kardexArgs struct {
	unit     id.ID
	from, to time.Time
	asJSON   bool
}

func parseKardex(args []string) (kardexArgs, error) {
	fs := newFlags("kardex")
	unit := fs.String("unit", "", "stock unit uuid")
	from := fs.String("from", "", "period start")
	to := fs.String("to", "", "period end")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return kardexArgs{}, usageErr("%v", err)
	}

	var (
		a   = kardexArgs{asJSON: *asJSON}
		err error
	)
	if a.unit, err = requireID("unit", *unit); err != nil {
		return a, err
	}
	if a.from, err = requireDate("from", *from); err != nil {
		return a, err
	}
	if a.to, err = requireDate("to", *to); err != nil {
		return a, err
	}
	if a.to.Before(a.from) {
		return a, usageErr("--from must not be after --to")
	}
	return a, nil
}

func cmdKardex(ctx context.Context, args []string, out io.Writer) error {
	a, err := parseKardex(args)
	if err != nil {
		return err
	}

	svc, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	k, err := svc.Projector.Project(ctx, a.unit, a.from, a.to)
	if err != nil {
		return err
	}
	if a.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(k)
	}
	return printKardex(out, k)
}

// printKardex renders k as an aligned table.
func printKardex(out io.Writer, k *reports.Kardex) error {
	fmt.Fprintf(out, "Stock unit %s (%s)  %s .. %s\n\n", k.StockUnitID, k.CostingMethod,
		k.From.Format(dto.DateLayout), k.To.Format(dto.DateLayout))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tKind\tIn\tOut\tUnit cost\tTotal\tBalance qty\tBalance value\t")
	fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t%s\t%s\t\n", k.From.Format(dto.DateLayout), "OPENING",
		k.Opening.Quantity, k.Opening.Value)
	for _, r := range k.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.EffectiveDate.Format(dto.DateLayout), r.Kind,
			r.QuantityIn, r.QuantityOut, r.UnitCost, r.TotalCost,
			r.Balance.Quantity, r.Balance.Value)
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\t\t%s\t%s\t\n", k.To.Format(dto.DateLayout), "CLOSING",
		k.TotalIn, k.TotalOut, k.Closing.Quantity, k.Closing.Value)
	return tw.Flush()
}

func cmdSeq(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("seq")
	owner := fs.String("owner", "", "owner uuid")
	opType := fs.String("type", "", "operation type")
	peek := fs.Bool("peek", false, "show the next number without taking it")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	ownerID, err := requireID("owner", *owner)
	if err != nil {
		return err
	}
	if *opType == "" {
		return usageErr("--type is required")
	}

	svc, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var n int64
	if *peek {
		n, err = svc.Sequencer.Peek(ctx, ownerID, *opType)
	} else {
		n, err = svc.Sequencer.Next(ctx, ownerID, *opType)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, n)
	return nil
}

func cmdClosePeriod(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("close-period")
	owner := fs.String("owner", "", "owner uuid")
	until := fs.String("until", "", "last closed date")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	ownerID, err := requireID("owner", *owner)
	if err != nil {
		return err
	}
	date, err := requireDate("until", *until)
	if err != nil {
		return err
	}

	svc, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Periods.Close(ctx, ownerID, date); err != nil {
		return err
	}
	fmt.Fprintf(out, "period closed until %s\n", date.Format(dto.DateLayout))
	return nil
}

type catalogArgs struct {
	kind string
	id   id.ID
	code string
	name string
}

func parseCatalog(args []string) (catalogArgs, error) {
	fs := newFlags("catalog")
	kind := fs.String("kind", "", "product or warehouse")
	rawID := fs.String("id", "", "uuid (generated when empty)")
	code := fs.String("code", "", "code")
	name := fs.String("name", "", "name")
	if err := fs.Parse(args); err != nil {
		return catalogArgs{}, usageErr("%v", err)
	}

	a := catalogArgs{kind: *kind, code: *code, name: *name}
	if a.kind != "product" && a.kind != "warehouse" {
		return a, usageErr("--kind must be product or warehouse")
	}
	if a.name == "" {
		return a, usageErr("--name is required")
	}
	if *rawID == "" {
		a.id = id.New()
		return a, nil
	}
	var err error
	a.id, err = requireID("id", *rawID)
	return a, err
}

func cmdCatalog(ctx context.Context, args []string, out io.Writer) error {
	a, err := parseCatalog(args)
	if err != nil {
		return err
	}

	svc, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	repo := svc.Products
	if a.kind == "warehouse" {
		repo = svc.Warehouses
	}
	if err := repo.Upsert(ctx, a.id, a.code, a.name); err != nil {
		return err
	}
	fmt.Fprintln(out, a.id)
	return nil
}
