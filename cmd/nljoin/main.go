package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/executor"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/storage"
	"github.com/wbrown/janus-nljoin/nljoin/table"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run executes one CLI invocation. Deferred closes run on every return path.
func run(args []string, stdout io.Writer) error {
	var dbPath string
	var leftName, rightName string
	var on, where string
	var kindStr string
	var nullsEqual bool
	var profilePath string
	var blockSize int
	var verbose bool
	var showPairs bool
	var list bool
	var help bool

	flags := flag.NewFlagSet("nljoin", flag.ContinueOnError)
	flags.StringVar(&dbPath, "db", "", "database path")
	flags.StringVar(&leftName, "left", storage.OrdersTable, "left table name")
	flags.StringVar(&rightName, "right", storage.CustomersTable, "right table name")
	flags.StringVar(&on, "on", "", "equality keys, e.g. customer_id=id[,a=b]")
	flags.StringVar(&where, "where", "", "comparison conditions, e.g. amount>=limit[,placed<since]")
	flags.StringVar(&kindStr, "kind", "inner", "join kind: inner or left")
	flags.BoolVar(&nullsEqual, "nulls-equal", false, "treat NULL keys as equal in -on")
	flags.StringVar(&profilePath, "device", "", "TOML device profile (default: simulated device sized to this host)")
	flags.IntVar(&blockSize, "block-size", executor.DefaultBlockSize, "threads per block")
	flags.BoolVar(&verbose, "verbose", false, "verbose mode (show join annotations and debug logs)")
	flags.BoolVar(&showPairs, "pairs", false, "print raw index pairs instead of joined rows")
	flags.BoolVar(&list, "list", false, "list stored tables and exit")
	flags.BoolVar(&help, "h", false, "show help")
	flags.Usage = func() {
		name := os.Args[0]
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [database_path]\n\n", name)
		fmt.Fprintf(os.Stderr, "Runs a nested-loop join between two stored tables on a simulated device.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -db testdata/nljoin_small.db -list\n", name)
		fmt.Fprintf(os.Stderr, "  %s -db testdata/nljoin_small.db -on customer_id=id\n", name)
		fmt.Fprintf(os.Stderr, "  %s -db testdata/nljoin_small.db -kind left -on customer_id=id -verbose\n", name)
		fmt.Fprintf(os.Stderr, "  %s -db testdata/nljoin_small.db -left customers -right customers -where 'id<id'\n", name)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	if help {
		flags.Usage()
		return flag.ErrHelp
	}

	if dbPath == "" && flags.NArg() > 0 {
		dbPath = flags.Arg(0)
	}
	if dbPath == "" {
		dbPath = storage.DefaultTestDataConfig().OutputPath
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database does not exist: %s (create one with build-testdb)", dbPath)
	}

	store, err := storage.NewBadgerStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if list {
		if err := storage.TestDatabaseStats(store, stdout); err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}
		return nil
	}

	kind, err := nljoin.ParseJoinKind(kindStr)
	if err != nil {
		return err
	}

	tables, err := store.GetTables(context.Background(), leftName, rightName)
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}
	left, right := tables[0], tables[1]

	m, err := buildMatcher(left, right, on, where, nullsEqual)
	if err != nil {
		return fmt.Errorf("invalid join condition: %w", err)
	}

	profile := device.DefaultProfile()
	if profilePath != "" {
		if profile, err = device.LoadProfile(profilePath); err != nil {
			return fmt.Errorf("failed to load device profile: %w", err)
		}
	}
	dev, err := device.NewSimDevice(profile)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	defer dev.Close()

	opts := executor.Options{BlockSize: blockSize}
	if verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		opts.Handler = annotations.Handler(formatter.Handle)
		if opts.Logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer opts.Logger.Sync()
	}

	exec, err := executor.New(dev, opts)
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	start := time.Now()
	pairs, err := exec.Join(context.Background(), left, right, m, kind)
	if err != nil {
		return fmt.Errorf("join failed: %w", err)
	}
	elapsed := time.Since(start)

	formatter := executor.NewTableFormatter()
	if showPairs {
		fmt.Fprintln(stdout, formatter.FormatPairs(pairs))
	} else {
		leftPrefix, rightPrefix := leftName+".", rightName+"."
		if leftName == rightName {
			leftPrefix, rightPrefix = "l.", "r."
		}
		joined, err := table.GatherJoin(left, right, pairs, leftPrefix, rightPrefix)
		if err != nil {
			return fmt.Errorf("failed to gather rows: %w", err)
		}
		fmt.Fprintln(stdout, formatter.FormatTable(joined))
	}
	fmt.Fprintf(stdout, "%d pairs in %v\n", pairs.Len(), elapsed)
	return nil
}

// buildMatcher combines -on equality keys and -where conditions.
func buildMatcher(left, right *table.Table, on, where string, nullsEqual bool) (matcher.RowMatcher, error) {
	var parts []matcher.RowMatcher

	if on != "" {
		var leftCols, rightCols []string
		for _, key := range splitList(on) {
			l, r, ok := strings.Cut(key, "=")
			if !ok {
				return nil, fmt.Errorf("join key %q must look like left=right", key)
			}
			leftCols = append(leftCols, strings.TrimSpace(l))
			rightCols = append(rightCols, strings.TrimSpace(r))
		}
		eq, err := matcher.On(left, right, leftCols, rightCols)
		if err != nil {
			return nil, err
		}
		if nullsEqual {
			eq.Nulls = matcher.NullsEqual
		}
		parts = append(parts, eq)
	}

	if where != "" {
		var conds []matcher.Condition
		for _, expr := range splitList(where) {
			cond, err := matcher.ParseCondition(left, right, expr)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
		parts = append(parts, matcher.Where(conds...))
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("need -on or -where")
	}
	return matcher.All(parts...), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
