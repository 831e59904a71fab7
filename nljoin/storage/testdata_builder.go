package storage

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// Names of the generated tables.
const (
	CustomersTable = "customers"
	OrdersTable    = "orders"
)

// TestDataConfig specifies what kind of test database to build
type TestDataConfig struct {
	NumCustomers  int       // Rows in the customers table
	NumOrders     int       // Rows in the orders table
	OrphanPercent int       // Share of orders whose customer id has no customer row
	NullPercent   int       // Share of orders with a NULL customer id
	OutputPath    string    // Where to store the database
	Seed          int64     // Random seed, fixed for reproducible data
	StartDate     time.Time // Earliest order date
}

// DefaultTestDataConfig returns a small dataset for demos and tests
func DefaultTestDataConfig() TestDataConfig {
	return TestDataConfig{
		NumCustomers:  100,
		NumOrders:     1000,
		OrphanPercent: 5,
		NullPercent:   2,
		OutputPath:    "testdata/nljoin_small.db",
		Seed:          1,
		StartDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// MediumTestDataConfig returns a dataset large enough for profiling
func MediumTestDataConfig() TestDataConfig {
	cfg := DefaultTestDataConfig()
	cfg.NumCustomers = 1000
	cfg.NumOrders = 20000
	cfg.OutputPath = "testdata/nljoin_medium.db"
	return cfg
}

// LargeTestDataConfig returns a dataset for stress testing
func LargeTestDataConfig() TestDataConfig {
	cfg := DefaultTestDataConfig()
	cfg.NumCustomers = 5000
	cfg.NumOrders = 200000
	cfg.OutputPath = "testdata/nljoin_large.db"
	return cfg
}

// GenerateTestTables builds the customers and orders tables for config.
// Customer ids are 0..NumCustomers-1; orphaned orders reference ids past
// that range.
func GenerateTestTables(config TestDataConfig) (customers, orders *table.Table, err error) {
	rng := rand.New(rand.NewSource(config.Seed))
	regions := []string{"north", "south", "east", "west"}

	ids := make([]int64, config.NumCustomers)
	names := make([]string, config.NumCustomers)
	region := make([]string, config.NumCustomers)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = fmt.Sprintf("customer-%04d", i)
		region[i] = regions[rng.Intn(len(regions))]
	}
	customers, err = table.New(
		table.NewInt64Column("id", ids),
		table.NewStringColumn("name", names),
		table.NewStringColumn("region", region),
	)
	if err != nil {
		return nil, nil, err
	}

	orderIDs := make([]int64, config.NumOrders)
	customerIDs := make([]nljoin.Value, config.NumOrders)
	amounts := make([]float64, config.NumOrders)
	placed := make([]time.Time, config.NumOrders)
	for i := range orderIDs {
		orderIDs[i] = int64(i)
		switch roll := rng.Intn(100); {
		case roll < config.NullPercent:
			customerIDs[i] = nil
		case roll < config.NullPercent+config.OrphanPercent || config.NumCustomers == 0:
			customerIDs[i] = int64(config.NumCustomers + rng.Intn(1000))
		default:
			customerIDs[i] = int64(rng.Intn(config.NumCustomers))
		}
		amounts[i] = float64(rng.Intn(100000)) / 100
		placed[i] = config.StartDate.Add(time.Duration(rng.Intn(90*24)) * time.Hour)
	}
	customerCol, err := table.NewColumn("customer_id", nljoin.TypeInt, customerIDs)
	if err != nil {
		return nil, nil, err
	}
	orders, err = table.New(
		table.NewInt64Column("id", orderIDs),
		customerCol,
		table.NewFloat64Column("amount", amounts),
		table.NewTimeColumn("placed", placed),
	)
	if err != nil {
		return nil, nil, err
	}
	return customers, orders, nil
}

// BuildTestDatabase creates a pre-populated BadgerDB with the generated tables
func BuildTestDatabase(config TestDataConfig) (*BadgerStore, error) {
	if err := os.RemoveAll(config.OutputPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	customers, orders, err := GenerateTestTables(config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tables: %w", err)
	}

	store, err := NewBadgerStore(config.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := store.PutTable(CustomersTable, customers); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.PutTable(OrdersTable, orders); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// TestDatabaseStats prints the schema and size of every stored table
func TestDatabaseStats(store Store, w io.Writer) error {
	names, err := store.ListTables()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d tables\n", len(names))
	for _, name := range names {
		t, err := store.GetTable(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %d rows %s\n", name, t.NumRows(), t.Schema())
	}
	return nil
}
