package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/janus-nljoin/nljoin/storage"
)

func main() {
	configType := flag.String("config", "default", "Config type: default, medium, or large")
	output := flag.String("o", "", "output path (overrides the config's path)")
	flag.Parse()

	var config storage.TestDataConfig
	switch *configType {
	case "default":
		config = storage.DefaultTestDataConfig()
	case "medium":
		config = storage.MediumTestDataConfig()
	case "large":
		config = storage.LargeTestDataConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown config type: %s (use 'default', 'medium', or 'large')\n", *configType)
		os.Exit(1)
	}
	if *output != "" {
		config.OutputPath = *output
	}

	fmt.Printf("Building test database: %s\n", config.OutputPath)
	fmt.Printf("  Customers: %d\n", config.NumCustomers)
	fmt.Printf("  Orders: %d\n", config.NumOrders)
	fmt.Printf("  Orphaned orders: %d%%\n", config.OrphanPercent)
	fmt.Printf("  NULL customer ids: %d%%\n", config.NullPercent)
	fmt.Println()

	store, err := storage.BuildTestDatabase(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := storage.TestDatabaseStats(store, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Done! Join the tables with:")
	fmt.Printf("   nljoin -db %s -kind left -on customer_id=id\n", config.OutputPath)
}
