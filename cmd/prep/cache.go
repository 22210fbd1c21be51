package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/colegioprep/prepsync/internal/snapshot"
	"github.com/colegioprep/prepsync/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and back up the local cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location, record count, and cached keys",
	RunE:  runCacheStatus,
}

var cacheExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export all cached records as JSONL",
	Long: `Export every cached lesson record as JSON Lines, one record per
line. Writes to stdout unless a file is given. The output can be fed
back through 'cache import' or dropped into the import folder.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheExport,
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import records from a JSONL export into the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheImport,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*store.Store, error) {
	st, err := store.Open(viper.GetString("cache_path"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return st, nil
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	st, err := openCache()
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.Count()
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	fmt.Printf("Cache:   %s\n", viper.GetString("cache_path"))
	fmt.Printf("Records: %d\n", count)

	if count > 0 {
		keys, err := st.Keys()
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
		fmt.Println()
		for _, key := range keys {
			fmt.Printf("  %s\n", key)
		}
	}
	return nil
}

func runCacheExport(cmd *cobra.Command, args []string) error {
	st, err := openCache()
	if err != nil {
		return err
	}
	defer st.Close()

	out := os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	result, err := snapshot.Export(cmd.Context(), st, out)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if len(args) == 1 {
		fmt.Printf("Exported %d records to %s\n", result.Records, args[0])
	}
	return nil
}

func runCacheImport(cmd *cobra.Command, args []string) error {
	st, err := openCache()
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	result, err := snapshot.Import(st, f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("Imported %d records (%d skipped)\n", result.Records, result.Skipped)
	return nil
}
