// Package main provides a headless exporter that renders the whole
// image gallery with prices applied and packs the result into a ZIP.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
	"github.com/joshbuysell/pt-bb-beds/internal/core"
)

var (
	configPath string
	pricesPath string
	outputPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "export",
		Short: "Render all gallery images with price bands into a ZIP archive",
		Long: `export renders every image of the configured gallery with its price
band applied and writes the results into a single ZIP archive, without
starting the web server.`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.Flags().StringVar(&pricesPath, "prices", "", "Price workbook path (default: defaultPriceBook from config)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", core.ArchiveName, "Output ZIP path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// A .env file may carry CONFIG_PATH; missing one is fine
	_ = godotenv.Load()

	config, err := core.LoadConfig(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// A one-shot export neither needs nor should touch the render cache
	config.Redis.Addr = ""

	workbookPath := pricesPath
	if workbookPath == "" {
		workbookPath = config.DefaultPriceBook
	}
	if workbookPath == "" {
		return fmt.Errorf("no price workbook: pass --prices or set defaultPriceBook in the config")
	}

	book, err := pricebook.Load(workbookPath)
	if err != nil {
		return fmt.Errorf("failed to load price workbook %s: %w", workbookPath, err)
	}

	coreService := core.NewCoreService(config)
	defer coreService.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	count, err := coreService.RenderArchive(context.Background(), book, out)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to render archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish output file: %w", err)
	}

	fmt.Printf("wrote %d images to %s\n", count, outputPath)
	return nil
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}
