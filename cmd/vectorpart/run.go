package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vectorpart/internal/config"
	"vectorpart/internal/index"
	"vectorpart/internal/manifest"
	"vectorpart/internal/partition"
	"vectorpart/internal/registry"
	"vectorpart/internal/tokencount"
	"vectorpart/internal/truncate"
	"vectorpart/internal/vectorstore"
)

func runCmd() *cobra.Command {
	var root string
	var manifestPath string
	var configPath string
	var registryPath string
	var runID string
	var skipIndex bool
	var batchSize int

	var vsHost string
	var vsPort int
	var vsSSL bool
	var vsTenant string
	var vsDatabase string
	var vsAPIKey string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Partition newly configured sources and index them into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			prep, err := config.LoadPrepConfig(configPath)
			if err != nil {
				return err
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}

			id := runID
			if id == "" {
				id = uuid.NewString()
			}

			rc := partition.RunConfig{
				RootDir:    root,
				ConfigPath: configPath,
				RunID:      id,
				Now:        time.Now(),
				Prep:       prep,
			}

			result, err := partition.Run(rc, m)
			if err != nil {
				return fmt.Errorf("partition run: %w", err)
			}
			logger.Infow("partitioning run complete",
				"run_id", id,
				"created_partitions", len(result.CreatedPartitions),
				"impacted_partitions", len(result.ImpactedNames),
			)

			if err := manifest.Save(manifestPath, m); err != nil {
				return fmt.Errorf("save manifest: %w", err)
			}

			if skipIndex {
				return nil
			}

			reg, err := registry.FromTOML(registryPath)
			if err != nil {
				return err
			}

			vsClient, err := vectorStoreClient(vsHost, vsPort, vsSSL, vsTenant, vsDatabase, vsAPIKey)
			if err != nil {
				return err
			}
			defer vsClient.Close() //nolint:errcheck

			policy := index.DefaultPolicy()
			if batchSize > 0 {
				policy.ConfiguredBatchSize = batchSize
			}

			idxCfg := index.Config{
				PartitionRoot:    root,
				StateDir:         root,
				Registry:         reg,
				Client:           vsClient,
				Counter:          tokencount.Approximate{},
				Policy:           policy,
				TruncateStrategy: truncate.Auto,
				Logger:           logger,
			}

			idxResult, err := index.Run(cmd.Context(), idxCfg, m)
			if err != nil {
				return fmt.Errorf("index run: %w", err)
			}
			logger.Infow("indexing run complete",
				"documents_indexed", idxResult.DocumentsIndexed,
				"skipped", len(idxResult.Skipped),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Partition root directory (required)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to manifest.json (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to prep-config TOML (required)")
	cmd.Flags().StringVar(&registryPath, "registry", "", "Path to record-type registry TOML (required for indexing)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier; a UUID is generated if omitted")
	cmd.Flags().BoolVar(&skipIndex, "skip-index", false, "Only partition, do not index")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override the configured indexing batch size")

	cmd.Flags().StringVar(&vsHost, "vectorstore-host", "localhost", "Vector-store host")
	cmd.Flags().IntVar(&vsPort, "vectorstore-port", 8000, "Vector-store port")
	cmd.Flags().BoolVar(&vsSSL, "vectorstore-ssl", false, "Use HTTPS for the vector-store endpoint")
	cmd.Flags().StringVar(&vsTenant, "vectorstore-tenant", "", "Managed vector-store tenant (Cloud client if set)")
	cmd.Flags().StringVar(&vsDatabase, "vectorstore-database", "", "Managed vector-store database (Cloud client if set)")
	cmd.Flags().StringVar(&vsAPIKey, "vectorstore-api-key", "", "Managed vector-store API key")

	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func vectorStoreClient(host string, port int, ssl bool, tenant, database, apiKey string) (vectorstore.Client, error) {
	if tenant != "" || database != "" {
		return vectorstore.NewCloudClient(vectorstore.CloudConfig{
			Tenant:   tenant,
			Database: database,
			APIKey:   apiKey,
			Host:     host,
			Port:     port,
			SSL:      ssl,
		})
	}
	return vectorstore.NewHTTPClient(vectorstore.HTTPConfig{Host: host, Port: port, SSL: ssl})
}
