package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vectorpart/internal/queryclient"
	"vectorpart/internal/vectorstore"
)

func queryCmd() *cobra.Command {
	var root string
	var models []string
	var texts []string
	var nResults int

	var vsHost string
	var vsPort int
	var vsSSL bool
	var vsTenant string
	var vsDatabase string
	var vsAPIKey string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a fan-out semantic query across a record type's collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(texts) == 0 {
				return fmt.Errorf("at least one --text is required")
			}

			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			vsClient, err := vectorStoreClient(vsHost, vsPort, vsSSL, vsTenant, vsDatabase, vsAPIKey)
			if err != nil {
				return err
			}

			client := queryclient.New(vsClient, logger)
			if err := client.Connect(root); err != nil {
				return err
			}
			defer client.Close() //nolint:errcheck

			res, err := client.Query(cmd.Context(), queryclient.QueryRequest{
				QueryRequest: vectorstore.QueryRequest{QueryTexts: texts, NResults: nResults},
				Models:       models,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Partition root directory (required)")
	cmd.Flags().StringArrayVar(&models, "model", nil, "Record type to restrict the fan-out to (repeatable; default: all)")
	cmd.Flags().StringArrayVar(&texts, "text", nil, "Query text (repeatable; one sub-result per text)")
	cmd.Flags().IntVar(&nResults, "n-results", 10, "Maximum results per query text after merge")

	cmd.Flags().StringVar(&vsHost, "vectorstore-host", "localhost", "Vector-store host")
	cmd.Flags().IntVar(&vsPort, "vectorstore-port", 8000, "Vector-store port")
	cmd.Flags().BoolVar(&vsSSL, "vectorstore-ssl", false, "Use HTTPS for the vector-store endpoint")
	cmd.Flags().StringVar(&vsTenant, "vectorstore-tenant", "", "Managed vector-store tenant (Cloud client if set)")
	cmd.Flags().StringVar(&vsDatabase, "vectorstore-database", "", "Managed vector-store database (Cloud client if set)")
	cmd.Flags().StringVar(&vsAPIKey, "vectorstore-api-key", "", "Managed vector-store API key")

	_ = cmd.MarkFlagRequired("root")

	return cmd
}
