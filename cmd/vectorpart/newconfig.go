package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const prepConfigTemplate = `# directory_size caps rows per (partition, record type) CSV; 0 means
# unbounded.
directory_size = 50000

[models.example]
source = "/data/example/part-<int>.csv"
header_row = "all"
malformed_column = 0
delimiter = ","
drop_na_columns = []

  [[models.example.fields]]
  name = "id"
  type = "string"
  required = true

  [[models.example.fields]]
  name = "description"
  type = "string"
`

const registryTemplate = `[[record_types]]
name = "example"
semantic_fields = ["description"]
keyword_fields = ["id"]

  [[record_types.fields]]
  name = "id"
  type = "string"
  required = true

  [[record_types.fields]]
  name = "description"
  type = "string"
`

func newConfigCmd() *cobra.Command {
	var prepOut string
	var registryOut string

	cmd := &cobra.Command{
		Use:   "new-config",
		Short: "Scaffold a prep-config and registry TOML template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prepOut == "" && registryOut == "" {
				return fmt.Errorf("at least one of --prep-config or --registry is required")
			}
			if prepOut != "" {
				if err := writeTemplate(prepOut, prepConfigTemplate); err != nil {
					return err
				}
				fmt.Printf("Wrote prep-config template to %s\n", prepOut)
			}
			if registryOut != "" {
				if err := writeTemplate(registryOut, registryTemplate); err != nil {
					return err
				}
				fmt.Printf("Wrote registry template to %s\n", registryOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prepOut, "prep-config", "", "Path to write a prep-config TOML template")
	cmd.Flags().StringVar(&registryOut, "registry", "", "Path to write a record-type registry TOML template")
	return cmd
}

func writeTemplate(path, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %q", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}
