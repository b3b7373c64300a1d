package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/metaforge/internal/di"
	"github.com/conneroisu/metaforge/internal/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Query and edit structured metadata in the relational store",
	Long: `Store reads and writes the schema-classified subset of metadata that has
been persisted into the structured store (C9). Requires store.driver and
store.dsn to be configured.`,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Show the structured fields recorded for a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeSetCmd = &cobra.Command{
	Use:   "set <path> <field-key> <value>",
	Short: "Update an editable structured field's value for a path",
	Args:  cobra.ExactArgs(3),
	RunE:  runStoreSet,
}

var storeAddFieldCmd = &cobra.Command{
	Use:   "add-field <key> <name> <category> <data-type>",
	Short: "Register a new custom structured field",
	Long: `Add a new field to the structured schema so future metadata loads
classify a previously-ignored extractor key.

Example:
  metaforge store add-field "XMP:Rating" Rating "Editorial" number --editable --searchable`,
	Args: cobra.ExactArgs(4),
	RunE: runStoreAddField,
}

var (
	storeFieldEditable   bool
	storeFieldSearchable bool
)

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeGetCmd, storeSetCmd, storeAddFieldCmd)
	storeAddFieldCmd.Flags().BoolVar(&storeFieldEditable, "editable", false, "allow the field to be updated via 'store set'")
	storeAddFieldCmd.Flags().BoolVar(&storeFieldSearchable, "searchable", true, "include the field in structured search")
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		s, err := container.GetStructuredStore()
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("no structured store configured (set store.driver and store.dsn)")
		}

		fields, err := s.GetStructuredMetadata(context.Background(), types.NewPath(args[0]))
		if err != nil {
			return fmt.Errorf("failed to read structured metadata: %w", err)
		}

		categories := make([]string, 0, len(fields))
		for category := range fields {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tFIELD\tVALUE\tEDITABLE")
		for _, category := range categories {
			for _, fv := range fields[category] {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", category, fv.Field.Name, fv.Value, fv.Field.IsEditable)
			}
		}
		w.Flush()
		return nil
	})
}

func runStoreSet(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		s, err := container.GetStructuredStore()
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("no structured store configured (set store.driver and store.dsn)")
		}

		path, fieldKey, newValue := args[0], args[1], args[2]
		if err := s.UpdateFieldValue(context.Background(), types.NewPath(path), fieldKey, newValue); err != nil {
			return fmt.Errorf("failed to update field: %w", err)
		}
		fmt.Printf("updated %s on %s\n", fieldKey, path)
		return nil
	})
}

func runStoreAddField(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		s, err := container.GetStructuredStore()
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("no structured store configured (set store.driver and store.dsn)")
		}

		key, name, category, dataType := args[0], args[1], args[2], args[3]
		if err := s.AddCustomField(context.Background(), key, name, category, dataType, storeFieldEditable, storeFieldSearchable); err != nil {
			return fmt.Errorf("failed to add field: %w", err)
		}
		fmt.Printf("added field %s (%s) in category %s\n", key, dataType, category)
		return nil
	})
}
