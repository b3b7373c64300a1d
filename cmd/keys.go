package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/metaforge/internal/di"
	"github.com/conneroisu/metaforge/internal/keys"
	"github.com/conneroisu/metaforge/internal/logging"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Simplify metadata keys and manage the learned key registry",
}

var keysSimplifyCmd = &cobra.Command{
	Use:   "simplify <key...>",
	Short: "Simplify one or more verbose metadata keys",
	Long: `Simplify runs the configured simplifier over the given original keys and
prints the resulting short keys, without touching the registry.

Example:
  metaforge keys simplify "EXIF:DateTimeOriginal" "XMP-dc:CreatorContactInfo"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKeysSimplify,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every mapping currently held by the key registry",
	RunE:  runKeysList,
}

var keysUndoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent registry mutation",
	RunE:  runKeysUndo,
}

var keysRedoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Redo the most recently undone registry mutation",
	RunE:  runKeysRedo,
}

var keysExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the key registry to a JSON or YAML file",
	Long: `Export writes every mapping the registry currently holds to file. The
format is chosen by extension: .yaml/.yml produces hand-editable YAML,
anything else produces JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysExport,
}

var keysImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import mappings from a JSON or YAML file into the key registry",
	Long: `Import reads file (format chosen by .yaml/.yml extension, JSON
otherwise) and applies its mappings to the registry, merging with the
existing table unless --merge=false is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysImport,
}

var keysImportMerge bool

var keysAliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Inspect and reload the semantic aliases table",
}

var keysAliasesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the semantic aliases file path and every alias it defines",
	RunE:  runKeysAliasesShow,
}

var keysAliasesReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the semantic aliases file into the running registry, discarding unsaved manual edits",
	RunE:  runKeysAliasesReload,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSimplifyCmd, keysListCmd, keysUndoCmd, keysRedoCmd, keysExportCmd, keysImportCmd, keysAliasesCmd)
	keysAliasesCmd.AddCommand(keysAliasesShowCmd, keysAliasesReloadCmd)
	keysImportCmd.Flags().BoolVar(&keysImportMerge, "merge", true, "merge with existing mappings instead of replacing them")
}

func runKeysSimplify(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		simplifier, err := container.GetKeySimplifier()
		if err != nil {
			return err
		}
		result := simplifier.Simplify(args)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORIGINAL\tSIMPLIFIED")
		for _, original := range args {
			fmt.Fprintf(w, "%s\t%s\n", original, result[original])
		}
		w.Flush()
		return nil
	})
}

func runKeysList(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}

		mappings := registry.Mappings()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORIGINAL\tSIMPLIFIED\tSEMANTIC")
		for _, mapping := range mappings {
			fmt.Fprintf(w, "%s\t%s\t%s\n", mapping.OriginalKey, mapping.SimplifiedKey, mapping.SemanticName)
		}
		w.Flush()
		fmt.Printf("\n%d mapping(s)\n", len(mappings))
		return nil
	})
}

func runKeysUndo(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}
		if !registry.Undo() {
			fmt.Println("nothing to undo")
			return nil
		}
		fmt.Println("undid last registry mutation")
		return nil
	})
}

func runKeysRedo(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}
		if !registry.Redo() {
			fmt.Println("nothing to redo")
			return nil
		}
		fmt.Println("redid last undone registry mutation")
		return nil
	})
}

func runKeysExport(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}
		if err := registry.ExportToFile(args[0]); err != nil {
			return fmt.Errorf("failed to export registry: %w", err)
		}
		fmt.Printf("exported registry to %s\n", args[0])
		return nil
	})
}

func runKeysImport(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}
		if err := registry.ImportFromFile(args[0], keysImportMerge); err != nil {
			return fmt.Errorf("failed to import registry: %w", err)
		}
		fmt.Printf("imported registry from %s\n", args[0])
		return nil
	})
}

func runKeysAliasesShow(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		cfg := container.GetConfig()
		log, err := container.Get("logger")
		if err != nil {
			return err
		}
		store := keys.NewAliasesStore(cfg.Keys.AliasesFile, log.(logging.Logger))
		aliases, err := store.Load(context.Background(), false)
		if err != nil {
			return fmt.Errorf("failed to load semantic aliases: %w", err)
		}

		fmt.Printf("aliases file: %s\n\n", store.Path())
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEMANTIC\tORIGINALS (highest priority first)")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%v\n", name, aliases[name])
		}
		w.Flush()
		return nil
	})
}

func runKeysAliasesReload(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		cfg := container.GetConfig()
		log, err := container.Get("logger")
		if err != nil {
			return err
		}
		registry, err := container.GetKeyRegistry()
		if err != nil {
			return err
		}

		store := keys.NewAliasesStore(cfg.Keys.AliasesFile, log.(logging.Logger))
		aliases, err := store.Reload(context.Background())
		if err != nil {
			return fmt.Errorf("failed to reload semantic aliases: %w", err)
		}
		registry.LoadSemanticAliases(aliases)
		fmt.Printf("reloaded %d semantic aliases from %s\n", len(aliases), store.Path())
		return nil
	})
}
