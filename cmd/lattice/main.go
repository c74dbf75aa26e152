// Package main contains the cli implementation of lattice. It uses cobra
// for command dispatch, BurntSushi/toml for the optional config file, and
// viper to layer environment variables on top, the way smf's own CLI
// loads its schema-file configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lattice/internal/collection"
	"lattice/internal/core"
	"lattice/internal/docfs"
	"lattice/internal/ingest"
	"lattice/internal/planner"
	"lattice/internal/query"
	"lattice/internal/rebuild"
	"lattice/internal/repository"
	_ "lattice/internal/repository/mssql"
	_ "lattice/internal/repository/mysql"
	_ "lattice/internal/repository/postgres"
	_ "lattice/internal/repository/sqlite"
)

// config is the connection configuration every subcommand shares, loaded
// from flags, environment variables (LATTICE_ prefix), and optionally a TOML
// file via --config — the layering viper gives for free.
type config struct {
	Dialect string
	DSN     string
}

func main() {
	var cfg config

	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "JSON document store with SQL-flavored queries",
	}
	rootCmd.PersistentFlags().StringVar(&cfg.Dialect, "dialect", "sqlite", "Repository dialect: sqlite, mysql, postgres, mssql")
	rootCmd.PersistentFlags().StringVar(&cfg.DSN, "dsn", "lattice.db", "Data source name for the selected dialect")
	rootCmd.PersistentFlags().String("config", "", "Optional TOML config file")

	_ = viper.BindPFlag("dialect", rootCmd.PersistentFlags().Lookup("dialect"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.SetEnvPrefix("lattice")
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
			var fileCfg config
			if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to read config file: %v\n", err)
			} else {
				if fileCfg.Dialect != "" {
					viper.SetDefault("dialect", fileCfg.Dialect)
				}
				if fileCfg.DSN != "" {
					viper.SetDefault("dsn", fileCfg.DSN)
				}
			}
		}
		if v := viper.GetString("dialect"); v != "" {
			cfg.Dialect = v
		}
		if v := viper.GetString("dsn"); v != "" {
			cfg.DSN = v
		}
	})

	rootCmd.AddCommand(collectionCmd(&cfg))
	rootCmd.AddCommand(ingestCmd(&cfg))
	rootCmd.AddCommand(queryCmd(&cfg))
	rootCmd.AddCommand(rebuildCmd(&cfg))
	rootCmd.AddCommand(documentCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openRepository(cfg *config) (repository.Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return repository.Open(ctx, repository.Dialect(strings.ToLower(cfg.Dialect)), cfg.DSN)
}

func collectionCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}

	var (
		dir, enforcement, indexing string
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			svc := collection.New(repo)
			c := &core.Collection{
				Name:               args[0],
				DocumentsDirectory: dir,
				SchemaEnforcement:  core.EnforcementMode(enforcement),
				IndexingMode:       core.IndexingMode(indexing),
			}
			if err := svc.Create(context.Background(), c); err != nil {
				return fmt.Errorf("creating collection: %w", err)
			}
			fmt.Printf("created collection %s (%s)\n", c.ID, c.Name)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "documents-dir", "", "Directory document bodies are written to")
	create.Flags().StringVar(&enforcement, "enforcement", string(core.EnforcementNone), "Schema enforcement mode: none, strict, flexible, partial")
	create.Flags().StringVar(&indexing, "indexing", string(core.IndexingAll), "Indexing mode: all, selective, none")

	list := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(_ *cobra.Command, _ []string) error {
			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			cols, err := collection.New(repo).List(context.Background())
			if err != nil {
				return fmt.Errorf("listing collections: %w", err)
			}
			for _, c := range cols {
				fmt.Printf("%s\t%s\t%s\t%s\n", c.ID, c.Name, c.SchemaEnforcement, c.IndexingMode)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			if err := collection.New(repo).Delete(context.Background(), args[0]); err != nil {
				return fmt.Errorf("deleting collection: %w", err)
			}
			fmt.Printf("deleted collection %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func ingestCmd(cfg *config) *cobra.Command {
	var (
		collectionID, file, name string
		labels                   []string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSON document into a collection",
		RunE: func(_ *cobra.Command, _ []string) error {
			if collectionID == "" {
				return fmt.Errorf("--collection is required")
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading document file: %w", err)
			}

			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			pipeline := ingest.New(repo, nil)
			doc, err := pipeline.Ingest(context.Background(), ingest.Input{
				CollectionID: collectionID,
				Name:         name,
				Labels:       labels,
				Body:         body,
			})
			if err != nil {
				return fmt.Errorf("ingesting document: %w", err)
			}
			fmt.Printf("ingested document %s (schema %s)\n", doc.ID, doc.SchemaID)
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "Target collection id (required)")
	cmd.Flags().StringVar(&file, "file", "", "Path to the JSON document to ingest (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable document name")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Label to attach (repeatable)")
	return cmd
}

func documentCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Manage individual documents",
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a single document, its index values, and its body file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			if err := collection.New(repo).DeleteDocument(context.Background(), args[0]); err != nil {
				return fmt.Errorf("deleting document: %w", err)
			}
			fmt.Printf("deleted document %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(del)
	return cmd
}

func queryCmd(cfg *config) *cobra.Command {
	var (
		collectionID   string
		limit, skip    int
		includeContent bool
	)
	cmd := &cobra.Command{
		Use:   "query <where-clause>",
		Short: "Run a WHERE-clause query against a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if collectionID == "" {
				return fmt.Errorf("--collection is required")
			}
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			parsed, err := query.Parse(text)
			if err != nil {
				return fmt.Errorf("parsing query: %w", err)
			}

			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			sq := planner.FromParsedQuery(collectionID, parsed, limit, skip)
			sq.IncludeContent = includeContent

			result, err := planner.New(repo, docfs.New()).Search(context.Background(), sq)
			if err != nil {
				return fmt.Errorf("running query: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "Collection id to query (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum results to return")
	cmd.Flags().IntVar(&skip, "skip", 0, "Results to skip before the page starts")
	cmd.Flags().BoolVar(&includeContent, "include-content", false, "Include document body bytes in the result")
	return cmd
}

func rebuildCmd(cfg *config) *cobra.Command {
	var (
		collectionID string
		dropUnused   bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild a collection's index tables from its document bodies",
		RunE: func(_ *cobra.Command, _ []string) error {
			if collectionID == "" {
				return fmt.Errorf("--collection is required")
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return fmt.Errorf("connecting to repository: %w", err)
			}
			defer func() { _ = repo.Close() }()

			engine := rebuild.New(repo)
			result, err := engine.Rebuild(context.Background(), collectionID, dropUnused, func(p rebuild.Progress) {
				if p.DocumentID != "" {
					fmt.Printf("[%s] %d/%d %s\n", p.Phase, p.Processed, p.Total, p.DocumentID)
					return
				}
				fmt.Printf("[%s]\n", p.Phase)
			})
			if err != nil {
				return fmt.Errorf("rebuilding collection: %w", err)
			}
			if result.Cancelled {
				fmt.Println("rebuild cancelled")
				return nil
			}
			fmt.Printf("indexed %d document(s), cleared %d unselected index table(s), %d error(s)\n",
				result.DocumentsIndexed, result.IndexesDropped, len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("  %s: %v\n", e.DocumentID, e.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "Collection id to rebuild (required)")
	cmd.Flags().BoolVar(&dropUnused, "drop-unused", false, "Delete this collection's values from index tables whose paths are no longer selected under IndexingSelective")
	return cmd
}
