package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"actioner/internal/broker"
	"actioner/internal/catalog"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	"actioner/pkg/bootstrap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openCatalogDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := catalog.Migrate(db); err != nil {
				return err
			}
			log.Infow("Catalog schema is up to date")
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and edit the action catalog",
	}
	cmd.AddCommand(catalogApplyCmd(), catalogDeleteCmd(), catalogListCmd())
	return cmd
}

func catalogApplyCmd() *cobra.Command {
	var file, changedBy string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the entries of a manifest file",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := catalog.LoadManifestFile(file)
			if err != nil {
				return err
			}
			return withEditor(cmd.Context(), func(ctx context.Context, editor *catalog.Editor, log logger.Logger) error {
				for _, e := range entries {
					saved, err := editor.Put(ctx, e, changedBy)
					if err != nil {
						return fmt.Errorf("failed to apply %s %q: %w", e.ConfigType, e.Name, err)
					}
					log.Infow("Catalog entry applied",
						"config_type", saved.ConfigType,
						"name", saved.Name,
						"version", saved.Version,
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file (required)")
	cmd.Flags().StringVar(&changedBy, "changed-by", os.Getenv("USER"), "Recorded as the author of the change")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogDeleteCmd() *cobra.Command {
	var configType, name, changedBy string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd.Context(), func(ctx context.Context, editor *catalog.Editor, log logger.Logger) error {
				if err := editor.Delete(ctx, configType, name, changedBy); err != nil {
					return err
				}
				log.Infow("Catalog entry deleted", "config_type", configType, "name", name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&configType, "type", "", "Config type, e.g. ActionRule (required)")
	cmd.Flags().StringVar(&name, "name", "", "Entry name (required)")
	cmd.Flags().StringVar(&changedBy, "changed-by", os.Getenv("USER"), "Recorded as the author of the change")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog entries and report the ones that would be skipped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openCatalogDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := catalog.NewPostgresStore(db).List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tSUBTYPE\tVERSION\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ConfigType, e.Name, e.Subtype, e.Version, e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, s := range catalog.NewSnapshot(entries).Skipped() {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s %q: %v\n", s.ConfigType, s.Name, s.Err)
			}
			return nil
		},
	}
}

func openCatalogDB(ctx context.Context, cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(ctx)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("database.postgres is not configured")
	}
	return db, nil
}

// withEditor runs fn against the catalog store, announcing every change on
// the config update topic.
func withEditor(ctx context.Context, fn func(context.Context, *catalog.Editor, logger.Logger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openCatalogDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	var notifier *catalog.Notifier
	if cfg.Broker.Kafka.ConfigUpdateTopic != "" {
		producer, err := broker.NewProducer(cfg.Broker, constants.ServiceNameEvaluator, log)
		if err != nil {
			log.Warnw("Config update producer unavailable, replicas will pick the change up on their next reload", "error", err)
		} else {
			defer producer.Close()
			notifier = catalog.NewNotifier(producer, cfg.Broker.Kafka.ConfigUpdateTopic)
		}
	}

	return fn(ctx, catalog.NewEditor(catalog.NewPostgresStore(db), notifier), log)
}
