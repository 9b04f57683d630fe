package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dealscanner/deals-cli/internal/classify"
	"github.com/dealscanner/deals-cli/internal/model"
)

var seedFile string

var seedCategoriesCmd = &cobra.Command{
	Use:   "seed-categories",
	Short: "Seed the category taxonomy",
	Long:  "Writes the built-in Danish grocery taxonomy, or a custom one from a YAML file, into the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var cats []model.Category
		if seedFile != "" {
			data, err := os.ReadFile(seedFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", seedFile)
			}
			if err := yaml.Unmarshal(data, &cats); err != nil {
				return eris.Wrapf(err, "parse %s", seedFile)
			}
		} else {
			cats = classify.DefaultCategories()
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Store.Migrate(ctx); err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range cats {
			c := &cats[i]
			if c.ID == "" || c.Name == "" {
				return eris.Errorf("category %d: id and name are required", i)
			}
			c.UpdatedAt = now
			if err := e.Store.UpsertCategory(ctx, c); err != nil {
				return err
			}
		}
		e.Classifier.Invalidate()

		fmt.Printf("Seeded %d categories\n", len(cats))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Store.Migrate(ctx); err != nil {
			return err
		}

		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	seedCategoriesCmd.Flags().StringVar(&seedFile, "file", "", "YAML taxonomy file (default built-in)")
	rootCmd.AddCommand(seedCategoriesCmd)
	rootCmd.AddCommand(migrateCmd)
}
