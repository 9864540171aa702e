package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"starpsf/pkg/modelstore"
)

var (
	storePath  string
	storeField string
	storeOut   string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Query the model archive",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := modelstore.Open(storePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		records, err := store.List(cmd.Context(), storeField)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s  %-20s ext=%d  %s  %dx%dx%d  terms=%d  %s\n",
				r.ID, r.Field, r.Extension, r.Format, r.Width, r.Height, r.NComp, r.NCoeff,
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Extract an archived model to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse model id: %w", err)
		}
		store, err := modelstore.Open(storePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		model, err := store.Load(cmd.Context(), id)
		if err != nil {
			return err
		}
		if storeOut == "" {
			printModel(model)
			return nil
		}
		return writeModel(storeOut, model)
	},
}

func init() {
	storeCmd.PersistentFlags().StringVar(&storePath, "db", "psf_models.db", "SQLite model archive")
	storeListCmd.Flags().StringVar(&storeField, "field", "", "only list models of this field")
	storeGetCmd.Flags().StringVarP(&storeOut, "output", "o", "", "write the model here instead of printing it")
	storeCmd.AddCommand(storeListCmd, storeGetCmd)
}
