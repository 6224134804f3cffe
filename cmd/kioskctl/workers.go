package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"facekiosk/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List and manage enrolled workers",
	RunE:  runWorkersList,
}

var workersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enroll a worker with a reference photo",
	Long: `Upload the reference photo and create the worker profile.

Example:
  kioskctl workers add --name "Juan Cruz" --role Mason --photo ./juan.jpg`,
	Args: cobra.NoArgs,
	RunE: runWorkersAdd,
}

var workersRemoveCmd = &cobra.Command{
	Use:   "remove [id...]",
	Short: "Remove workers by id; their attendance records are kept",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkersRemove,
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersAddCmd, workersRemoveCmd)

	workersAddCmd.Flags().String("name", "", "Full name")
	workersAddCmd.Flags().String("role", "", "Role or trade")
	workersAddCmd.Flags().String("photo", "", "Path to the reference photo")
	_ = workersAddCmd.MarkFlagRequired("photo")
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.Workers.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}
	return renderWorkers(cmd.OutOrStdout(), outputFormat, profiles)
}

func runWorkersAdd(cmd *cobra.Command, args []string) error {
	path := mustGetString(cmd, "photo")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	photo := &worker.Photo{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}
	p, err := a.Workers.Add(ctx, mustGetString(cmd, "name"), mustGetString(cmd, "role"), photo)
	if err != nil {
		return err
	}
	return renderWorkers(cmd.OutOrStdout(), outputFormat, []worker.Profile{p})
}

func runWorkersRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		if err := a.Workers.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed worker %s\n", id)
	}
	return nil
}
