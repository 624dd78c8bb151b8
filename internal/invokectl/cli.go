package invokectl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Run executes the CLI and returns a process exit code.
func Run(args []string) int {
	root := buildRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// buildRootCmd constructs the Cobra command tree wired to a Client.
func buildRootCmd() *cobra.Command {
	defaultAddr := "http://localhost:9090"
	if v := os.Getenv("INVOKECTL_ADDR"); v != "" {
		defaultAddr = v
	}
	var addr string
	var client *Client

	root := &cobra.Command{
		Use:           "invokectl",
		Short:         "Inspect and drive a running invokeai server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "Base URL of the invokeai server")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		client = NewClient(addr)
	}

	statusCmd := &cobra.Command{Use: "status", Short: "Show cache residency status", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client.CacheStatus()
		if err != nil {
			return err
		}
		return printJSON(st)
	}}
	root.AddCommand(statusCmd)

	// models group
	modelsCmd := &cobra.Command{Use: "models", Short: "Manage model configs", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("models requires a subcommand: list|get|delete")
	}}
	modelsList := &cobra.Command{Use: "list", Short: "List model configs", RunE: func(cmd *cobra.Command, args []string) error {
		mr, err := client.ListModels()
		if err != nil {
			return err
		}
		return printJSON(mr)
	}}
	modelsGet := &cobra.Command{Use: "get KEY", Short: "Show one model config", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := client.GetModel(args[0])
		if err != nil {
			return err
		}
		return printJSON(cfg)
	}}
	modelsDelete := &cobra.Command{Use: "delete KEY", Short: "Delete a model config", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return client.DeleteModel(args[0])
	}}
	modelsCmd.AddCommand(modelsList, modelsGet, modelsDelete)
	root.AddCommand(modelsCmd)

	// workflows group
	wfCmd := &cobra.Command{Use: "workflows", Short: "Manage workflows", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("workflows requires a subcommand: list|get|delete")
	}}
	var page, perPage int
	wfList := &cobra.Command{Use: "list", Short: "List workflows, paginated", RunE: func(cmd *cobra.Command, args []string) error {
		pr, err := client.ListWorkflows(page, perPage)
		if err != nil {
			return err
		}
		return printJSON(pr)
	}}
	wfList.Flags().IntVar(&page, "page", 0, "Zero-based page index")
	wfList.Flags().IntVar(&perPage, "per-page", 10, "Page size")
	wfGet := &cobra.Command{Use: "get ID", Short: "Show one workflow", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := client.GetWorkflow(args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	}}
	wfDelete := &cobra.Command{Use: "delete ID", Short: "Delete a workflow", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return client.DeleteWorkflow(args[0])
	}}
	wfCmd.AddCommand(wfList, wfGet, wfDelete)
	root.AddCommand(wfCmd)

	// cache group
	cacheCmd := &cobra.Command{Use: "cache", Short: "Drive the model cache", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("cache requires a subcommand: load|unload")
	}}
	var targetBytes, freeBytes int64
	cacheLoad := &cobra.Command{Use: "load KEY", Short: "Load a model onto the compute device", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var target *int64
		if cmd.Flags().Changed("target-bytes") {
			target = &targetBytes
		}
		lr, err := client.CacheLoad(args[0], target)
		if err != nil {
			return err
		}
		return printJSON(lr)
	}}
	cacheLoad.Flags().Int64Var(&targetBytes, "target-bytes", 0, "Bytes to make device resident (omit for full load)")
	cacheUnload := &cobra.Command{Use: "unload KEY", Short: "Free device memory held by a model", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var target *int64
		if cmd.Flags().Changed("free-bytes") {
			target = &freeBytes
		}
		ur, err := client.CacheUnload(args[0], target)
		if err != nil {
			return err
		}
		return printJSON(ur)
	}}
	cacheUnload.Flags().Int64Var(&freeBytes, "free-bytes", 0, "Bytes to free (omit for full unload)")
	cacheCmd.AddCommand(cacheLoad, cacheUnload)
	root.AddCommand(cacheCmd)

	return root
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
