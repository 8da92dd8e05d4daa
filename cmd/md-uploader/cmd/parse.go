package cmd

import (
	"fmt"
	"path/filepath"

	"go-mangadex-upload/internal/metadata"
	"go-mangadex-upload/internal/orchestrator"

	"github.com/spf13/cobra"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse [ARCHIVE...]",
	Short: "Show the metadata read from archive names without uploading",
	Long: `Parses each archive name the way upload does and prints the result.
With no arguments every archive in the uploads folder is parsed.
Nothing is sent to the platform.`,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		jobs, err := orchestrator.DiscoverJobs(globalConfig.UploadsFolder)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			names = append(names, job.Name)
		}
	}

	parser := metadata.NewParser(metadata.LoadNameIDMap(globalConfig.NameIDMapFile), globalConfig.GroupFallbackID, metadata.FailClosed)
	out := cmd.OutOrStdout()
	failed := 0
	for _, name := range names {
		meta, err := parser.Parse(filepath.Base(name))
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\n  error: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%s\n  %s\n", name, meta)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archive name(s) could not be parsed", failed, len(names))
	}
	return nil
}
