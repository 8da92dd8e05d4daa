package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"go-mangadex-upload/index"
	"go-mangadex-upload/internal/database"
	"go-mangadex-upload/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// historyCmd represents the base command for upload history operations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previously uploaded archives",
}

var historyViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List the upload history, newest first",
	RunE:  runHistoryView,
}

var historySearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search committed chapters",
	Long: `Searches the index of committed chapters using Bleve query string syntax.

Indexed fields:
  - id (string): chapter id on the platform
  - archiveName (string): original archive file name
  - seriesId (string): series id
  - language (string): language code
  - volume, chapter, title (string)
  - groupIds ([]string): scanlation group ids
  - pages (numeric): number of pages
  - filePath (string): where the archive was moved
  - committedAt (time): commit time

Examples:
  md-uploader history search -q "+language:es"
  md-uploader history search -q "+seriesId:f9c33607-9180-4ba6-b85c-e4b5faee7192 +chapter:14"`,
	RunE: runHistorySearch,
}

var historyReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the chapter index from the upload history",
	RunE:  runHistoryReindex,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove failed uploads from the history",
	Long: `Deletes every failed entry from the upload history. Committed entries are
kept, so duplicate detection is unaffected.`,
	RunE: runHistoryClean,
}

var historyQuery string
var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyViewCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyReindexCmd)
	historyCmd.AddCommand(historyCleanCmd)

	historyViewCmd.Flags().Bool("failed", false, "Only show failed uploads")
	historySearchCmd.Flags().StringVarP(&historyQuery, "query", "q", "", "Search query (uses Bleve query string syntax)")
	historyCleanCmd.Flags().BoolP("yes", "y", false, "Remove without asking for confirmation")
	historySearchCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of results")
	_ = historySearchCmd.MarkFlagRequired("query")
}

func runHistoryView(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database at %s: %w", globalConfig.DatabasePath, err)
	}
	defer db.Close()

	records, err := db.ListUploads()
	if err != nil {
		return err
	}
	onlyFailed, _ := cmd.Flags().GetBool("failed")

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "When\tStatus\tArchive\tChapter Id\tPages\tDetails")
	fmt.Fprintln(tw, "----\t------\t-------\t----------\t-----\t-------")
	count := 0
	for _, rec := range records {
		if onlyFailed && rec.Status != models.StatusFailed {
			continue
		}
		details := rec.MovedTo
		if rec.ErrorDetails != "" {
			details = rec.ErrorDetails
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.Timestamp.Format("2006-01-02 15:04"), rec.Status, rec.ArchiveName, rec.ChapterID, rec.Pages, details)
		count++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d record(s).\n", count)
	return nil
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(historyQuery) == "" {
		return errors.New("search query cannot be empty")
	}

	log.Debugf("Opening Bleve index at: %s", globalConfig.BleveIndexPath)
	idx, err := bleve.Open(globalConfig.BleveIndexPath)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return fmt.Errorf("chapter index not found at %s, upload something first", globalConfig.BleveIndexPath)
		}
		return fmt.Errorf("failed to open chapter index at %s: %w", globalConfig.BleveIndexPath, err)
	}
	defer idx.Close()

	results, err := index.SearchIndex(idx, historyQuery, historyLimit)
	if err != nil {
		return fmt.Errorf("error performing search: %w", err)
	}
	log.Debugf("Search finished. Hits: %d, Total: %d, Took: %s", len(results.Hits), results.Total, results.Took)

	out := cmd.OutOrStdout()
	if results.Total == 0 {
		fmt.Fprintln(out, "No chapters found matching your query.")
		return nil
	}
	for i, hit := range results.Hits {
		fmt.Fprintf(out, "[%d] %s (score %.2f)\n", i+1, hit.ID, hit.Score)
		for _, field := range []string{"archiveName", "seriesId", "language", "volume", "chapter", "title", "pages", "filePath"} {
			if v, ok := hit.Fields[field]; ok && v != "" {
				fmt.Fprintf(out, "  %s: %v\n", field, v)
			}
		}
	}
	return nil
}

func runHistoryReindex(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database at %s: %w", globalConfig.DatabasePath, err)
	}
	defer db.Close()

	records, err := db.ListUploads()
	if err != nil {
		return err
	}

	if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
		return fmt.Errorf("failed to delete chapter index: %w", err)
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	count := 0
	for _, rec := range records {
		if rec.Status != models.StatusCommitted || rec.ChapterID == "" {
			continue
		}
		if err := index.IndexChapter(idx, index.ChapterFromRecord(rec)); err != nil {
			log.WithError(err).Warnf("Could not index %s", rec.ArchiveName)
			continue
		}
		count++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d committed chapter(s).\n", count)
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database at %s: %w", globalConfig.DatabasePath, err)
	}
	defer db.Close()

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && !confirm(os.Stdin, cmd.OutOrStdout(), "Remove all failed uploads from the history?") {
		log.Info("History clean cancelled by user.")
		return nil
	}

	removed, err := db.PruneFailed()
	if err != nil {
		return fmt.Errorf("error cleaning history: %w", err)
	}
	log.Infof("Removed %d failed history record(s)", removed)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed upload(s) from the history.\n", removed)
	return nil
}
