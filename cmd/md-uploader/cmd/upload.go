package cmd

import (
	"fmt"
	"os"

	"go-mangadex-upload/index"
	"go-mangadex-upload/internal/metadata"
	"go-mangadex-upload/internal/orchestrator"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload every archive in the uploads folder",
	Long: `Uploads each zip/cbz archive found in the uploads folder as a chapter.
Archives are processed one at a time in name order. Committed archives are
moved to the uploaded folder and recorded in the local history, so running
the command again skips them unless --force is given.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("folder", "", "Folder holding the archives to upload (overrides config)")
	uploadCmd.Flags().Int("batch-size", 0, "Images per upload request (overrides config)")
	uploadCmd.Flags().Int("retries", 0, "Attempts per platform request (overrides config)")
	uploadCmd.Flags().String("group-fallback", "", "Group id used when an archive names no known group (overrides config)")
	uploadCmd.Flags().Bool("force", false, "Upload archives even if they were uploaded before")
	uploadCmd.Flags().Bool("no-prompt", false, "Fail archives with an ambiguous language instead of asking")

	viper.BindPFlag("upload.folder", uploadCmd.Flags().Lookup("folder"))
	viper.BindPFlag("upload.batch_size", uploadCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("upload.retries", uploadCmd.Flags().Lookup("retries"))
	viper.BindPFlag("upload.group_fallback", uploadCmd.Flags().Lookup("group-fallback"))
	viper.BindPFlag("upload.force", uploadCmd.Flags().Lookup("force"))
	viper.BindPFlag("upload.no_prompt", uploadCmd.Flags().Lookup("no-prompt"))
}

// applyUploadFlags copies the upload overrides into globalConfig.
func applyUploadFlags() {
	if folder := viper.GetString("upload.folder"); folder != "" {
		globalConfig.UploadsFolder = folder
		log.Debugf("Overriding UploadsFolder based on --folder flag: %s", folder)
	}
	if size := viper.GetInt("upload.batch_size"); size > 0 {
		globalConfig.ImagesPerBatch = size
		log.Debugf("Overriding ImagesPerBatch based on --batch-size flag: %d", size)
	}
	if retries := viper.GetInt("upload.retries"); retries > 0 {
		globalConfig.UploadRetry = retries
		log.Debugf("Overriding UploadRetry based on --retries flag: %d", retries)
	}
	if group := viper.GetString("upload.group_fallback"); group != "" {
		globalConfig.GroupFallbackID = group
		log.Debugf("Overriding GroupFallbackID based on --group-fallback flag: %s", group)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	applyUploadFlags()

	jobs, err := orchestrator.DiscoverJobs(globalConfig.UploadsFolder)
	if err != nil {
		return err
	}
	log.Infof("Found %d archive(s) in %s", len(jobs), globalConfig.UploadsFolder)

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	var idx bleve.Index
	idx, err = index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warn("Chapter index unavailable, committed chapters will not be searchable")
		idx = nil
	} else {
		defer idx.Close()
	}

	writer := uilive.New()
	writer.Start()

	var disambiguator metadata.Disambiguator = metadata.FailClosed
	if !viper.GetBool("upload.no_prompt") {
		disambiguator = newConsoleDisambiguator(os.Stdin, writer.Bypass())
	}
	names := metadata.LoadNameIDMap(globalConfig.NameIDMapFile)

	svc.uploader.Out = writer
	orch := orchestrator.New(orchestrator.Deps{
		Parser:   metadata.NewParser(names, globalConfig.GroupFallbackID, disambiguator),
		Auth:     svc.session,
		Uploader: svc.uploader,
		History:  svc.db,
		Index:    idx,
	}, globalConfig)
	orch.Force = viper.GetBool("upload.force")
	orch.Out = writer.Bypass()

	report, runErr := orch.Run(ctx, jobs)
	writer.Stop()

	report.Print(os.Stdout)
	if runErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("upload interrupted: %w", runErr)
		}
		return runErr
	}
	return nil
}
