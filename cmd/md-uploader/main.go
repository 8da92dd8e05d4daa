package main

import (
	"go-mangadex-upload/cmd/md-uploader/cmd"
	"go-mangadex-upload/internal/api"
)

func main() {
	// Flush and close any API log files on exit
	defer api.CloseAllLoggingTransports()

	cmd.Execute()
}
