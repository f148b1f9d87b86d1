package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-webapp",
	Short: "A self-hosted photo library with AI enrichment",
	Long: `Photo Webapp ingests a local photo and video library, enriches every
item through an AI pipeline (metadata, thumbnails, faces, embeddings,
object labels) and answers structured and natural-language searches
over the result.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
