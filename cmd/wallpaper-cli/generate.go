package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beanvault/wallpaper-ai/internal/categories"
)

var (
	modeFlag     string
	categoryFlag string
	promptFlag   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Submit a generation job for a category",
	Long: `Submit a text-to-image job. The rest of the pipeline runs when the
provider calls back the configured base URL.

Without --category a random category of --mode is chosen. Without --prompt
the prompt is composed with Gemini (requires a Gemini API key).`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&modeFlag, "mode", string(categories.Light), "Category set (light or dark)")
	generateCmd.Flags().StringVarP(&categoryFlag, "category", "c", "", "Category key")
	generateCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Prompt text (skips composition)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mode, err := categories.ParseMode(modeFlag)
	if err != nil {
		return err
	}
	category := categories.RandomKey(mode)
	if categoryFlag != "" {
		if category, err = categories.Normalize(categoryFlag); err != nil {
			return err
		}
	}

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	text := promptFlag
	if text == "" {
		if app.Composer == nil {
			return fmt.Errorf("no Gemini API key configured; pass --prompt")
		}
		if text, err = app.Composer.Compose(ctx, category, mode); err != nil {
			return err
		}
	}

	id, err := app.Generator.Submit(ctx, category, text)
	if err != nil {
		return err
	}
	log.Info().Str("category", category).Str("predictionId", id).Msg("Generation job submitted")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]string{
		"category":     category,
		"prompt":       text,
		"predictionId": id,
	})
}
