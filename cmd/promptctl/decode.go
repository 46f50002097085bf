package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"prompt-decoder-server/modules/common/config"
	"prompt-decoder-server/modules/common/gemini"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/decode"
	"prompt-decoder-server/modules/history"
	"prompt-decoder-server/modules/share"
)

var (
	decodeCount  int
	decodeJSON   bool
	decodeNoText bool
	decodeAuthor string

	preprocessOut     string
	preprocessMaxDim  int
	preprocessQuality float64
	preprocessFormat  string
)

var decodeCmd = &cobra.Command{
	Use:   "decode <image>",
	Short: "Reconstruct prompts for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger.Configure(logger.Options{Level: cfg.LogLevel, Format: "text"})

		ctx := cmd.Context()
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.Policy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			BaseDelay:      cfg.RetryBaseDelay,
			AttemptTimeout: cfg.RetryAttemptTimeout,
		})
		if err != nil {
			return err
		}

		service := decode.NewService(decode.Deps{
			Analyzer:  client,
			Processor: imageproc.NewProcessor(nil, cfg.PreprocessTimeout),
			Options:   optionsFrom(cfg),
			History:   history.NewMemoryStore(1),
		})

		session := "cli-" + uuid.NewString()
		payload, err := preprocessFile(ctx, service, session, args[0], cfg.MaxUploadBytes)
		if err != nil {
			return err
		}

		res, err := service.Decode(ctx, decode.DecodeRequest{
			SessionID: session,
			Count:     decodeCount,
			Image:     payload,
		})
		if err != nil {
			return err
		}

		opts := share.DisplayOptions{AuthorName: decodeAuthor, NoText: decodeNoText}
		return writeResult(cmd.OutOrStdout(), res, opts)
	},
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <image>",
	Short: "Bound and re-encode an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Defaults()
		opts := imageproc.Options{
			MaxDimension: preprocessMaxDim,
			Quality:      preprocessQuality,
			OutputFormat: preprocessFormat,
		}
		if err := opts.Validate(); err != nil {
			return err
		}

		service := decode.NewService(decode.Deps{
			Processor: imageproc.NewProcessor(nil, cfg.PreprocessTimeout),
			Options:   opts,
			History:   history.NewMemoryStore(1),
		})

		payload, err := preprocessFile(cmd.Context(), service, "", args[0], cfg.MaxUploadBytes)
		if err != nil {
			return err
		}

		data, err := base64.StdEncoding.DecodeString(payload.Base64)
		if err != nil {
			return err
		}
		if preprocessOut != "" {
			if err := os.WriteFile(preprocessOut, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", preprocessOut, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %d bytes\n", payload.MimeType, payload.Width, payload.Height, len(data))
		return nil
	},
}

func init() {
	decodeCmd.Flags().IntVarP(&decodeCount, "count", "n", 0, "number of prompts to reconstruct (1-20, default 10)")
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "print the JSON export instead of plain text")
	decodeCmd.Flags().BoolVar(&decodeNoText, "no-text", false, "drop sentences about text in the image")
	decodeCmd.Flags().StringVar(&decodeAuthor, "author", "", "author credit appended to each prompt")

	defaults := imageproc.DefaultOptions()
	preprocessCmd.Flags().StringVarP(&preprocessOut, "out", "o", "", "write the re-encoded image to this path")
	preprocessCmd.Flags().IntVar(&preprocessMaxDim, "max-dimension", defaults.MaxDimension, "longest side after resizing")
	preprocessCmd.Flags().Float64Var(&preprocessQuality, "quality", defaults.Quality, "encoder quality in (0,1]")
	preprocessCmd.Flags().StringVar(&preprocessFormat, "format", defaults.OutputFormat, "image/jpeg or image/webp")
}

func optionsFrom(cfg *config.Config) imageproc.Options {
	return imageproc.Options{
		MaxDimension: cfg.MaxDimension,
		MaxPixels:    cfg.MaxPixels,
		Quality:      cfg.ImageQuality,
		OutputFormat: cfg.OutputFormat,
	}
}

func preprocessFile(ctx context.Context, service *decode.Service, session, path string, maxBytes int64) (imageproc.ImagePayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return imageproc.ImagePayload{}, err
	}
	defer f.Close()

	file, err := imageproc.ReadFile(f, filepath.Base(path), "", maxBytes)
	if err != nil {
		return imageproc.ImagePayload{}, err
	}
	return service.Preprocess(ctx, session, file)
}

func writeResult(w io.Writer, res *decode.DecodeResult, opts share.DisplayOptions) error {
	if !decodeJSON {
		_, err := fmt.Fprintln(w, share.ExportText(res.Result, opts))
		return err
	}

	doc := struct {
		EntryID string          `json:"entryId"`
		Export  json.RawMessage `json:"export"`
	}{EntryID: res.EntryID}

	data, err := share.ExportJSON(res.Result, opts, nowFunc())
	if err != nil {
		return err
	}
	doc.Export = data

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
