package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/janhq/flow-api/internal/config"
	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/interpreter"
	"github.com/janhq/flow-api/internal/domain/operation"
	"github.com/janhq/flow-api/internal/infrastructure/llmprovider"
	"github.com/janhq/flow-api/internal/infrastructure/logger"
	"github.com/janhq/flow-api/internal/infrastructure/storage"
)

var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Apply a natural-language instruction to a flow file",
	Long: `Send one instruction to the configured model, apply the operations it selects
and write the flow back in its original format. Provider settings come from the
same environment variables as the server (LLM_API_URL, LLM_API_KEY, LLM_MODEL).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstruction,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Flow file (JSON or YAML)")
	runCmd.Flags().Bool("dry-run", false, "Print the result without writing the file")
	_ = runCmd.MarkFlagRequired("file")
}

func runInstruction(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := zerolog.Nop()
	if verbose {
		log = logger.New(cfg)
	}

	f, format, err := readFlowFile(path)
	if err != nil {
		return err
	}

	// Without a store the executor only detaches generated audio, so a dry run leaves files alone.
	var assets flow.AssetStore
	if !dryRun {
		local, err := storage.NewLocalStorage(assetRoot(path), log)
		if err != nil {
			return err
		}
		assets = local
	}

	classifier := domainerrors.NewClassifier()
	provider := llmprovider.NewClient(llmprovider.Config{
		BaseURL:       cfg.LLMAPIURL,
		APIKey:        cfg.LLMAPIKey,
		Timeout:       cfg.LLMTimeout,
		SpeechTimeout: cfg.SpeechTimeout,
	}, classifier, log)
	temperature := cfg.LLMTemperature
	interp := interpreter.New(provider, classifier, interpreter.Config{
		Model:         cfg.LLMModel,
		PreviewLength: cfg.PreviewLength,
		Temperature:   &temperature,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := operation.NewExecutor(f, assets, cfg.PreviewLength, log)
	outcome, runErr := interp.Run(ctx, interpreter.Turn{
		Text:     strings.Join(args, " "),
		Executor: executor,
	})

	out := cmd.OutOrStdout()
	if outcome != nil {
		for _, action := range outcome.Actions {
			mark := "ok"
			if !action.Success {
				mark = "failed"
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", mark, action.Action, action.Message)
		}
		if outcome.Narration != "" {
			fmt.Fprintln(out, outcome.Narration)
		}
	}

	if outcome != nil && outcome.ChangesApplied {
		f.Touch(time.Now())
		if dryRun {
			data, err := encode(f, format)
			if err != nil {
				return err
			}
			_, _ = out.Write(data)
		} else if err := writeFlowFile(path, f, format); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%s (%s): %w", domainerrors.UserMessage(runErr), domainerrors.KindOf(runErr), runErr)
	}
	return nil
}

// assetRoot is the local asset directory that sits next to a flow file.
func assetRoot(flowPath string) string {
	return filepath.Join(filepath.Dir(flowPath), "assets")
}
