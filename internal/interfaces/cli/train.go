package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

type trainOptions struct {
	file      string
	fromStore bool
	bot       string
	language  string
	out       string
	save      bool
}

func newTrainCmd(root *RootOptions) *cobra.Command {
	opts := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one training cycle from a structured training file",
		Long:  "train reads a JSON training definition (intents, contexts, list and\npattern entities) and produces a serialized model.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "training definition JSON file")
	cmd.Flags().BoolVar(&opts.fromStore, "from-store", false, "load the training definition from the configured database")
	cmd.Flags().StringVarP(&opts.bot, "bot", "b", "", "bot identifier (with --from-store)")
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "language code (with --from-store)")
	cmd.Flags().StringVar(&opts.out, "out", "", "directory to write the trained model into")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the model to the configured object store")
	cmd.MarkFlagsOneRequired("file", "from-store")
	cmd.MarkFlagsMutuallyExclusive("file", "from-store")
	cmd.MarkFlagsRequiredTogether("from-store", "bot", "lang")

	return cmd
}

func runTrain(cmd *cobra.Command, root *RootOptions, opts *trainOptions) error {
	var input nlu.TrainInput
	if opts.file != "" {
		blob, err := os.ReadFile(opts.file)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeBadRequest, "failed to read training file %q", opts.file)
		}
		if err := json.Unmarshal(blob, &input); err != nil {
			return errors.Wrapf(err, errors.ErrCodeSerialization, "failed to parse training file %q", opts.file)
		}
	}

	rt, err := buildRuntime(cmd.Context(), root)
	if err != nil {
		return err
	}
	defer rt.close()

	if opts.save && rt.store == nil {
		return errors.New(errors.ErrCodeConfiguration, "--save requires an object-store endpoint in the configuration")
	}
	if opts.fromStore {
		if rt.definitions == nil {
			return errors.New(errors.ErrCodeConfiguration, "--from-store requires a database host in the configuration")
		}
		input, err = rt.definitions.Load(cmd.Context(), opts.bot, opts.language)
		if err != nil {
			return err
		}
	}

	// An unchanged input hash means the stored model is already current.
	if rt.store != nil {
		hash := model.InputHash(input)
		if ok, err := rt.store.Exists(cmd.Context(), input.BotID, input.Language, hash); err == nil && ok {
			return printResult(cmd, root, map[string]interface{}{
				"bot_id":   input.BotID,
				"language": input.Language,
				"hash":     hash,
				"skipped":  true,
			})
		}
	}

	m := rt.trainer.Train(cmd.Context(), input)

	if opts.out != "" {
		if err := writeModelFile(opts.out, m.Language, m); err != nil {
			return err
		}
	}
	if opts.save {
		written, err := rt.store.Save(cmd.Context(), m)
		if err != nil {
			return err
		}
		if !written {
			rt.logger.Info("model already stored, skipped upload",
				logging.String("hash", m.Hash))
		}
	}
	if rt.vocab != nil && m.Trained() {
		if err := rt.vocab.Sync(cmd.Context(), m); err != nil {
			rt.logger.Warn("vocabulary sync failed, predictions fall back to in-memory lookup",
				logging.String("hash", m.Hash), logging.Err(err))
		}
	}
	// Keep the definition that produced the model so later runs can retrain
	// it with --from-store.
	if rt.definitions != nil && m.Success && !opts.fromStore {
		if err := rt.definitions.Save(cmd.Context(), input); err != nil {
			rt.logger.Warn("failed to persist training definition", logging.Err(err))
		}
	}

	summary := map[string]interface{}{
		"bot_id":   m.BotID,
		"language": m.Language,
		"hash":     m.Hash,
		"success":  m.Success,
		"elapsed":  m.FinishedAt.Sub(m.StartedAt).String(),
	}
	if err := printResult(cmd, root, summary); err != nil {
		return err
	}
	if !m.Success {
		return errors.New(errors.ErrCodeTrainingFailed, "training cycle failed; see logs for the failing stage")
	}
	return nil
}

func writeModelFile(dir, language string, m *model.Model) error {
	blob, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "failed to create model directory %q", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.json", language))
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "failed to write model file %q", path)
	}
	return nil
}
