package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/engine/prediction"
	"github.com/converso-ai/nlu-engine/internal/engine/registry"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

type predictOptions struct {
	bot       string
	modelsDir string
}

func newPredictCmd(root *RootOptions) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict [text]",
		Short: "Classify a sentence against a bot's trained models",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, root, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.bot, "bot", "b", "", "bot identifier (required)")
	cmd.Flags().StringVarP(&opts.modelsDir, "models", "m", "", "local model directory; defaults to the configured object store")
	_ = cmd.MarkFlagRequired("bot")

	return cmd
}

func runPredict(cmd *cobra.Command, root *RootOptions, opts *predictOptions, text string) error {
	rt, err := buildRuntime(cmd.Context(), root)
	if err != nil {
		return err
	}
	defer rt.close()

	set, err := resolveModels(cmd, rt, opts)
	if err != nil {
		return err
	}

	out, err := rt.predict.Predict(cmd.Context(), text, set)
	if err != nil {
		return err
	}
	return printResult(cmd, root, out)
}

// resolveModels loads the bot's model set: from a local directory when
// one is named, else the latest stored model per supported language.
func resolveModels(cmd *cobra.Command, rt *runtime, opts *predictOptions) (prediction.ModelSet, error) {
	if opts.modelsDir != "" {
		debounce := time.Duration(rt.cfg.Training.DebounceSeconds) * time.Second
		reg := registry.NewRegistry(debounce, rt.cfg.Language.DefaultLanguage, rt.logger)
		defer reg.Close()
		if err := reg.Mount(opts.bot, opts.modelsDir); err != nil {
			return prediction.ModelSet{}, err
		}
		set, _ := reg.Get(opts.bot)
		return set, nil
	}

	if rt.store == nil {
		return prediction.ModelSet{}, errors.New(errors.ErrCodeConfiguration,
			"no --models directory and no object-store endpoint configured")
	}

	set := prediction.ModelSet{
		DefaultLanguage: rt.cfg.Language.DefaultLanguage,
		Models:          make(map[string]*model.Model),
	}
	languages := rt.cfg.Language.SupportedLangs
	if len(languages) == 0 {
		languages = []string{rt.cfg.Language.DefaultLanguage}
	}
	for _, lang := range languages {
		m, err := rt.store.LoadLatest(cmd.Context(), opts.bot, lang)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeModelNotFound) {
				continue
			}
			return prediction.ModelSet{}, err
		}
		set.Models[lang] = m
	}
	if len(set.Models) == 0 {
		return prediction.ModelSet{}, errors.Newf(errors.ErrCodeModelNotFound,
			"no stored models for bot %q", opts.bot)
	}
	return set, nil
}
