package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rollcall/internal/audio"
	"rollcall/internal/bootstrap"
	"rollcall/internal/config"
	"rollcall/internal/normalize"
	"rollcall/internal/providers/anyllm"
)

type check struct {
	name string
	run  func() (string, error)
}

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, credentials and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL  config: %v\n", err)
				return fmt.Errorf("configuration is invalid")
			}
			failed := runChecks(cmd.OutOrStdout(), doctorChecks(cfg))
			if failed > 0 {
				return fmt.Errorf("doctor found %d problem(s)", failed)
			}
			return nil
		},
	}
}

func doctorChecks(cfg config.Config) []check {
	checks := []check{
		{name: "config", run: func() (string, error) {
			if cfg.Path == "" {
				return "defaults (no config file)", nil
			}
			return cfg.Path, nil
		}},
		{name: "ffmpeg", run: func() (string, error) {
			return audio.NewMicrophone(cfg.Audio.RecorderCommand).Probe()
		}},
		{name: "rules", run: func() (string, error) {
			_, err := normalize.New(
				normalize.WithRulesFile(cfg.Normalize.RulesFile),
				normalize.WithRules(cfg.Normalize.Rules...),
			)
			if err != nil {
				return "", err
			}
			if _, statErr := os.Stat(cfg.Normalize.RulesFile); statErr != nil {
				return "no rules file at " + cfg.Normalize.RulesFile, nil
			}
			return cfg.Normalize.RulesFile, nil
		}},
		{name: "llm", run: func() (string, error) {
			if _, err := bootstrap.CompletionProvider(cfg.LLM); err != nil {
				return "", err
			}
			label := cfg.LLM.Provider
			if cfg.LLM.Model != "" {
				label += " " + cfg.LLM.Model
			}
			if anyllm.Local(cfg.LLM.Provider) {
				return label + " (local, no key needed)", nil
			}
			if cfg.LLM.ResolveAPIKey() == "" {
				return "", fmt.Errorf("%s: set %s; correction will be skipped", label, cfg.LLM.KeyEnv())
			}
			return label, nil
		}},
	}

	if cfg.Capture.Mode == "clip" {
		checks = append(checks, check{name: "clip transcriber", run: func() (string, error) {
			if cfg.ResolveClipKey() == "" {
				return "", fmt.Errorf("%s: set %s", cfg.Capture.ClipProvider, config.DefaultKeyEnv(cfg.Capture.ClipProvider))
			}
			return cfg.Capture.ClipProvider, nil
		}})
	} else {
		checks = append(checks, check{name: "deepgram", run: func() (string, error) {
			if cfg.Deepgram.APIKey == "" {
				return "", fmt.Errorf("set DEEPGRAM_API_KEY")
			}
			return cfg.Deepgram.Model, nil
		}})
	}
	return checks
}

func runChecks(w io.Writer, checks []check) (failed int) {
	for _, c := range checks {
		detail, err := c.run()
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(w, "ok    %s: %s\n", c.name, detail)
	}
	return failed
}
