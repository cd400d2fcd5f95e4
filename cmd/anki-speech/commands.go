package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/anki-speech/internal/config"
	"github.com/book-expert/anki-speech/internal/worker"
	"github.com/spf13/cobra"
)

const (
	flagConfig   = "config"
	flagForce    = "force"
	flagWorkers  = "workers"
	flagProvider = "provider"
	flagBitrate  = "bitrate"
	flagLimit    = "limit"

	defaultPreviewLimit = 5
)

// ErrNATSRequired indicates serve without nats.url.
var ErrNATSRequired = errors.New("serve requires nats.url (or ANKI_SPEECH_NATS_URL)")

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "anki-speech",
		Short:         "Generate and sync narrated audio for Anki notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, "",
		"Path to project.toml (defaults to the configurator search)")

	cmd.AddCommand(
		newSyncCommand(opts),
		newDecksCommand(opts),
		newPreviewCommand(opts),
		newCharacterCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

type syncOptions struct {
	force    bool
	workers  int
	provider string
	bitrate  string
}

// apply overrides configuration values with the flags that were set.
func (s *syncOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed(flagForce) {
		cfg.Batch.Force = s.force
	}

	if cmd.Flags().Changed(flagWorkers) {
		cfg.Batch.Workers = s.workers
	}

	if cmd.Flags().Changed(flagProvider) {
		cfg.Generation.Provider = strings.ToLower(strings.TrimSpace(s.provider))
	}

	if cmd.Flags().Changed(flagBitrate) {
		cfg.Generation.Bitrate = s.bitrate
	}

	cfg.ApplyDefaults()

	return cfg.Validate()
}

func newSyncCommand(root *rootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:     "sync <deck>",
		Short:   "Regenerate audio for every note of a deck whose content changed",
		Args:    cobra.ExactArgs(1),
		Example: `anki-speech sync "French::Verbs" --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap(root.configPath)
			if err != nil {
				return err
			}
			defer application.close()

			applyErr := opts.apply(cmd, application.cfg)
			if applyErr != nil {
				return applyErr
			}

			orchestrator, err := application.orchestrator(cmd.Context())
			if err != nil {
				return err
			}

			report, processErr := orchestrator.Process(cmd.Context(), args[0], application.cfg.Batch.Force)
			printReport(cmd.OutOrStdout(), report)

			return processErr
		},
	}

	cmd.Flags().BoolVar(&opts.force, flagForce, false, "Regenerate every note regardless of its current audio")
	cmd.Flags().IntVar(&opts.workers, flagWorkers, 1, "Notes processed concurrently")
	cmd.Flags().StringVar(&opts.provider, flagProvider, "", "Speech provider override")
	cmd.Flags().StringVar(&opts.bitrate, flagBitrate, "", "Output bitrate override")

	return cmd
}

func newDecksCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List the decks of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := bootstrap(root.configPath)
			if err != nil {
				return err
			}
			defer application.close()

			decks, err := application.anki.ListCollections(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, deck := range decks {
				fmt.Fprintln(out, deck)
			}

			return nil
		},
	}
}

func newPreviewCommand(root *rootOptions) *cobra.Command {
	var (
		limit int
		force bool
	)

	cmd := &cobra.Command{
		Use:   "preview <deck>",
		Short: "Show what sync would do for the first notes of a deck, without synthesizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap(root.configPath)
			if err != nil {
				return err
			}
			defer application.close()

			orchestrator, err := application.planner()
			if err != nil {
				return err
			}

			items, err := orchestrator.Preview(cmd.Context(), args[0], limit, force)
			if err != nil {
				return err
			}

			printPreview(cmd.OutOrStdout(), items)

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, flagLimit, defaultPreviewLimit, "Number of notes to show (0 for all)")
	cmd.Flags().BoolVar(&force, flagForce, false, "Preview as if sync ran with --force")

	return cmd
}

func newCharacterCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "character",
		Short: "Manage the voice registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "add <name> <voice> [prompt prefix]",
			Short:   "Add or replace a character and save the characters file",
			Args:    cobra.RangeArgs(2, 3),
			Example: `anki-speech character add Teacher Charon "Say patiently:"`,
			RunE: func(cmd *cobra.Command, args []string) error {
				application, err := bootstrap(root.configPath)
				if err != nil {
					return err
				}
				defer application.close()

				registry, err := application.registry()
				if err != nil {
					return err
				}

				prefix := ""
				if len(args) == 3 {
					prefix = args[2]
				}

				upsertErr := registry.Upsert(args[0], args[1], prefix)
				if upsertErr != nil {
					return upsertErr
				}

				saveErr := registry.Save(application.cfg.Paths.CharactersFile)
				if saveErr != nil {
					return saveErr
				}

				application.log.Info("Saved character %s (voice %s)", args[0], args[1])
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", args[0], application.cfg.Paths.CharactersFile)

				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the characters of the registry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				application, err := bootstrap(root.configPath)
				if err != nil {
					return err
				}
				defer application.close()

				registry, err := application.registry()
				if err != nil {
					return err
				}

				printCharacters(cmd.OutOrStdout(), registry.Snapshot())

				return nil
			},
		},
	)

	return cmd
}

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run deck syncs requested over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := bootstrap(root.configPath)
			if err != nil {
				return err
			}
			defer application.close()

			if application.cfg.NATS.URL == "" {
				return ErrNATSRequired
			}

			orchestrator, err := application.orchestrator(cmd.Context())
			if err != nil {
				return err
			}

			application.log.System("anki-speech listening for sync requests on %s", application.cfg.NATS.SyncSubject)

			natsWorker := worker.NewNatsWorker(
				application.nats, application.cfg.NATS.SyncSubject, orchestrator, 0, application.log,
			)

			return natsWorker.Run(cmd.Context())
		},
	}
}
