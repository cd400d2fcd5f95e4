package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/anki-speech/internal/anki"
	"github.com/book-expert/anki-speech/internal/batch"
	"github.com/book-expert/anki-speech/internal/config"
	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/objectstore"
	"github.com/book-expert/anki-speech/internal/text"
	"github.com/book-expert/anki-speech/internal/tts"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/book-expert/anki-speech/internal/voices"
	"github.com/book-expert/anki-speech/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "anki-speech-bootstrap.log"
	logFile          = "anki-speech.log"
)

// app owns everything built from the configuration for one command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	anki    *anki.Client
	nats    *nats.Conn
	closers []io.Closer
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// bootstrap loads the configuration with a temporary logger, then creates the
// final logger under the configured logs directory.
func bootstrap(configPath string) (*app, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	var cfg *config.Config

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, err
	}

	return &app{
		cfg:  cfg,
		log:  finalLog,
		anki: anki.NewClient(cfg.Anki.URL, cfg.AnkiTimeout()),
	}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		closeErr := a.closers[i].Close()
		if closeErr != nil {
			a.log.Warn("Failed to release resource: %v", closeErr)
		}
	}

	if a.nats != nil {
		a.nats.Close()
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// registry loads the characters file. A missing file yields an empty registry.
func (a *app) registry() (*voices.Registry, error) {
	path := a.cfg.Paths.CharactersFile

	registry, entryErrs, err := voices.Load(path, a.cfg.Generation.DefaultCharacter)
	if errors.Is(err, os.ErrNotExist) {
		a.log.Warn("Characters file %s not found, starting with an empty registry", path)

		return voices.New(a.cfg.Generation.DefaultCharacter), nil
	}

	if err != nil {
		return nil, err
	}

	for _, entryErr := range entryErrs {
		a.log.Warn("Skipping character: %v", entryErr)
	}

	a.log.Info("Loaded %d characters from %s", registry.Len(), path)

	return registry, nil
}

// connectNATS connects once when nats.url is configured.
func (a *app) connectNATS() (nats.JetStreamContext, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}

	if a.nats == nil {
		conn, err := nats.Connect(a.cfg.NATS.URL, nats.Name("anki-speech"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.NATS.URL, err)
		}

		a.nats = conn
	}

	js, err := a.nats.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nil
}

// orchestrator wires the full regeneration engine from the configuration.
func (a *app) orchestrator(ctx context.Context) (*batch.Orchestrator, error) {
	synthesizer, err := tts.NewSynthesizer(ctx, a.cfg.ProviderConfig())
	if err != nil {
		return nil, err
	}

	if closer, ok := synthesizer.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}

	transcoder := audio.NewFFmpegTranscoder(a.cfg.Paths.FFmpegPath, a.log)
	pipeline := tts.NewPipeline(synthesizer, transcoder, a.cfg.PipelineOptions(), a.log)

	return a.newOrchestrator(pipeline)
}

// planner wires an orchestrator for preview. The provider is never built, so
// no credentials are needed.
func (a *app) planner() (*batch.Orchestrator, error) {
	generator, err := tts.NewPlanOnly(a.cfg.Generation.Provider)
	if err != nil {
		return nil, err
	}

	return a.newOrchestrator(generator)
}

func (a *app) newOrchestrator(generator batch.Generator) (*batch.Orchestrator, error) {
	registry, err := a.registry()
	if err != nil {
		return nil, err
	}

	replacer, err := text.LoadReplacements(a.cfg.Paths.ReplacementsFile)
	if err != nil {
		return nil, err
	}

	deps := batch.Dependencies{
		Source:    a.anki,
		Generator: generator,
		Voices:    registry,
		Replacer:  replacer,
	}

	var mirrors []core.ArtifactStore

	if a.cfg.Paths.KeepLocalFiles {
		dirStore, dirErr := objectstore.NewDirStore(a.cfg.Paths.OutputDir)
		if dirErr != nil {
			return nil, dirErr
		}

		mirrors = append(mirrors, dirStore)
	}

	js, err := a.connectNATS()
	if err != nil {
		return nil, err
	}

	if js != nil {
		archive, archiveErr := objectstore.New(js, a.cfg.NATS.ArtifactBucket)
		if archiveErr != nil {
			return nil, archiveErr
		}

		index, indexErr := objectstore.NewIndex(js, a.cfg.NATS.IndexBucket)
		if indexErr != nil {
			return nil, indexErr
		}

		mirrors = append(mirrors, archive)
		deps.Index = index
		deps.Notifier = worker.NewEventNotifier(a.nats, a.cfg.NATS.AudioCreatedSubject)
	}

	deps.Store = objectstore.NewFanout(a.anki, mirrors...)

	return batch.New(deps, batch.Config{
		Fields:   a.cfg.FieldMapping(),
		Settings: a.cfg.Settings(),
		Workers:  a.cfg.Batch.Workers,
	}, a.log)
}
