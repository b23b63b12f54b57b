package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voicenotes/config"
	"voicenotes/log"
	"voicenotes/shutdown"
)

var version = "dev"

type cli struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
}

func execute() int {
	c := &cli{v: config.NewViper()}
	root := c.rootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicenotes",
		Short:         "Record voice notes, transcribe them and polish them into Markdown",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			log.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runInteractive(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/voicenotes/config.yaml)")
	f.String("log-path", "", "log directory (default: OS-specific location, ./ for current dir)")
	f.String("provider", "", "speech provider: gemini, groq or openai (default: first with an API key)")
	f.String("model", "", "model for transcription (and polishing unless --polish-model is set)")
	f.String("polish-model", "", "model for polishing")
	f.String("language", "", "language hint for transcription, e.g. en")
	f.String("format", "flac", "capture encoding: flac or wav")
	f.String("device", "", "microphone name or id (default: system default)")
	f.String("storage", "file", "note storage backend: file, sqlite or memory")
	f.String("storage-path", "", "note storage location")
	f.String("export-dir", "", "directory for exported notes (default: current directory)")
	f.Bool("hotkey", false, "toggle recording with a global Ctrl+Shift+Space")

	for key, flag := range map[string]string{
		"log_path":        "log-path",
		"provider":        "provider",
		"model":           "model",
		"polish_model":    "polish-model",
		"language":        "language",
		"format":          "format",
		"device":          "device",
		"storage.backend": "storage",
		"storage.path":    "storage-path",
		"export_dir":      "export-dir",
		"hotkey":          "hotkey",
	} {
		c.v.BindPFlag(key, f.Lookup(flag))
	}

	root.AddCommand(
		c.transcribeCommand(),
		c.listCommand(),
		c.showCommand(),
		c.exportCommand(),
		c.deleteCommand(),
		c.devicesCommand(),
		c.doctorCommand(),
	)
	return root
}

// setup resolves the log directory first so configuration errors can be
// logged, then loads the configuration.
func (c *cli) setup() error {
	logPath, err := log.ResolveDir(c.v.GetString("log_path"))
	if err != nil {
		return fmt.Errorf("resolve log directory: %w", err)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}

	cfg, err := config.LoadViper(c.v, c.configPath)
	if err != nil {
		log.Errorf("config: %v", err)
		return err
	}
	c.cfg = cfg
	return nil
}

// initCrashLog sends fatal runtime output to crash_log.txt next to the
// other logs.
func initCrashLog() {
	path := filepath.Join(log.Dir(), "crash_log.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
	f.Close()
}

func (c *cli) runInteractive(parent context.Context) error {
	ctx, stop := shutdown.Context(parent)
	defer stop()

	pipe, err := newPipeline(ctx, c.cfg)
	if err != nil {
		log.Warnf("speech provider: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %s Notes can still be browsed and edited.\n", statusFor(err))
	}

	app, err := newApp(ctx, c.cfg, appDeps{pipe: pipe})
	if err != nil {
		return err
	}
	defer app.Close()

	provider := "none"
	if pipe != nil {
		provider = pipe.Provider()
	}
	log.SessionStart(provider, c.cfg.Format, c.cfg.Storage.Backend)
	return runTUI(ctx, app)
}
