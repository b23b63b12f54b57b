package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"voicenotes/audio"
	"voicenotes/doctor"
	"voicenotes/export"
	"voicenotes/kv"
	"voicenotes/log"
	"voicenotes/markdown"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recording"
	"voicenotes/shutdown"
)

// withStore opens the note store for the duration of fn.
func (c *cli) withStore(fn func(*notes.Store) error, opts ...notes.Option) error {
	db, store, err := openStore(c.cfg, opts...)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store)
}

// findNote resolves id or a unique id prefix.
func findNote(store *notes.Store, id string) (notes.Note, error) {
	if n, ok := store.Get(id); ok {
		return n, nil
	}
	var found []notes.Note
	for _, n := range store.Notes() {
		if strings.HasPrefix(n.ID, id) || strings.HasPrefix(strings.TrimPrefix(n.ID, "note_"), id) {
			found = append(found, n)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return notes.Note{}, fmt.Errorf("%w: %s", notes.ErrNotFound, id)
	}
	return notes.Note{}, fmt.Errorf("%q matches %d notes", id, len(found))
}

func (c *cli) transcribeCommand() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Run a 16 kHz mono WAV file through the recorder and pipeline, saving a new note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			return c.withStore(func(store *notes.Store) error {
				pipe, err := newPipeline(ctx, c.cfg)
				if err != nil {
					return err
				}
				return transcribeFile(ctx, cmd.OutOrStdout(), args[0], c.cfg.Format, title, store, pipe)
			}, notes.WithoutInitialNote())
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title for the new note (default: taken from the polished note)")
	return cmd
}

// transcribeFile replays a WAV file through a recording session, so the
// audio is encoded exactly as a live capture would be.
func transcribeFile(ctx context.Context, out io.Writer, path, format, title string, store *notes.Store, pipe *pipeline.Pipeline) error {
	actx, err := audio.NewFakeContext(path, false)
	if err != nil {
		return err
	}
	sess := recording.New(recording.Config{Context: actx, Format: format})
	defer sess.Close()
	if err := sess.Start(); err != nil {
		return err
	}
	if caps := actx.Captures(); len(caps) > 0 {
		select {
		case <-caps[len(caps)-1].AudioDone():
		case <-ctx.Done():
		}
	}
	art, err := sess.Stop()
	if err != nil {
		return err
	}
	if art == nil {
		return recording.ErrNoAudioCaptured
	}

	note, err := store.New()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Encoded %s as %s (%.1f KB)\n", recording.FormatElapsed(art.Duration), art.MediaType, float64(len(art.Data))/1024)
	res := pipe.Run(ctx, note.ID, *art, store, func(status string) {
		if status != "" {
			fmt.Fprintln(out, status)
		}
	})
	// The polish stage sets the extracted title, so a title given on the
	// command line goes on afterwards.
	if title != "" && store.Active().ID == note.ID {
		if err := store.SetTitle(title); err != nil {
			return err
		}
	}
	if res.Err != nil {
		return res.Err
	}
	saved, _ := store.Get(note.ID)
	fmt.Fprintf(out, "\n%s  %s\n\n%s\n", saved.ID, saved.DisplayTitle(), saved.PolishedNote)
	return nil
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(store *notes.Store) error {
				return printNotes(cmd.OutOrStdout(), store.Notes())
			}, notes.WithoutInitialNote())
		},
	}
}

func printNotes(out io.Writer, list []notes.Note) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
	for _, n := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.ID, time.UnixMilli(n.Timestamp).Format("2006-01-02 15:04"), n.DisplayTitle())
	}
	return w.Flush()
}

func (c *cli) showCommand() *cobra.Command {
	var raw, plain bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(store *notes.Store) error {
				n, err := findNote(store, args[0])
				if err != nil {
					return err
				}
				body := n.PolishedNote
				switch {
				case raw:
					body = n.RawTranscription
				case plain:
					if body, err = markdown.Flatten(body); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s\n", n.DisplayTitle(), body)
				return nil
			}, notes.WithoutInitialNote())
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw transcription")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the polished note as plain text")
	return cmd
}

func (c *cli) exportCommand() *cobra.Command {
	var format, dir string
	var copyNote bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a note to a file, or copy it to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = c.cfg.ExportDir
			}
			return c.withStore(func(store *notes.Store) error {
				n, err := findNote(store, args[0])
				if err != nil {
					return err
				}
				if copyNote {
					if err := export.CopyToClipboard(n); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard.")
					return nil
				}
				path, err := export.Export(n, f, dir, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}, notes.WithoutInitialNote())
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "md (or html for markup notes) or txt")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory")
	cmd.Flags().BoolVar(&copyNote, "copy", false, "copy the plain text to the clipboard instead")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(store *notes.Store) error {
				n, err := findNote(store, args[0])
				if err != nil {
					return err
				}
				if _, err := store.Delete(n.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", n.ID, n.DisplayTitle())
				return nil
			})
		},
	}
}

func (c *cli) devicesCommand() *cobra.Command {
	var pick bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List microphones, or pick one interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("connect to audio: %w", err)
			}
			defer actx.Close()
			out := cmd.OutOrStdout()

			if pick {
				dev, err := audio.SelectDevice(actx)
				if errors.Is(err, audio.ErrSelectionCancelled) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Selected %s\nUse it with: voicenotes --device %q\n", dev.Name, dev.Name)
				return nil
			}

			devices, err := actx.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return audio.ErrDeviceNotFound
			}
			for _, d := range devices {
				suffix := ""
				if audio.IsBluetooth(d.Name) {
					suffix = "  (bluetooth, lower quality)"
				}
				fmt.Fprintf(out, "%s\t%s%s\n", d.ID, d.Name, suffix)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pick, "select", false, "choose a device with the arrow keys")
	return cmd
}

func (c *cli) doctorCommand() *cobra.Command {
	var opts doctor.Options
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check storage, microphone, speech provider, clipboard and hotkey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			db, err := kv.Open(c.cfg.Storage.Backend, c.cfg.Storage.Path)
			if err != nil {
				log.Errorf("doctor: open storage: %v", err)
				opts.StorageErr = err
			} else {
				defer db.Close()
				opts.Storage = db
			}

			pipe, err := newPipeline(ctx, c.cfg)
			if err != nil {
				log.Warnf("doctor: %v", err)
			}
			opts.Out = cmd.OutOrStdout()
			opts.In = cmd.InOrStdin()
			opts.Device = c.cfg.Device
			opts.Format = c.cfg.Format
			opts.Pipeline = pipe
			opts.Hotkey = opts.Hotkey || c.cfg.Hotkey
			if code := doctor.Run(ctx, opts); code != 0 {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Confirm, "confirm", true, "ask to confirm the transcript and press the hotkey")
	cmd.Flags().BoolVar(&opts.Clipboard, "clipboard", true, "check clipboard access")
	cmd.Flags().DurationVar(&opts.Duration, "duration", doctor.DefaultRecordDuration, "test recording length")
	return cmd
}
