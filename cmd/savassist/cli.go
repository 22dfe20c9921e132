package main

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/capture"
	"github.com/hpungsan/sav-assist/internal/clipboard"
	"github.com/hpungsan/sav-assist/internal/config"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/history"
	"github.com/hpungsan/sav-assist/internal/logger"
	"github.com/hpungsan/sav-assist/internal/report"
	"github.com/hpungsan/sav-assist/internal/stats"
	"github.com/hpungsan/sav-assist/internal/summarize"
	"github.com/hpungsan/sav-assist/internal/synccode"
	"github.com/hpungsan/sav-assist/internal/transcribe"
	"github.com/hpungsan/sav-assist/internal/web"
)

// maxStdinBytes bounds notes and sync codes read from stdin.
const maxStdinBytes = 4 << 20

// deps holds everything the commands need. Tests replace the I/O and the
// remote constructors.
type deps struct {
	cfg     *config.Config
	state   *app.State
	log     *logger.Logger
	exports string
	clip    clipboard.Writer

	stdin      io.Reader
	stdout     io.Writer
	stdinPiped func() bool

	newGenerator func(ctx context.Context) (summarize.Generator, error)
	newDialer    func(ctx context.Context) (transcribe.Dialer, error)
	now          func() time.Time

	gemini *summarize.GeminiGenerator
}

func newDeps(cfg *config.Config, state *app.State, log *logger.Logger, exportsDir string) *deps {
	d := &deps{
		cfg:        cfg,
		state:      state,
		log:        log,
		exports:    exportsDir,
		clip:       clipboard.System{},
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stdinPiped: stdinHasData,
		now:        time.Now,
	}
	d.newGenerator = func(ctx context.Context) (summarize.Generator, error) {
		return d.geminiClient(ctx)
	}
	d.newDialer = func(ctx context.Context) (transcribe.Dialer, error) {
		g, err := d.geminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return &transcribe.GeminiDialer{Client: g.Client(), Model: cfg.LiveModel}, nil
	}
	return d
}

// geminiClient lazily builds the shared Gemini client.
func (d *deps) geminiClient(ctx context.Context) (*summarize.GeminiGenerator, error) {
	if d.gemini != nil {
		return d.gemini, nil
	}
	key := config.APIKey()
	if key == "" {
		return nil, errors.NewInvalidRequest("GEMINI_API_KEY is not set (environment or .env)")
	}
	g, err := summarize.NewGemini(ctx, key)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	d.gemini = g
	return g, nil
}

func (d *deps) summarizer(ctx context.Context) (*summarize.Client, error) {
	gen, err := d.newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	return summarize.New(gen, summarize.Options{
		FastModel:      d.cfg.FastModel,
		DeepModel:      d.cfg.DeepModel,
		ThinkingBudget: d.cfg.ThinkingBudget,
		Retries:        d.cfg.SummarizeRetries,
		Logger:         d.log,
	}), nil
}

func (d *deps) location() (*time.Location, error) {
	loc, err := d.cfg.Location()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return loc, nil
}

// newCLIApp creates the CLI application with all commands. d may be nil
// when only help or version output is needed.
func newCLIApp(d *deps) *cli.App {
	defaults := config.DefaultConfig()
	if d != nil {
		defaults = d.cfg
	}

	app := &cli.App{
		Name:    "savassist",
		Usage:   "Assistant SAV: capture, résumé IA et historique des appels",
		Version: Version,
		Commands: []*cli.Command{
			techCmd(d),
			newCallCmd(d, defaults),
			summarizeCmd(d, defaults),
			dictateCmd(d),
			listCmd(d),
			showCmd(d),
			deleteCmd(d),
			statsCmd(d),
			syncCmd(d),
			reportCmd(d),
			guideCmd(d),
			serveCmd(d, defaults),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func techCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "tech",
		Usage:     "Show or set the active technician",
		ArgsUsage: "[name]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
				if err := d.state.SetTechnician(c.Context, name); err != nil {
					return outputError(errors.NewInternal(err))
				}
			}
			return d.outputJSON(map[string]string{"technician": d.state.Technician()})
		},
	}
}

func equipmentFlags(defaults *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "brand", Aliases: []string{"b"}, Value: defaults.DefaultBrand, Usage: "Brand: " + strings.Join(calllog.Brands, ", ")},
		&cli.StringFlag{Name: "product", Aliases: []string{"p"}, Value: defaults.DefaultProduct, Usage: "Product type: " + strings.Join(calllog.ProductTypes, ", ")},
		&cli.BoolFlag{Name: "deep", Usage: "Use the expert analysis model"},
	}
}

func equipmentFrom(c *cli.Context) calllog.Equipment {
	return calllog.Equipment{Brand: c.String("brand"), ProductType: c.String("product")}
}

// newCallCmd creates the new command: capture, summarize and save one call.
func newCallCmd(d *deps, defaults *config.Config) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "phone", Usage: "Customer phone number"},
		&cli.StringFlag{Name: "customer", Aliases: []string{"c"}, Usage: "Customer name"},
		&cli.StringFlag{Name: "ticket", Aliases: []string{"t"}, Usage: "Ticket number (marks a ticket as created)"},
		&cli.BoolFlag{Name: "dictate", Usage: "Dictate the notes instead of reading stdin"},
		&cli.StringFlag{Name: "source", Usage: "Raw PCM file for dictation, '-' for stdin (default: capture command)"},
		&cli.BoolFlag{Name: "copy", Usage: "Copy the report to the clipboard"},
	}
	return &cli.Command{
		Name:  "new",
		Usage: "Record a call: notes from stdin (or dictation), AI summary, save",
		Flags: append(flags, equipmentFlags(defaults)...),
		Action: func(c *cli.Context) error {
			// Checked before any dictation or model call.
			phone := strings.TrimSpace(c.String("phone"))
			customer := strings.TrimSpace(c.String("customer"))
			if phone == "" || customer == "" {
				return outputError(errors.NewInvalidRequest("--phone and --customer are required"))
			}
			eq := equipmentFrom(c)
			if err := eq.Validate(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			s, err := d.summarizer(c.Context)
			if err != nil {
				return outputError(err)
			}
			flow := capture.New(s, d.state, capture.Options{Clipboard: d.clip, Logger: d.log, Now: d.now})
			if err := flow.SetEquipment(eq); err != nil {
				return outputError(err)
			}
			flow.SetPhone(phone)
			flow.SetCustomer(customer)
			if ticket := strings.TrimSpace(c.String("ticket")); ticket != "" {
				flow.SetTicket(true, ticket)
			}

			if c.Bool("dictate") {
				// Fragments land in the form as they arrive.
				if _, err := d.dictate(c.Context, c.String("source"), flow.AppendTranscript); err != nil {
					return outputError(err)
				}
			} else {
				notes, err := d.readNotes()
				if err != nil {
					return outputError(err)
				}
				flow.SetNotes(notes)
			}

			if _, err := flow.RequestSummary(c.Context, c.Bool("deep")); err != nil {
				return outputError(err)
			}
			if c.Bool("copy") {
				if _, err := flow.CopySummary(); err != nil {
					d.log.WithError(err).Warn("report not copied")
				}
			}

			saved, err := flow.Save(c.Context)
			if err != nil && errors.Is(err, errors.ErrInvalidRequest) {
				return outputError(err)
			}
			if err != nil {
				// Kept in memory for this process only; report and fail.
				_ = d.outputJSON(saved)
				return outputError(errors.NewInternal(err))
			}
			return d.outputJSON(saved)
		},
	}
}

// summarizeCmd creates the summarize command: print a summary without saving.
func summarizeCmd(d *deps, defaults *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "summarize",
		Usage: "Summarize notes from stdin without saving",
		Flags: equipmentFlags(defaults),
		Action: func(c *cli.Context) error {
			eq := equipmentFrom(c)
			if err := eq.Validate(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			notes, err := d.readNotes()
			if err != nil {
				return outputError(err)
			}
			s, err := d.summarizer(c.Context)
			if err != nil {
				return outputError(err)
			}

			run := s.Summarize
			if c.Bool("deep") {
				run = s.DeepAnalyze
			}
			summary, err := run(c.Context, notes, eq)
			if err != nil {
				return outputError(err)
			}
			return d.outputJSON(summary)
		},
	}
}

func dictateCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "dictate",
		Usage: "Live transcription until Ctrl-C; prints the notes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Raw PCM file, '-' for stdin (default: capture command)"},
		},
		Action: func(c *cli.Context) error {
			notes, err := d.dictate(c.Context, c.String("source"), nil)
			if err != nil {
				return outputError(err)
			}
			return d.outputJSON(map[string]string{"notes": notes})
		},
	}
}

// dictate runs one live transcription session until the source runs out,
// the remote closes, or the user interrupts.
func (d *deps) dictate(ctx context.Context, source string, onFragment func(string)) (string, error) {
	src, err := d.audioSource(source)
	if err != nil {
		return "", err
	}
	dialer, err := d.newDialer(ctx)
	if err != nil {
		return "", err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := transcribe.NewSession(transcribe.Config{
		Source: src,
		Dialer: dialer,
		Thresholds: transcribe.Thresholds{
			Noisy:         d.cfg.NoisyLevel,
			Weak:          d.cfg.WeakLevel,
			SilenceWindow: d.cfg.SilenceWindow(),
		},
		QualityInterval: d.cfg.QualityInterval(),
		OnTranscript:    onFragment,
		OnQuality: func(q transcribe.Quality) {
			d.log.WithField("quality", q).Info("signal quality changed")
		},
		Logger: d.log,
	})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return "", err
	}
	d.log.Info("dictation en cours, Ctrl-C pour terminer")

	select {
	case <-session.Done():
	case <-ctx.Done():
	}
	if err := session.Stop(); err != nil {
		d.log.WithError(err).Warn("dictation teardown incomplete")
	}
	return session.Notes(), nil
}

func (d *deps) audioSource(source string) (transcribe.Source, error) {
	switch source {
	case "":
		if len(d.cfg.CaptureCommand) == 0 {
			return nil, errors.NewInvalidRequest("capture_command is empty; pass --source")
		}
		return transcribe.NewCommandSource(d.cfg.CaptureCommand), nil
	case "-":
		return transcribe.NewReaderSource(d.stdin), nil
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, errors.NewMicUnavailable(err)
		}
		return transcribe.NewReaderSource(f), nil
	}
}

func listCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List calls, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by phone, customer, technician or ticket"},
		},
		Action: func(c *cli.Context) error {
			items := history.NewBrowser(d.state).List(c.String("search"))
			return d.outputJSON(map[string]any{"items": items, "total": len(items)})
		},
	}
}

func showCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one call",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("call id is required"))
			}
			call, err := history.NewBrowser(d.state).Select(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return d.outputJSON(call)
		},
	}
}

func deleteCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete one call",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("call id is required"))
			}
			id := c.Args().First()
			b := history.NewBrowser(d.state)
			if _, err := b.Select(id); err != nil {
				return outputError(err)
			}

			confirmed := c.Bool("yes")
			if !confirmed && !d.stdinPiped() {
				confirmed = d.confirm("Supprimer définitivement cet appel de votre historique ? [o/N] ")
			}
			if err := b.Delete(c.Context, id, confirmed); err != nil {
				return outputError(err)
			}
			return d.outputJSON(map[string]any{"id": id, "deleted": true})
		},
	}
}

func statsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show dashboard figures",
		Action: func(c *cli.Context) error {
			loc, err := d.location()
			if err != nil {
				return outputError(err)
			}
			return d.outputJSON(stats.Compute(d.state.Logs(), d.now(), loc))
		},
	}
}

func syncCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Share the call history with another installation",
		Subcommands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Print a sync code for the whole collection (and copy it)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-copy", Usage: "Do not copy the code to the clipboard"},
				},
				Action: func(c *cli.Context) error {
					logs := d.state.Logs()
					code, err := synccode.Export(logs)
					if err != nil {
						return outputError(err)
					}
					copied := false
					if !c.Bool("no-copy") {
						if err := d.clip.WriteAll(code); err != nil {
							d.log.WithError(err).Warn("sync code not copied")
						} else {
							copied = true
						}
					}
					return d.outputJSON(map[string]any{"code": code, "count": len(logs), "copied": copied})
				},
			},
			{
				Name:      "import",
				Usage:     "Merge calls from a sync code (argument or stdin)",
				ArgsUsage: "[code]",
				Action: func(c *cli.Context) error {
					code := strings.Join(c.Args().Slice(), "")
					if code == "" {
						if !d.stdinPiped() {
							return outputError(errors.NewInvalidRequest("sync code must be passed as argument or piped via stdin"))
						}
						var err error
						if code, err = readStdin(d.stdin, maxStdinBytes); err != nil {
							return outputError(err)
						}
					}

					res, err := synccode.Import(code)
					if err != nil {
						return outputError(err)
					}
					if res.Ignored {
						d.log.Warn("sync code payload is not a list, nothing imported")
						return d.outputJSON(map[string]any{"added": 0, "ignored": true})
					}
					added, err := d.state.Merge(c.Context, res.Logs)
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					return d.outputJSON(map[string]any{"added": added, "total": len(d.state.Logs())})
				},
			},
		},
	}
}

func reportCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Write an Excel workbook with the calls and figures",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output .xlsx path (default: exports directory)"},
		},
		Action: func(c *cli.Context) error {
			loc, err := d.location()
			if err != nil {
				return outputError(err)
			}
			now := d.now()
			path := c.String("path")
			if path == "" {
				path = filepath.Join(d.exports, "sav-assist-"+now.In(loc).Format("20060102-150405")+".xlsx")
			}

			logs := d.state.Logs()
			if err := report.WriteFile(path, logs, stats.Compute(logs, now, loc), loc); err != nil {
				if errors.Is(err, errors.ErrInvalidRequest) {
					return outputError(err)
				}
				return outputError(errors.NewInternal(err))
			}
			return d.outputJSON(map[string]any{"path": path, "calls": len(logs)})
		},
	}
}

// guideStep is one deployment instruction with its shell command.
type guideStep struct {
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Command string `json:"command"`
}

var guideSteps = []guideStep{
	{
		Title:   "Installer",
		Detail:  "Compile et installe la commande savassist dans $GOPATH/bin.",
		Command: "go install github.com/hpungsan/sav-assist/cmd/savassist@latest",
	},
	{
		Title:   "Clé API",
		Detail:  "Enregistre ta clé Google Gemini dans le fichier .env de l'application.",
		Command: `mkdir -p ~/.sav-assist && echo "GEMINI_API_KEY=ta-cle" >> ~/.sav-assist/.env`,
	},
	{
		Title:   "Technicien",
		Detail:  "Indique ton nom, il sera apposé sur chaque appel enregistré.",
		Command: `savassist tech "Prénom Nom"`,
	},
	{
		Title:   "Tableau de bord",
		Detail:  "Lance l'historique et les statistiques sur http://127.0.0.1:8791.",
		Command: "savassist serve",
	},
	{
		Title:   "Assistant MCP",
		Detail:  "Déclare savassist comme serveur MCP (stdio) dans ton assistant.",
		Command: "claude mcp add sav-assist -- savassist",
	},
}

func guideCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "guide",
		Usage: "Deployment steps; --copy N copies the Nth command",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "copy", Usage: "Copy the command of step N to the clipboard"},
		},
		Action: func(c *cli.Context) error {
			if !c.IsSet("copy") {
				return d.outputJSON(guideSteps)
			}
			n := c.Int("copy")
			if n < 1 || n > len(guideSteps) {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("step must be between 1 and %d", len(guideSteps))))
			}
			cmd := guideSteps[n-1].Command
			if err := d.clip.WriteAll(cmd); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return d.outputJSON(map[string]any{"step": n, "command": cmd, "copied": true})
		},
	}
}

func serveCmd(d *deps, defaults *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the local web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: defaults.WebBind, Usage: "Listen address"},
			&cli.IntFlag{Name: "port", Value: defaults.WebPort, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(d.state, d.cfg, Version, c.String("bind"), c.Int("port"), d.log)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			if err := web.Run(srv, d.log); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals v to stdout as JSON.
func (d *deps) outputJSON(v any) error {
	enc := json.NewEncoder(d.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readNotes reads the call notes from stdin, which must be piped.
func (d *deps) readNotes() (string, error) {
	if !d.stdinPiped() {
		return "", errors.NewInvalidRequest("notes must be piped via stdin (or use --dictate)")
	}
	notes, err := readStdin(d.stdin, maxStdinBytes)
	if err != nil {
		return "", err
	}
	if notes == "" {
		return "", errors.NewInvalidRequest("les notes sont vides")
	}
	return notes, nil
}

// confirm asks a yes/no question on stderr and reads the answer from stdin.
func (d *deps) confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	line, _ := bufio.NewReader(d.stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "o", "oui", "y", "yes":
		return true
	}
	return false
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads up to limit bytes from r.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
