package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/joshsymonds/gmarchive/internal/config"
	gc "github.com/joshsymonds/gmarchive/internal/gmail"
	"github.com/joshsymonds/gmarchive/internal/mbox"
	"github.com/joshsymonds/gmarchive/internal/metalog"
	"github.com/joshsymonds/gmarchive/internal/metrics"
	"github.com/joshsymonds/gmarchive/internal/mirror"
	"github.com/joshsymonds/gmarchive/internal/rate"
	"github.com/joshsymonds/gmarchive/internal/runtime"
)

type cliConfig struct {
	config.Config
	profile string
	init    bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		runtime.DefaultLogger().Error("gmarchive failed", "error", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		if !errors.Is(err, errAborted) {
			runtime.DefaultLogger().Error("gmarchive failed", "error", err)
		}
		os.Exit(1)
	}
}

// parseFlags reads the command line over the profile named by -profile, so
// explicitly set flags win over profile values.
func parseFlags(args []string) (cliConfig, error) {
	cli := cliConfig{Config: config.Defaults()}
	fs := newFlagSet(&cli)
	if err := fs.Parse(args); err != nil {
		return cli, err
	}
	if cli.profile != "" {
		loaded, err := config.Load(cli.profile)
		if err != nil {
			return cli, err
		}
		cli.Config = loaded
		fs = newFlagSet(&cli)
		if err := fs.Parse(args); err != nil {
			return cli, err
		}
	}
	if fs.NArg() > 0 {
		cli.Mbox = fs.Arg(0)
	}
	return cli, nil
}

func newFlagSet(cli *cliConfig) *flag.FlagSet {
	fs := flag.NewFlagSet("gmarchive", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: gmarchive [flags] MBOXFILE")
		fs.PrintDefaults()
	}
	fs.StringVar(&cli.CredentialsDir, "config", cli.CredentialsDir, "directory holding credentials.json and token.json")
	fs.StringVar(&cli.AuthFile, "authfile", cli.AuthFile, "OAuth token file (overrides <config>/token.json)")
	fs.StringVar(&cli.Label, "label", cli.Label, "folder or label to archive")
	fs.StringVar(&cli.Query, "query", cli.Query, "Gmail search query to archive")
	fs.StringVar(&cli.ThreadsFile, "threadsfile", cli.ThreadsFile, "log message ids of each thread to this file")
	fs.StringVar(&cli.LabelsFile, "labelsfile", cli.LabelsFile, "log labels of each thread to this file")
	fs.Var(&cli.MsgDelay, "msg-delay", "wait between accessing messages (seconds or duration)")
	fs.Var(&cli.ThreadDelay, "thread-delay", "wait between accessing threads")
	fs.Var(&cli.SkipThreadDelay, "skip-thread-delay", "wait after threads with nothing downloaded")
	fs.BoolVar(&cli.Delete, "delete", cli.Delete, "delete archived mail that is no longer on the server")
	fs.BoolVar(&cli.NoDownload, "nodownload", cli.NoDownload, "walk and log without storing any messages")
	fs.BoolVar(&cli.Verbose, "verbose", cli.Verbose, "print status messages")
	fs.IntVar(&cli.RPS, "rps", cli.RPS, "max requests per second (0 disables limiting)")
	fs.IntVar(&cli.PageSize, "page-size", cli.PageSize, "Gmail list page size (<=500)")
	fs.StringVar(&cli.MetricsFile, "metrics-file", cli.MetricsFile, "write Prometheus metrics to path")
	fs.StringVar(&cli.profile, "profile", cli.profile, "YAML profile providing flag defaults")
	fs.BoolVar(&cli.init, "init", cli.init, "authorize the account, store its token and exit")
	return fs
}

func run(cli cliConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()
	if cli.Verbose {
		logger = runtime.NewLogger(slog.LevelDebug)
	}
	creds := runtime.Credentials{Dir: cli.CredentialsDir, AuthFile: cli.AuthFile}

	if cli.init {
		return runtime.InitToken(ctx, creds, os.Stdin, os.Stdout)
	}
	if err := cli.Validate(); err != nil {
		return err
	}

	var (
		limiter rate.Limiter
		bucket  *rate.TokenBucket
	)
	if cli.RPS > 0 {
		bucket = rate.NewTokenBucket(cli.RPS)
		limiter = bucket
		defer bucket.Stop()
	}

	// token refreshes are remote calls too and must outlive an interrupt
	client, err := runtime.NewGmailClient(context.WithoutCancel(ctx), creds, limiter)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	folders := gc.StandardFolders()
	sel, err := chooseSelector(ctx, cli, client, folders)
	if err != nil {
		return err
	}
	if cli.Verbose {
		fmt.Printf("Selected %s: %s\n", sel.Kind, sel.Value)
	}

	archive, err := mbox.Open(cli.Mbox)
	if errors.Is(err, mbox.ErrLocked) {
		return fmt.Errorf("%s is used by another session: %w", cli.Mbox, err)
	}
	if err != nil {
		return err
	}
	meta, err := openMetaLogs(cli.LabelsFile, cli.ThreadsFile)
	if err != nil {
		return multierror.Append(err, archive.Close())
	}

	svc := mirror.NewService(mirror.NewWalker(client, folders, cli.PageSize, logger), logger)
	spec := mirror.Spec{
		Selector: sel,
		Delays: mirror.DelayPolicy{
			Message:       cli.MsgDelay.Duration(),
			Thread:        cli.ThreadDelay.Duration(),
			SkippedThread: cli.SkipThreadDelay.Duration(),
		},
		Delete:     cli.Delete,
		NoDownload: cli.NoDownload,
	}

	started := time.Now()
	rep, runErr := svc.Run(ctx, spec, mirror.Outputs{Archive: archive, Meta: meta})
	size := fileSize(cli.Mbox)
	if runErr == nil {
		printSummary(os.Stdout, rep, size)
	}

	if cli.MetricsFile != "" {
		m := metrics.NewSession()
		m.Observe(rep, time.Since(started), size, time.Now())
		if err := m.WriteTextfile(cli.MetricsFile); err != nil {
			logger.Warn("metrics not written", "path", cli.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("archive %s: %w", sel, runErr)
	}
	if cli.Verbose {
		fmt.Println("Done.")
	}
	return nil
}

// chooseSelector resolves -label/-query, prompting when neither is set.
func chooseSelector(ctx context.Context, cli cliConfig, client gc.Client, folders []gc.Folder) (mirror.Selector, error) {
	label, query := cli.Label, cli.Query
	if strings.TrimSpace(label) == "" && strings.TrimSpace(query) == "" {
		byName, _, err := client.ListLabels(ctx)
		if err != nil {
			return mirror.Selector{}, fmt.Errorf("list labels: %w", err)
		}
		choice, err := promptSelection(ctx, os.Stdin, os.Stdout, selectionOptions(folders, byName))
		if err != nil {
			return mirror.Selector{}, err
		}
		label, query = choice.label, choice.query
	}
	return mirror.ResolveSelector(label, query, folders)
}

// openMetaLogs truncates the configured side logs. Unset paths discard.
func openMetaLogs(labelsPath, threadsPath string) (*metalog.Logger, error) {
	var labels, threads io.WriteCloser
	if labelsPath != "" {
		f, err := os.Create(labelsPath)
		if err != nil {
			return nil, fmt.Errorf("open labels file: %w", err)
		}
		labels = f
	}
	if threadsPath != "" {
		f, err := os.Create(threadsPath)
		if err != nil {
			if labels != nil {
				_ = labels.Close()
			}
			return nil, fmt.Errorf("open threads file: %w", err)
		}
		threads = f
	}
	return metalog.New(labels, threads), nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func printSummary(w io.Writer, rep mirror.Report, size int64) {
	if rep.Complete && rep.Threads == 0 {
		switch rep.Selector.Kind {
		case mirror.KindQuery:
			fmt.Fprintf(w, "No threads found in query `%s`.\n", rep.Selector.Value)
		default:
			fmt.Fprintf(w, "No threads found in `%s`.\n", rep.Selector.Value)
		}
		return
	}
	if !rep.Complete {
		fmt.Fprintln(w, "Interrupted; archive saved up to the last finished message.")
	}
	fmt.Fprintf(w, "%d threads, %d messages: %d appended, %d skipped (%d archived, %d not downloaded), %d deleted\n",
		rep.Threads, rep.Messages, rep.Appended, rep.Skipped(), rep.SkippedDuplicate, rep.SkippedNoDownload, rep.Deleted)
	if size >= 0 {
		fmt.Fprintf(w, "Archive size: %s\n", humanize.Bytes(uint64(size)))
	}
}
