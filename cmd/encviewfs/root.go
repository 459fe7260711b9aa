package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/absfs/encviewfs"
	"github.com/absfs/encviewfs/internal/ctxlog"
	"github.com/absfs/encviewfs/mount"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	cacheSize   int
	options     string
	fileOptions string
	decrypt     bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:               "encviewfs",
		Short:             "Read-only encrypted and decrypted views of a directory tree",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format (text or json)")
	flags.IntVar(&a.cacheSize, "cache-size", encviewfs.DefaultCacheSize, "entries in the name and size caches, negative to disable")
	flags.StringVarP(&a.options, "options", "o", "", "mount options: secret=,secretfile=,segmentsize=,fileSalt=,filenameSalt= and FUSE options")

	mountFlags := func(cmd *cobra.Command) *cobra.Command {
		cmd.Flags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics at `[addr]:port`")
		return cmd
	}
	root.AddCommand(mountFlags(&cobra.Command{
		Use:   "encrypt <device> <dir>",
		Short: "Mount an encrypted view of the plaintext tree device at dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMount(cmd.Context(), encviewfs.Encrypt, args[0], args[1])
		},
	}))
	root.AddCommand(mountFlags(&cobra.Command{
		Use:   "decrypt <device> <dir>",
		Short: "Mount a decrypted view of the encrypted tree device at dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMount(cmd.Context(), encviewfs.Decrypt, args[0], args[1])
		},
	}))

	cat := &cobra.Command{
		Use:   "cat <device> <path>",
		Short: "Write the content of path as seen through the view to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCat(cmd.Context(), args[0], args[1])
		},
	}
	cat.Flags().BoolVar(&a.decrypt, "decrypt", false, "use a decrypted view instead of an encrypted one")
	root.AddCommand(cat)

	ls := &cobra.Command{
		Use:   "ls <device> [path]",
		Short: "List a directory as seen through the view",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			return a.runLs(cmd.Context(), args[0], dir)
		},
	}
	ls.Flags().BoolVar(&a.decrypt, "decrypt", false, "use a decrypted view instead of an encrypted one")
	root.AddCommand(ls)

	return root
}

// setup applies the configuration file and configures logging. Flags given
// on the command line win over the file.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.configPath != "" {
		cfg, err := loadConfig(a.configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if cfg.LogLevel != "" && !flags.Changed("log-level") {
			a.logLevel = cfg.LogLevel
		}
		if cfg.LogFormat != "" && !flags.Changed("log-format") {
			a.logFormat = cfg.LogFormat
		}
		if cfg.MetricsAddr != "" && flags.Lookup("metrics-addr") != nil && !flags.Changed("metrics-addr") {
			a.metricsAddr = cfg.MetricsAddr
		}
		if cfg.CacheSize != 0 && !flags.Changed("cache-size") {
			a.cacheSize = cfg.CacheSize
		}
		a.fileOptions = cfg.Options
	}

	ctxlog.SetOutput(a.stderr)
	if err := ctxlog.SetLevel(a.logLevel); err != nil {
		return err
	}
	if err := ctxlog.SetFormat(a.logFormat); err != nil {
		return err
	}
	return nil
}

// mountOptions joins the options of the configuration file and the command
// line. Later options override earlier ones.
func (a *app) mountOptions() string {
	var parts []string
	for _, o := range []string{a.fileOptions, a.options} {
		if o != "" {
			parts = append(parts, o)
		}
	}
	return strings.Join(parts, ",")
}

func (a *app) buildView(ctx context.Context, dir encviewfs.Direction, device string, mo *encviewfs.MountOptions) (*encviewfs.ViewFS, error) {
	logger := ctxlog.FromContext(ctx)

	root, err := encviewfs.NewOSRoot(device)
	if err != nil {
		return nil, err
	}

	cfg := mo.Config()
	cfg.CacheSize = a.cacheSize
	cfg.Logger = logger
	if cfg.Secret == nil {
		in, ok := a.stdin.(*os.File)
		if !ok {
			return nil, errors.New("no secret given: use -o secret= or -o secretfile=")
		}
		cfg.Secret = encviewfs.NewPromptSecretProvider(in, a.stderr)
	}

	var view *encviewfs.ViewFS
	if dir == encviewfs.Encrypt {
		view, err = encviewfs.NewEncryptedView(root, cfg)
	} else {
		view, err = encviewfs.NewDecryptedView(root, cfg)
	}
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"device":    root.Root(),
		"direction": dir.String(),
		"secret":    view.SecretID(),
	}
	if mo.SegmentSize > 0 {
		fields["segmentsize"] = humanize.IBytes(uint64(mo.SegmentSize))
	}
	logger.WithFields(fields).Debug("view ready")
	return view, nil
}

func (a *app) runMount(ctx context.Context, dir encviewfs.Direction, device, mountpoint string) error {
	logger := ctxlog.FromContext(ctx)

	mo, err := encviewfs.ParseMountArgs(device, mountpoint, a.mountOptions())
	if err != nil {
		return err
	}
	view, err := a.buildView(ctx, dir, mo.Device, mo)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	fs := mount.New(mount.Config{
		View:     view,
		Logger:   logger,
		Registry: reg,
		Uid:      os.Getuid(),
		Gid:      os.Getgid(),
	})

	if a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorLog: logger}))
		go func() {
			logger.WithField("addr", a.metricsAddr).Info("serving metrics")
			if err := http.ListenAndServe(a.metricsAddr, mux); err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		sig := <-sigc
		logger.WithField("signal", sig.String()).Info("unmounting")
		<-fs.Ready()
		fs.Unmount()
	}()

	return fs.Mount(mo.Dir, mo.FuseArgs())
}

func (a *app) runCat(ctx context.Context, device, name string) error {
	mo, err := encviewfs.ParseMountOptions(a.mountOptions())
	if err != nil {
		return err
	}
	view, err := a.buildView(ctx, a.direction(), device, mo)
	if err != nil {
		return err
	}
	defer view.Close()

	r, err := encviewfs.OpenViewReader(view, name)
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(a.stdout, r); err != nil {
		return fmt.Errorf("failed to copy %s: %w", name, err)
	}
	return nil
}

func (a *app) runLs(ctx context.Context, device, dir string) error {
	mo, err := encviewfs.ParseMountOptions(a.mountOptions())
	if err != nil {
		return err
	}
	view, err := a.buildView(ctx, a.direction(), device, mo)
	if err != nil {
		return err
	}
	defer view.Close()

	names, err := view.Readdir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}

func (a *app) direction() encviewfs.Direction {
	if a.decrypt {
		return encviewfs.Decrypt
	}
	return encviewfs.Encrypt
}
