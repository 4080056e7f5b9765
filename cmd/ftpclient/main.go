// Command ftpclient drives a resumable FTP session from the command line.
//
// Connection settings come from ~/.ftpclient.yml, then from FTP_* environment
// variables, then from flags, each overriding the previous source.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	ftp "github.com/gonzalop/resumable-ftp"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		errColor.Fprintf(os.Stderr, "ftpclient: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "ftpclient"
	app.Usage = "Transfers files over FTP, resuming interrupted transfers"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "YAML file with connection settings",
			Value:  defaultConfigPath,
			EnvVar: "FTP_CONFIG",
		},
		cli.StringFlag{
			Name:   "host",
			Usage:  "server address",
			EnvVar: "FTP_HOST",
		},
		cli.IntFlag{
			Name:   "port",
			Usage:  "control port",
			Value:  ftp.DefaultPort,
			EnvVar: "FTP_PORT",
		},
		cli.StringFlag{
			Name:   "user",
			Usage:  "login name (anonymous when empty)",
			EnvVar: "FTP_USER",
		},
		cli.StringFlag{
			Name:   "password",
			Usage:  "login password",
			EnvVar: "FTP_PASSWORD",
		},
		cli.StringFlag{
			Name:   "path",
			Usage:  "remote directory to enter after login",
			EnvVar: "FTP_PATH",
		},
		cli.DurationFlag{
			Name:   "timeout",
			Usage:  "reply and receive timeout",
			Value:  ftp.DefaultTimeout,
			EnvVar: "FTP_TIMEOUT",
		},
		cli.BoolFlag{
			Name:  "idle-timeout",
			Usage: "apply --timeout to silences on the data connection instead of to whole downloads",
		},
		cli.Int64Flag{
			Name:   "limit",
			Usage:  "bandwidth limit in bytes per second (0 is unlimited)",
			EnvVar: "FTP_LIMIT",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "echo the control conversation",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log debug events",
		},
		cli.BoolFlag{
			Name:  "progress",
			Usage: "print transfer progress",
		},
	}

	noResume := cli.BoolFlag{
		Name:  "no-resume",
		Usage: "always transfer the whole file",
	}

	app.Commands = []cli.Command{
		{
			Name:      "put",
			Usage:     "upload a file",
			ArgsUsage: "<local> [remote]",
			Flags:     []cli.Flag{noResume},
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				local := c.Args().Get(0)
				if local == "" {
					return errors.New("put needs a local file")
				}
				resume := !c.Bool("no-resume")
				if remote := c.Args().Get(1); remote != "" {
					return done(c, s.UploadAs(local, remote, resume), "uploaded %s", local)
				}
				return done(c, s.Upload(local, resume), "uploaded %s", local)
			}),
		},
		{
			Name:      "get",
			Usage:     "download a file",
			ArgsUsage: "<remote> [local]",
			Flags:     []cli.Flag{noResume},
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				remote := c.Args().Get(0)
				if remote == "" {
					return errors.New("get needs a remote file")
				}
				return done(c, s.Download(remote, c.Args().Get(1), !c.Bool("no-resume")), "downloaded %s", remote)
			}),
		},
		{
			Name:      "ls",
			Usage:     "list names",
			ArgsUsage: "[mask]",
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				names, err := s.ListSimple(c.Args().Get(0))
				if err != nil {
					return err
				}
				if len(names) == 0 {
					warnColor.Fprintln(c.App.Writer, "no entries")
					return nil
				}
				for _, n := range names {
					fmt.Fprintln(c.App.Writer, n)
				}
				return nil
			}),
		},
		{
			Name:      "mkdir",
			Usage:     "create a remote directory",
			ArgsUsage: "<dir>",
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				dir := c.Args().Get(0)
				return done(c, s.CreateDirectory(dir), "created %s", dir)
			}),
		},
		{
			Name:      "rm",
			Usage:     "delete a remote file",
			ArgsUsage: "<file>",
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				name := c.Args().Get(0)
				return done(c, s.Delete(name), "deleted %s", name)
			}),
		},
		{
			Name:      "mv",
			Usage:     "rename a remote file",
			ArgsUsage: "<old> <new>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "force, f", Usage: "replace an existing target"},
			},
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				if c.NArg() != 2 {
					return errors.New("mv needs an old and a new name")
				}
				from, to := c.Args().Get(0), c.Args().Get(1)
				return done(c, s.Rename(from, to, c.Bool("force")), "renamed %s to %s", from, to)
			}),
		},
		{
			Name:      "putdir",
			Usage:     "upload a local directory",
			ArgsUsage: "<dir>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "recursive, r", Usage: "include subdirectories"},
				cli.StringFlag{Name: "mask", Value: "*", Usage: "only upload files matching this pattern"},
			},
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				dir := c.Args().Get(0)
				if dir == "" {
					return errors.New("putdir needs a local directory")
				}
				return done(c, s.UploadDirectory(dir, c.Bool("recursive"), c.String("mask")), "uploaded %s", dir)
			}),
		},
		{
			Name:      "quote",
			Usage:     "send a raw command and print the reply",
			ArgsUsage: "<command...>",
			Action: withSession(func(c *cli.Context, s *ftp.Session) error {
				if c.NArg() == 0 {
					return errors.New("quote needs a command")
				}
				resp, err := s.Execute(strings.Join(c.Args(), " "))
				if err != nil {
					return err
				}
				printer := okColor
				if resp.Is4xx() || resp.Is5xx() {
					printer = errColor
				}
				printer.Fprintln(c.App.Writer, resp.String())
				return nil
			}),
		},
	}

	return app
}

// withSession wraps a command action with login and logout.
func withSession(fn func(*cli.Context, *ftp.Session) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		cfg, err := resolveConfig(c)
		if err != nil {
			return err
		}

		logger := newLogger(c.App.ErrWriter, c.GlobalBool("debug"), cfg.Verbose)

		options := []ftp.Option{
			ftp.WithLogger(logger.WithField("host", cfg.Host)),
			ftp.WithBandwidthLimit(cfg.Limit),
		}
		if cfg.IdleTimeout {
			options = append(options, ftp.WithReceiveDeadline(ftp.DeadlineIdle))
		}
		if c.GlobalBool("progress") {
			options = append(options, ftp.WithProgress(progressPrinter(c.App.ErrWriter)))
		}

		s, err := ftp.New(cfg.Config, options...)
		if err != nil {
			return err
		}
		if err := s.Login(); err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		return fn(c, s)
	}
}

func newLogger(w io.Writer, debug, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	switch {
	case debug:
		logger.SetLevel(logrus.DebugLevel)
	case verbose:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// progressPrinter redraws one status line at most every 200ms.
func progressPrinter(w io.Writer) ftp.ProgressFunc {
	var last time.Time
	return func(name string, position int64) {
		if now := time.Now(); now.Sub(last) >= 200*time.Millisecond {
			last = now
			fmt.Fprintf(w, "\r%s: %d bytes", name, position)
		}
	}
}

// done prints a success line when err is nil and passes err through.
func done(c *cli.Context, err error, format string, args ...any) error {
	if err != nil {
		return err
	}
	okColor.Fprintf(c.App.Writer, "✓ "+format+"\n", args...)
	return nil
}
