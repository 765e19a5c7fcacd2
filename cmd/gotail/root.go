package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dweomer/gotail/internal/tail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "gotail [file...]",
	Short: "Print the last part of files and follow appended data",
	Long: `gotail prints the last 10 lines of each file to standard output and,
with --follow, keeps printing data as it is appended. It handles
truncation, rotation, renamed and re-created files, remote file
systems, and writer-process liveness.`,
	Version: version,
	Args:    cobra.ArbitraryArgs,
	RunE:    runTail,
}

func init() {
	rootCmd.Flags().StringP("lines", "n", "10", "output the last NUM lines (use +NUM to start at line NUM)")
	rootCmd.Flags().StringP("bytes", "c", "", "output the last NUM bytes (use +NUM to start at byte NUM)")
	rootCmd.Flags().StringP("follow", "f", "", "output appended data as the file grows; =name or =descriptor")
	rootCmd.Flags().Lookup("follow").NoOptDefVal = "descriptor"
	rootCmd.Flags().BoolP("follow-name", "F", false, "same as --follow=name --retry")
	rootCmd.Flags().Float64P("sleep-interval", "s", 1.0, "with -f, sleep for approximately N seconds between iterations")
	rootCmd.Flags().IntSlice("pid", nil, "with -f, terminate after process ID PID dies; repeatable")
	rootCmd.Flags().BoolP("quiet", "q", false, "never output headers giving file names")
	rootCmd.Flags().BoolP("verbose", "v", false, "always output headers giving file names")
	rootCmd.Flags().Bool("retry", false, "keep trying to open a file if it is inaccessible")
	rootCmd.Flags().BoolP("zero-terminated", "z", false, "line delimiter is NUL, not newline")
	rootCmd.Flags().Int("max-unchanged-stats", tail.DefaultMaxUnchangedStats,
		"with --follow=name, reopen a file which has not changed size after N iterations")
	rootCmd.Flags().Bool("disable-inotify", false, "")
	rootCmd.Flags().Bool("presume-input-pipe", false, "")
	rootCmd.Flags().MarkHidden("disable-inotify")
	rootCmd.Flags().MarkHidden("presume-input-pipe")

	viper.BindPFlag("lines", rootCmd.Flags().Lookup("lines"))
	viper.BindPFlag("bytes", rootCmd.Flags().Lookup("bytes"))
	viper.BindPFlag("follow", rootCmd.Flags().Lookup("follow"))
	viper.BindPFlag("follow-name", rootCmd.Flags().Lookup("follow-name"))
	viper.BindPFlag("sleep-interval", rootCmd.Flags().Lookup("sleep-interval"))
	viper.BindPFlag("pid", rootCmd.Flags().Lookup("pid"))
	viper.BindPFlag("quiet", rootCmd.Flags().Lookup("quiet"))
	viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))
	viper.BindPFlag("retry", rootCmd.Flags().Lookup("retry"))
	viper.BindPFlag("zero-terminated", rootCmd.Flags().Lookup("zero-terminated"))
	viper.BindPFlag("max-unchanged-stats", rootCmd.Flags().Lookup("max-unchanged-stats"))
	viper.BindPFlag("disable-inotify", rootCmd.Flags().Lookup("disable-inotify"))
	viper.BindPFlag("presume-input-pipe", rootCmd.Flags().Lookup("presume-input-pipe"))
}

// numSuffixes maps the multiplicative suffixes accepted on counts. 'b' means
// 512-byte blocks; single letters are binary multiples, letter+B decimal.
var numSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"b", 512},
	{"kB", 1000},
	{"KB", 1000},
	{"K", 1024},
	{"k", 1024},
	{"MB", 1000 * 1000},
	{"mB", 1000 * 1000},
	{"M", 1024 * 1024},
	{"m", 1024 * 1024},
	{"GB", 1000 * 1000 * 1000},
	{"G", 1024 * 1024 * 1024},
	{"TB", 1000 * 1000 * 1000 * 1000},
	{"T", 1024 * 1024 * 1024 * 1024},
	{"PB", 1000 * 1000 * 1000 * 1000 * 1000},
	{"P", 1024 * 1024 * 1024 * 1024 * 1024},
	{"EB", 1000 * 1000 * 1000 * 1000 * 1000 * 1000},
	{"E", 1024 * 1024 * 1024 * 1024 * 1024 * 1024},
}

// parseNumArg parses a count argument with an optional leading sign and an
// optional multiplicative suffix. A leading '+' selects skip-from-start.
func parseNumArg(s string) (int64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	fromStart := false
	switch s[0] {
	case '+':
		fromStart = true
		s = s[1:]
	case '-':
		s = s[1:]
	}

	multiplier := int64(1)
	for _, suf := range numSuffixes {
		if strings.HasSuffix(s, suf.suffix) {
			multiplier = suf.mult
			s = s[:len(s)-len(suf.suffix)]
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("invalid number of units: %q", s)
	}
	return n * multiplier, fromStart, nil
}

// buildConfig converts the bound flag values into the engine's option record.
func buildConfig() (tail.Config, error) {
	cfg := tail.Config{
		Mode:              tail.Lines,
		SleepInterval:     time.Duration(viper.GetFloat64("sleep-interval") * float64(time.Second)),
		PIDs:              viper.GetIntSlice("pid"),
		MaxUnchangedStats: viper.GetInt("max-unchanged-stats"),
		ZeroTerminated:    viper.GetBool("zero-terminated"),
		DisableInotify:    viper.GetBool("disable-inotify"),
		PresumeInputPipe:  viper.GetBool("presume-input-pipe"),
	}

	lines, linesFromStart, err := parseNumArg(viper.GetString("lines"))
	if err != nil {
		return cfg, fmt.Errorf("invalid number of lines: %w", err)
	}
	cfg.Count = lines
	cfg.FromStart = linesFromStart

	if bytesStr := viper.GetString("bytes"); bytesStr != "" {
		b, bytesFromStart, err := parseNumArg(bytesStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid number of bytes: %w", err)
		}
		cfg.Mode = tail.Bytes
		cfg.Count = b
		cfg.FromStart = bytesFromStart
	}

	// "+N" means start at unit N, so skip N-1 units.
	if cfg.FromStart && cfg.Count > 0 {
		cfg.Count--
	}

	switch viper.GetString("follow") {
	case "":
	case "descriptor":
		cfg.Follow = tail.FollowDescriptor
	case "name":
		cfg.Follow = tail.FollowName
	default:
		return cfg, fmt.Errorf("invalid follow mode: %s (use 'name' or 'descriptor')", viper.GetString("follow"))
	}

	cfg.Retry = viper.GetBool("retry")
	if viper.GetBool("follow-name") {
		cfg.Follow = tail.FollowName
		cfg.Retry = true
	}

	switch {
	case viper.GetBool("quiet"):
		cfg.Headers = tail.HeaderNever
	case viper.GetBool("verbose"):
		cfg.Headers = tail.HeaderAlways
	}

	if cfg.SleepInterval < 0 {
		return cfg, fmt.Errorf("invalid number of seconds: %v", viper.GetFloat64("sleep-interval"))
	}
	return cfg, nil
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	return tailWith(cmd.Context(), cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func tailWith(ctx context.Context, cfg tail.Config, files []string, out, errw io.Writer) error {
	return tail.New(cfg, out, errw).Run(ctx, files)
}
