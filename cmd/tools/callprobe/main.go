package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("callprobe failed")
	}
}

func newRootCmd() *cobra.Command {
	opts := probeOptions{}
	var verbose bool

	cmd := &cobra.Command{
		Use:           "callprobe",
		Short:         "对运行中的后端跑一次无媒体的通话流程：取凭证、计时、提交反馈",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err == nil {
				log.Debug().Msg("loaded .env")
			}
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
				Level(level).With().Timestamp().Logger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := probe(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.BaseURL, "base-url", envOr("CALLPROBE_BASE_URL", "http://localhost:8080"), "后端地址")
	f.StringVar(&opts.Agent, "agent", "tara", "坐席 ID")
	f.DurationVar(&opts.CallDuration, "duration", 3*time.Second, "模拟通话时长；不超过上限时由探针主动挂断")
	f.DurationVar(&opts.MaxDuration, "max-duration", 0, "通话上限，默认 300s；小于 --duration 时走自动过期")
	f.BoolVar(&opts.TaskCompleted, "task-completed", true, "反馈：任务是否完成")
	f.IntVar(&opts.Score, "score", 5, "反馈：1-5 分")
	f.StringVar(&opts.Text, "text", "", "反馈文字")
	f.BoolVar(&opts.SkipFeedback, "skip-feedback", false, "跳过反馈")
	f.DurationVar(&opts.Timeout, "timeout", 15*time.Second, "单次 HTTP 请求超时")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
