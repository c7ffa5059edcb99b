// stockdata 命令行查询工具，结果以 JSON 输出到 stdout，日志输出到 stderr
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stockdata/pkg/config"
	apperr "stockdata/pkg/error"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider"
)

// 退出码
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stockdata", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "配置文件路径")
	backend := fs.String("backend", "", "数据源后端 (crawler, sina)")
	fallback := fs.String("fallback", "", "回退数据源，none 表示不回退")
	source := fs.String("source", "", "使用指定的已注册数据源 (crawler, sina, hybrid)")
	timeout := fs.Duration("timeout", 60*time.Second, "整个命令的超时")
	logLevel := fs.String("log-level", "", "日志级别")
	pretty := fs.Bool("pretty", true, "缩进输出 JSON")
	fs.Usage = func() { usage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	cmd, ok := lookupCommand(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", fs.Arg(0))
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if *backend != "" {
		cfg.SetBackend(*backend)
	}
	switch *fallback {
	case "":
		if cfg.DataSource.Fallback == cfg.DataSource.Backend {
			cfg.SetFallback("")
		}
	case "none":
		cfg.SetFallback("")
	default:
		cfg.SetFallback(*fallback)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logger.InitWithWriter(cfg.Logger, stderr)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	manager, err := provider.NewManagerFromConfig(ctx, cfg)
	if err != nil {
		return writeError(stderr, err)
	}
	defer manager.Close()

	result, err := cmd.run(ctx, &env{manager: manager, source: *source}, fs.Args()[1:])
	if err != nil {
		if isUsage(err) {
			fmt.Fprintf(stderr, "%v\nusage: stockdata %s %s\n", err, cmd.name, cmd.usage)
			return exitUsage
		}
		return writeError(stderr, err)
	}
	return writeJSON(stdout, result, *pretty)
}

func writeJSON(w io.Writer, v interface{}, pretty bool) int {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return exitError
	}
	return exitOK
}

// writeError 错误也以 JSON 输出，便于上层工具解析
func writeError(w io.Writer, err error) int {
	out := map[string]interface{}{
		"error":   "internal_error",
		"message": err.Error(),
	}
	if be, ok := apperr.As(err); ok {
		out["error"] = strings.ToLower(string(be.Code))
		if len(be.Context) > 0 {
			out["context"] = be.Context
		}
	}
	writeJSON(w, out, false)
	return exitError
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: stockdata [flags] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
