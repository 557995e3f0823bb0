package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pdf-workbench/internal/config"
	"pdf-workbench/internal/logger"
)

// Command line flags
var (
	configFlag  = flag.String("config", config.DefaultConfigFileName, "Path to the TOML configuration file")
	addrFlag    = flag.String("addr", "", "Listen address, overrides server.addr (e.g. :8000)")
	consoleFlag = flag.Bool("console", false, "Also write logs to stderr")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("pdf-workbench - PDF 页面预览、拆分、标注与文本提取服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  pdf-workbench [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  --config <PATH>    配置文件路径 (默认: pdf-workbench.toml)")
	fmt.Println("  --addr <ADDR>      监听地址，覆盖配置中的 server.addr")
	fmt.Println("  --console          同时输出日志到控制台")
	fmt.Println("  -h, --help         显示帮助信息")
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Printf("  %-26s 监听地址\n", config.EnvAddr)
	fmt.Printf("  %-26s 上传文件大小上限（字节）\n", config.EnvMaxUploadBytes)
	fmt.Printf("  %-26s 敏感词列表，逗号分隔\n", config.EnvSensitivePatterns)
	fmt.Printf("  %-26s 日志文件路径\n", config.EnvLogFile)
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	app, err := NewAppWithConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config()
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *consoleFlag {
		cfg.Log.Console = true
	}

	if err := logger.Init(app.config.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "错误: 初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("service stopped with error", err)
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}
