package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
	"github.com/bundle-hub/bundle-hub/internal/config"
	"github.com/bundle-hub/bundle-hub/internal/engine/concat"
	"github.com/bundle-hub/bundle-hub/internal/logging"
	"github.com/bundle-hub/bundle-hub/internal/server"
	"github.com/bundle-hub/bundle-hub/internal/server/routes"
	"github.com/bundle-hub/bundle-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	// printBundle 非空时只构建该 Bundle 一次并输出到 stdout。
	printBundle string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["bundles"] = len(cfg.Bundles)
		fields["mounts"] = config.Mounts(cfg.Bundles)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.printBundle != "" {
		return printBundle(cfg, opts.printBundle, logger)
	}

	// CLI 启动遵循“配置 → BundleRegistry → Fiber server”顺序，
	// 每个 Bundle 拥有独立引擎，编译缓存目录全局共享。
	registry, err := server.BuildRegistry(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Bundle 注册表失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.WithError(err).Warn("bundle_close_failed")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["bundles"] = len(cfg.Bundles)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["mounts"] = config.Mounts(cfg.Bundles)
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["debug"] = cfg.Global.Debug
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := startHTTPServer(ctx, cfg, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("bundle-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		printName  string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 BUNDLEHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&printName, "print", "", "构建指定 Bundle 一次并输出到 stdout")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("BUNDLEHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		printBundle: printName,
	}, nil
}

// printBundle 以一次性模式构建 Bundle：不启动 watch，也不监听端口。
func printBundle(cfg *config.Config, name string, logger *logrus.Logger) int {
	var target *config.BundleConfig
	for i := range cfg.Bundles {
		if cfg.Bundles[i].Name == name {
			target = &cfg.Bundles[i]
			break
		}
	}
	if target == nil {
		fmt.Fprintf(stdErr, "未找到 Bundle: %s\n", name)
		return 1
	}

	eng, err := concat.New(concat.Options{Root: target.Root, Logger: logger})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化引擎失败: %v\n", err)
		return 1
	}
	res, err := bundler.BundleOnce(context.Background(), eng, cfg.BundleOptions(*target, logger))
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Bundle 失败: %v\n", err)
		return 1
	}
	fmt.Fprint(stdOut, res.Text)
	if !res.OK() {
		for file, ferr := range res.Errors {
			fmt.Fprintf(stdErr, "%s: %v\n", file, ferr)
		}
		return 1
	}
	return 0
}

func startHTTPServer(ctx context.Context, cfg *config.Config, registry *server.BundleRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterBundleRoutes(app, registry)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("收到退出信号，停止服务")
		if err := app.Shutdown(); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
