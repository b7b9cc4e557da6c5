package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/bucket"
	"github.com/shell-box/shell-box/internal/config"
	"github.com/shell-box/shell-box/internal/lifecycle"
	"github.com/shell-box/shell-box/internal/logging"
	"github.com/shell-box/shell-box/internal/notify"
	"github.com/shell-box/shell-box/internal/proxy"
	"github.com/shell-box/shell-box/internal/router"
	"github.com/shell-box/shell-box/internal/server"
	"github.com/shell-box/shell-box/internal/server/routes"
	"github.com/shell-box/shell-box/internal/strategy"
	"github.com/shell-box/shell-box/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
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
		fields["version_tag"] = cfg.Shell.CacheVersion
		fields["precache"] = len(cfg.Shell.Precache)
		fields["realtime_bypass"] = len(cfg.Shell.RealtimeBypass)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 存储 → install → activate → Fiber server”顺序：
	// 预缓存与旧版本清理先完成，随后立即接管全部请求。
	store, err := bucket.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	defer store.Close()

	upstream, err := cfg.Shell.UpstreamURL()
	if err != nil {
		fmt.Fprintf(stdErr, "解析上游地址失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)
	fetch := strategy.NewHTTPFetcher(httpClient, upstream)

	manager := lifecycle.NewManager(store, fetch, logger, cfg.Shell)
	if err := manager.Install(context.Background()); err != nil {
		fmt.Fprintf(stdErr, "安装阶段失败: %v\n", err)
		return 1
	}
	if err := manager.Activate(context.Background()); err != nil {
		fmt.Fprintf(stdErr, "激活阶段失败: %v\n", err)
		return 1
	}

	classifier := router.NewClassifier(cfg.Shell.RealtimeBypass)
	networkFirst := strategy.NewNetworkFirst(fetch, manager.Current(), logger, cfg.Shell.OfflinePath)
	cacheFirst := strategy.NewCacheFirst(fetch, manager.Current(), logger, upstream.Host)
	proxyHandler := proxy.NewHandler(logger, classifier, networkFirst, cacheFirst, fetch)

	center := notify.NewCenter(notify.DefaultsFromShell(cfg.Shell), upstream.Host, logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["version_tag"] = cfg.Shell.CacheVersion
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = upstream.String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, proxyHandler, manager, center, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("shell-box", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SHELL_BOX_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SHELL_BOX_CONFIG")
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
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	proxyHandler server.ProxyHandler,
	manager *lifecycle.Manager,
	center *notify.Center,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxyHandler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterControlRoutes(app, routes.ControlOptions{
		Logger:    logger,
		Lifecycle: manager,
		Center:    center,
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
