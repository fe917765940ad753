package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/repohub/internal/cache"
	"github.com/any-hub/repohub/internal/config"
	"github.com/any-hub/repohub/internal/engine"
	"github.com/any-hub/repohub/internal/group"
	"github.com/any-hub/repohub/internal/logging"
	"github.com/any-hub/repohub/internal/metrics"
	"github.com/any-hub/repohub/internal/pool"
	"github.com/any-hub/repohub/internal/remote"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/server"
	"github.com/any-hub/repohub/internal/server/routes"
	"github.com/any-hub/repohub/internal/version"
)

const (
	configEnv       = "REPOHUB_CONFIG"
	// deployBodyLimit 限制单次 PUT 上传体积。
	deployBodyLimit = 1 << 30
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

// errHelpShown 表示 cobra 已输出帮助信息，进程应直接退出。
var errHelpShown = errors.New("help shown")

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if errors.Is(err, errHelpShown) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// newRootCommand 构建 repohub 命令树；RunE 只记录选项，真正的执行交给 run。
func newRootCommand(opts *cliOptions, parsed *bool) *cobra.Command {
	root := &cobra.Command{
		Use:           "repohub",
		Short:         "Artifact repository resolution and proxy engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*parsed = true
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	root.Flags().BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	root.Flags().BoolVar(&opts.showVersion, "version", false, "显示版本信息")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.showVersion = true
			*parsed = true
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "仅校验配置后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.checkOnly = true
			*parsed = true
			return nil
		},
	})
	return root
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	var (
		opts   cliOptions
		parsed bool
	)
	root := newRootCommand(&opts, &parsed)
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	if err := root.Execute(); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if !parsed {
		return cliOptions{}, errHelpShown
	}

	if opts.configPath == "" {
		opts.configPath = os.Getenv(configEnv)
	}
	if opts.configPath == "" {
		opts.configPath = "config.toml"
	}
	return opts, nil
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	reloads := make(chan reloadEvent, 4)
	var (
		cfg *config.Config
		err error
	)
	if opts.checkOnly {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.Watch(opts.configPath, func(next *config.Config, err error) {
			reloads <- reloadEvent{cfg: next, err: err}
		})
	}
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	snap, cycles, err := config.BuildSnapshot(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建仓库快照失败: %v\n", err)
		return 1
	}
	logCycles(logger, opts.configPath, cycles)

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storages"] = len(cfg.Storages)
		fields["repositories"] = cfg.RepositoryCount()
		fields["credentials"] = config.CredentialModes(cfg.Storages)
		fields["group_cycles"] = len(cycles)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 快照 → 磁盘存储 → 连接池/上游 → 引擎 → Fiber server，
	// 所有请求共享同一个连接池与存储实例。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储目录失败: %v\n", err)
		return 1
	}

	manager := pool.NewManager(cfg.Global.PoolSettings())
	defer manager.Close()
	collector := metrics.NewCollector(manager)

	eng, err := engine.New(snap, engine.Options{
		Store:    store,
		Pool:     manager,
		Fetcher:  newFetcher(cfg.Global, manager, logger),
		Logger:   logger,
		Recorder: collector,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化引擎失败: %v\n", err)
		return 1
	}
	go watchReloads(reloads, eng, logger, opts.configPath)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["storages"] = len(cfg.Storages)
	fields["repositories"] = cfg.RepositoryCount()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["credentials"] = config.CredentialModes(cfg.Storages)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, eng, collector, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func newFetcher(g config.GlobalConfig, manager *pool.Manager, logger *logrus.Logger) *remote.Fetcher {
	opts := []remote.Option{
		remote.WithLogger(logger),
		remote.WithTimeout(g.UpstreamTimeout.DurationValue()),
		remote.WithUserAgent(g.UserAgent),
	}
	if g.BreakerThreshold > 0 {
		opts = append(opts, remote.WithBreakerThreshold(int64(g.BreakerThreshold)))
	}
	return remote.NewFetcher(manager, opts...)
}

type reloadEvent struct {
	cfg *config.Config
	err error
}

// watchReloads 串行应用配置变更；失败时保留旧快照并记录错误。
func watchReloads(events <-chan reloadEvent, eng *engine.Engine, logger *logrus.Logger, configPath string) {
	for ev := range events {
		snap, cycles, err := reloadSnapshot(ev)
		if err != nil {
			logger.WithFields(logging.BaseFields("config_reload", configPath)).
				WithError(err).
				Error("配置重新加载失败，继续使用旧快照")
			continue
		}
		logCycles(logger, configPath, cycles)
		eng.Reload(snap, ev.cfg.Global.PoolSettings())
		logger.WithFields(logging.BaseFields("config_reload", configPath)).
			WithField("repositories", ev.cfg.RepositoryCount()).
			Info("配置已重新加载")
	}
}

func reloadSnapshot(ev reloadEvent) (*repository.Snapshot, []group.Cycle, error) {
	if ev.err != nil {
		return nil, nil, ev.err
	}
	return config.BuildSnapshot(ev.cfg)
}

func logCycles(logger *logrus.Logger, configPath string, cycles []group.Cycle) {
	for _, c := range cycles {
		fields := logging.BaseFields("group_cycle", configPath)
		fields["group"] = c.Group
		fields["member"] = c.Member
		logger.WithFields(fields).Warn("group_member_cycle")
	}
}

func startHTTPServer(cfg *config.Config, eng *engine.Engine, collector *metrics.Collector, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Engine:     eng,
		ListenPort: port,
		BodyLimit:  deployBodyLimit,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticRoutes(app, eng, collector.Handler())

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
