// dbadmin 命令行管理集合数据: 写入示例数据、重置、统计、导出和清空
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"recruit-go/internal/bootstrap"
	"recruit-go/internal/config"
	appLogger "recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"

	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath string
		action     string
		out        string
		format     string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.StringVarP(&action, "action", "a", "stats", "seed | reset | stats | export | clear")
	pflag.StringVarP(&out, "out", "o", "", "export 输出文件, 为空时写到标准输出")
	pflag.StringVar(&format, "format", "json", "export 格式: json | users-csv | activity-csv")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("配置不合法: %v", err)
	}
	// 管理命令只输出警告以上的日志，避免干扰导出内容
	appLogger.InitWithWriter(appLogger.Config{Level: "warn", Format: "json"}, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()

	reset := bootstrap.NewResetService(store.New(storageManager.KV, cfg.Store.KeyPrefix))

	if err := run(ctx, reset, action, format, out); err != nil {
		fatalf("%s 失败: %v", action, err)
	}
}

func run(ctx context.Context, reset *bootstrap.ResetService, action, format, out string) error {
	switch action {
	case "seed":
		if err := reset.InitializeWithMockData(ctx); err != nil {
			return err
		}
		printStats(reset.GetDatabaseStats(ctx))
	case "reset":
		if err := reset.ResetDatabase(ctx); err != nil {
			return err
		}
		printStats(reset.GetDatabaseStats(ctx))
	case "clear":
		return reset.ClearAllData(ctx)
	case "stats":
		printStats(reset.GetDatabaseStats(ctx))
	case "export":
		return export(ctx, reset, format, out)
	default:
		return fmt.Errorf("未知操作 %q", action)
	}
	return nil
}

func export(ctx context.Context, reset *bootstrap.ResetService, format, out string) error {
	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "json":
		return reset.ExportJSON(ctx, w)
	case "users-csv":
		return reset.ExportUsersCSV(ctx, w)
	case "activity-csv":
		return reset.ExportActivityLogsCSV(ctx, w)
	}
	return fmt.Errorf("未知导出格式 %q", format)
}

func printStats(stats bootstrap.DatabaseStats) {
	names := make([]string, 0, len(stats.Collections))
	for name := range stats.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-16s %d\n", name, stats.Collections[name])
	}
	fmt.Printf("%-16s %d\n", "total", stats.Total)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
