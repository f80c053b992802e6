package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeovahfialho/capital-gains/internal/config"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/internal/service"
	"github.com/jeovahfialho/capital-gains/internal/storage/cache"
	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
)

type flags struct {
	input         string
	perSymbol     bool
	maxErrors     int
	decimalPlaces int32
	workers       int
}

func main() {
	var f flags

	var rootCmd = &cobra.Command{
		Use:   "capital-gains",
		Short: "Calcula imposto sobre ganho de capital",
		Long: `Lê listas JSON de operações de compra e venda (uma ou mais por entrada)
e imprime, para cada lista, uma linha JSON com o imposto de cada operação.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return calculate(cmd.Context(), cfg, f.input, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	rootCmd.Flags().StringVarP(&f.input, "input", "i", "-", "Arquivo de entrada (- para stdin)")
	rootCmd.PersistentFlags().BoolVar(&f.perSymbol, "per-symbol", false, "Mantém posição separada por ativo (symbol)")
	rootCmd.PersistentFlags().IntVar(&f.maxErrors, "max-errors", 3, "Erros até bloquear o lote (0 desativa)")
	rootCmd.PersistentFlags().Int32Var(&f.decimalPlaces, "decimal-places", 2, "Casas decimais de arredondamento (1 ou 2)")
	rootCmd.PersistentFlags().IntVarP(&f.workers, "workers", "w", 4, "Lotes avaliados em paralelo")

	var loadCmd = &cobra.Command{
		Use:   "load [files or urls...]",
		Short: "Importa lotes de operações para o PostgreSQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return loadFiles(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}

	var replayCmd = &cobra.Command{
		Use:   "replay [batch-id...]",
		Short: "Recalcula lotes armazenados no PostgreSQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return replayBatches(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lista lotes armazenados",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			return listBatches(cmd.Context(), cfg, limit, cmd.OutOrStdout())
		},
	}
	listCmd.Flags().IntP("limit", "n", 20, "Quantidade máxima de lotes")

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Verifica PostgreSQL e Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return checkHealth(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(loadCmd, replayCmd, listCmd, healthCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the flags the user set explicitly.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.LoadE()
	if err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}

	fs := cmd.Flags()
	if fs.Changed("per-symbol") {
		cfg.PerSymbol = f.perSymbol
	}
	if fs.Changed("max-errors") {
		cfg.MaxErrors = f.maxErrors
	}
	if fs.Changed("decimal-places") {
		cfg.TaxDecimalPlaces = f.decimalPlaces
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment == "development"); err != nil {
		return nil, fmt.Errorf("erro ao inicializar logger: %w", err)
	}

	return cfg, nil
}

func newCalculator(cfg *config.Config, resultCache service.ResultCache) *service.CalculatorService {
	parser := ingestion.NewParser(0)
	engine := service.NewTaxEngine(service.RulesFromConfig(cfg))
	return service.NewCalculatorService(engine, parser, resultCache, cfg.Workers)
}

func calculate(ctx context.Context, cfg *config.Config, input string, stdin io.Reader, out io.Writer) error {
	reader := stdin
	if input != "" && input != "-" {
		file, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("erro ao abrir arquivo: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var resultCache service.ResultCache
	if redisCache := connectRedis(cfg); redisCache != nil {
		defer redisCache.Close()
		resultCache = redisCache
	}

	results, err := newCalculator(cfg, resultCache).CalculateText(ctx, reader)
	if err != nil {
		return err
	}

	return ingestion.Encode(out, results)
}

func loadFiles(ctx context.Context, cfg *config.Config, patterns []string, out io.Writer) error {
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	replay := service.NewReplayService(postgres.NewOperationStore(db.Pool()), ingestion.NewParser(0), newCalculator(cfg, nil))

	var files, urls []string
	for _, p := range patterns {
		if ingestion.IsRemote(p) {
			urls = append(urls, p)
			continue
		}

		matches, err := filepath.Glob(p)
		if err != nil {
			return fmt.Errorf("padrão inválido %q: %w", p, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("nenhum arquivo encontrado para %q", p)
		}
		files = append(files, matches...)
	}

	if len(urls) > 0 {
		dir, err := os.MkdirTemp("", "capital-gains-*")
		if err != nil {
			return fmt.Errorf("erro ao criar diretório temporário: %w", err)
		}
		defer os.RemoveAll(dir)

		downloaded, err := ingestion.NewDownloader(cfg.Workers).DownloadAll(ctx, urls, dir)
		if err != nil {
			return err
		}
		files = append(files, downloaded...)
	}

	total := 0
	for _, path := range files {
		ids, err := importFile(ctx, replay, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, id := range ids {
			fmt.Fprintf(out, "%s\t%s\n", id, filepath.Base(path))
		}
		total += len(ids)
	}

	logger.Sugar.Infof("%d lotes importados de %d arquivos", total, len(files))
	return nil
}

func importFile(ctx context.Context, replay *service.ReplayService, path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return replay.Import(ctx, filepath.Base(path), file)
}

func replayBatches(ctx context.Context, cfg *config.Config, ids []string, out io.Writer) error {
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	replay := service.NewReplayService(postgres.NewOperationStore(db.Pool()), ingestion.NewParser(0), newCalculator(cfg, nil))

	results, err := replay.Replay(ctx, ids...)
	if err != nil {
		return err
	}

	return ingestion.Encode(out, results)
}

func listBatches(ctx context.Context, cfg *config.Config, limit int, out io.Writer) error {
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	batches, err := postgres.NewOperationStore(db.Pool()).ListBatches(ctx, limit)
	if err != nil {
		return err
	}

	for _, b := range batches {
		fmt.Fprintf(out, "%s\t%-20s %5d ops\t%s\n",
			b.ID, b.Source, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func checkHealth(ctx context.Context, cfg *config.Config, out io.Writer) error {
	fmt.Fprint(out, "PostgreSQL: ")
	db, err := postgres.NewDB(cfg)
	if err != nil {
		fmt.Fprintf(out, "erro: %v\n", err)
	} else {
		defer db.Close()
		if err := db.HealthCheck(ctx); err != nil {
			fmt.Fprintf(out, "erro: %v\n", err)
		} else {
			fmt.Fprintln(out, "OK")
		}
	}

	fmt.Fprint(out, "Redis: ")
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		fmt.Fprintf(out, "erro: %v\n", err)
		return nil
	}
	defer redisCache.Close()

	if err := redisCache.HealthCheck(ctx); err != nil {
		fmt.Fprintf(out, "erro: %v\n", err)
	} else {
		fmt.Fprintln(out, "OK")
	}
	return nil
}

// connectDB conecta ao PostgreSQL e garante o schema
func connectDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao conectar ao banco: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// connectRedis conecta ao Redis quando o cache está habilitado
func connectRedis(cfg *config.Config) *cache.RedisCache {
	if !cfg.CacheEnabled {
		return nil
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logger.Warn("Redis não disponível, continuando sem cache", zap.Error(err))
		return nil
	}
	return redisCache
}
