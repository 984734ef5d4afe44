// Точка входа Files Manager — сервиса хранения файлов пользователей.
//
// Команды:
//   - serve  — HTTP API (загрузка, чтение, список, сверка хранилища);
//   - worker — генерация миниатюр изображений из очереди заданий.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/files-manager/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd создаёт корневую команду с подкомандами serve и worker.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "files-manager",
		Short:         "Files Manager — хранение файлов и миниатюр изображений",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "путь к файлу конфигурации (yaml, json, toml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Запуск HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("конфигурация: %w", err)
				}
				return runServe(cmd.Context(), cfg, config.SetupLogger(cfg))
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Запуск обработчика заданий миниатюр",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("конфигурация: %w", err)
				}
				return runWorker(cmd.Context(), cfg, config.SetupLogger(cfg))
			},
		},
	)

	return root
}
