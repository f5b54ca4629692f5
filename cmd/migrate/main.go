package main

import (
	"fmt"
	"os"

	"tempbox/backend/internal/config"
	sqlstore "tempbox/backend/internal/storage/sql"
)

// 独立的迁移入口，用于在部署流水线里提前建表
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if cfg.Database.Driver == "memory" {
		fmt.Println("memory driver, nothing to migrate")
		return
	}

	db, err := sqlstore.Open(cfg.Database)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}
	fmt.Println("migration complete")
}
