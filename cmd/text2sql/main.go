// Command text2sql answers a natural-language question against a SQL
// database with a tool-calling agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/kbagents/config"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/llm"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/prebuilt"
	"github.com/smallnest/kbagents/tool"
)

var (
	dbDSN    = flag.String("db", "", "Database file or connection string (defaults to DB_DSN)")
	driver   = flag.String("driver", "", "Database driver: sqlite3 or pgx (defaults to DB_DRIVER)")
	question = flag.String("question", "Show me 5 customer names", "Question to answer")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		log.Error("text2sql: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *dbDSN != "" {
		cfg.DBDSN = *dbDSN
	}
	if *driver != "" {
		cfg.DBDriver = *driver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLogLevel(level)

	_, dialect, err := tool.DriverDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	if dialect == tool.DialectSQLite {
		_, statErr := os.Stat(cfg.DBDSN)
		fmt.Printf("Database path: %s\n", cfg.DBDSN)
		fmt.Printf("File exists: %t\n", statErr == nil)
		if statErr != nil {
			return fmt.Errorf("database %s: %w", cfg.DBDSN, statErr)
		}
	}

	db, err := tool.OpenSQLDatabase(cfg.DBDriver, cfg.DBDSN,
		tool.WithMaxRows(cfg.SQLMaxRows),
		tool.WithReadOnly(cfg.SQLReadOnly),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Tables in database: %v\n", tables)

	model, err := llm.NewChatModel(cfg, cfg.ChatModel)
	if err != nil {
		return err
	}

	agent, err := prebuilt.CreateText2SQLAgent(prebuilt.Text2SQLConfig{
		Model:       model,
		Tools:       tool.NewSQLToolkit(nil),
		CallOptions: []llms.CallOption{llms.WithTemperature(cfg.Temperature)},
		RetryPolicy: graph.NewRetryPolicy(cfg.NodeMaxRetries),
	})
	if err != nil {
		return err
	}
	agent.AddListener(graph.NewLoggingListener(log.GetDefaultLogger()))

	result, err := agent.InvokeWithConfig(ctx, prebuilt.Text2SQLState{UserQuery: *question}, &graph.Config{
		Configurable:   map[string]any{tool.DBEngineKey: db},
		RecursionLimit: cfg.RecursionLimit,
	})
	if err != nil {
		return err
	}

	fmt.Println("=== MESSAGES ===")
	return prebuilt.PrettyPrint(os.Stdout, result.Messages, prebuilt.WithNames(result.Names))
}
