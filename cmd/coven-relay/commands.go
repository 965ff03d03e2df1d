// ABOUTME: Operator subcommands for coven-relay
// ABOUTME: Interactive config setup, admin password hashing, and history inspection

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-relay/internal/auth"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/store"
)

func runHashPassword(args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	history, err := store.Open(cfg.History.Backend, cfg.History.Path, quiet)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer history.Close()

	if len(args) == 0 {
		return listConversations(ctx, history)
	}
	return printConversation(ctx, history, args[0])
}

func listConversations(ctx context.Context, history store.HistoryStore) error {
	keys, err := history.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("no conversations")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, key := range keys {
		msgs, err := history.History(ctx, key)
		if err != nil {
			return err
		}
		fmt.Printf("%-40s %4d messages", key, len(msgs))
		if len(msgs) > 0 {
			gray.Printf("  last %s", msgs[len(msgs)-1].SentAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

func printConversation(ctx context.Context, history store.HistoryStore, key string) error {
	msgs, err := history.History(ctx, key)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages for %q", key)
	}

	admin := color.New(color.FgCyan, color.Bold)
	visitor := color.New(color.FgGreen, color.Bold)
	gray := color.New(color.FgHiBlack)

	for _, m := range msgs {
		gray.Printf("[%s] ", m.Time)
		if m.Sender == store.AdminSender {
			admin.Printf("%s: ", m.Sender)
		} else {
			visitor.Printf("%s: ", m.Sender)
		}
		fmt.Println(m.Text)
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coven-relay configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "127.0.0.1:8080")

	fmt.Println("\n--- History Configuration ---")
	backend := prompt(reader, "History backend (file/sqlite)", store.BackendFile)
	defaultHistory := filepath.Join(defaultDataPath(), "chatHistory.json")
	if backend == store.BackendSQLite {
		defaultHistory = filepath.Join(defaultDataPath(), "history.db")
	}
	historyPath := prompt(reader, "History path", defaultHistory)
	contactPath := prompt(reader, "Contact log path", filepath.Join(defaultDataPath(), "messages.json"))

	fmt.Println("\n--- Admin Login ---")
	adminUser := prompt(reader, "Admin username (empty disables login)", "")
	var passwordHash string
	if adminUser != "" {
		password := prompt(reader, "Admin password", "")
		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing admin password: %w", err)
		}
		passwordHash = hash
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# coven-relay configuration\n")
	cfg.WriteString("# Generated by coven-relay init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", httpAddr))

	cfg.WriteString("history:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", historyPath))

	cfg.WriteString("contact:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", contactPath))

	if adminUser != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  admin_username: %q\n", adminUser))
		cfg.WriteString(fmt.Sprintf("  admin_password_hash: %q\n", passwordHash))
		cfg.WriteString("  jwt_secret: \"${RELAY_JWT_SECRET}\"\n")
		cfg.WriteString("  token_ttl: \"12h\"\n\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n\n", logFormat))

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if adminUser != "" {
		color.Yellow("Set RELAY_JWT_SECRET (at least 32 bytes) before starting the server.")
	}
	fmt.Println("\nTo start the server:")
	fmt.Printf("  coven-relay serve\n")

	return nil
}

// defaultDataPath returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func defaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
