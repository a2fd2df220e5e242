package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/taskboard/pkg/api/client"
)

const defaultAPIBaseURL = "http://localhost:5000"

type cliConfig struct {
	APIBaseURL  string    `json:"api_base_url"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandAuth("register", args)
	case "login":
		err = commandAuth("login", args)
	case "logout":
		err = commandLogout()
	case "list", "ls":
		err = commandList(args)
	case "add":
		err = commandAdd(args)
	case "edit":
		err = commandEdit(args)
	case "rm", "delete":
		err = commandRemove(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandAuth(mode string, args []string) error {
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	secret := *password
	if secret == "" {
		fmt.Print("Password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		secret = string(bytes)
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var token apiclient.Token
	if mode == "register" {
		token, err = client.Register(ctx, *email, secret)
	} else {
		token, err = client.Login(ctx, *email, secret)
	}
	if err != nil {
		return err
	}
	cfg.AccessToken = token.Token
	cfg.ExpiresAt = token.ExpiresAt
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("%s successful, session valid until %s\n", mode, token.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func commandLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.AccessToken = ""
	cfg.ExpiresAt = time.Time{}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print tasks as JSON")
	fs.Parse(args)

	client, cfg, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	tasks, err := client.ListTasks(ctx, cfg.AccessToken)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tDUE\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.DueAt.Local().Format("2006-01-02 15:04"), t.Description)
	}
	return w.Flush()
}

func commandAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "Task title")
	description := fs.String("description", "", "Task description")
	due := fs.String("due", "", "Due date (YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC3339)")
	fs.Parse(args)

	if strings.TrimSpace(*title) == "" {
		return errors.New("--title is required")
	}
	dueAt, err := parseDue(*due)
	if err != nil {
		return err
	}
	client, cfg, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	created, err := client.CreateTask(ctx, cfg.AccessToken, apiclient.CreateTaskInput{
		Title:       *title,
		Description: *description,
		DueAt:       dueAt,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created task %s\n", created.ID)
	return nil
}

func commandEdit(args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	id := fs.String("id", "", "Task ID")
	title := fs.String("title", "", "New title")
	description := fs.String("description", "", "New description")
	due := fs.String("due", "", "New due date")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	var input apiclient.UpdateTaskInput
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			input.Title = title
		case "description":
			input.Description = description
		}
	})
	if strings.TrimSpace(*due) != "" {
		dueAt, err := parseDue(*due)
		if err != nil {
			return err
		}
		input.DueAt = &dueAt
	}
	if input.Title == nil && input.Description == nil && input.DueAt == nil {
		return errors.New("nothing to update; pass --title, --description or --due")
	}

	client, cfg, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	msg, err := client.UpdateTask(ctx, cfg.AccessToken, *id, input)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func commandRemove(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	id := fs.String("id", "", "Task ID")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" && fs.NArg() > 0 {
		*id = fs.Arg(0)
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	client, cfg, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	msg, err := client.DeleteTask(ctx, cfg.AccessToken, *id)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func authenticatedClient() (*apiclient.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cliConfig{}, err
	}
	if cfg.AccessToken == "" {
		return nil, cliConfig{}, errors.New("not logged in; run `todo login --email ...`")
	}
	if !cfg.ExpiresAt.IsZero() && time.Now().After(cfg.ExpiresAt) {
		return nil, cliConfig{}, errors.New("session expired; run `todo login --email ...`")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return client, cfg, nil
}

var dueLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseDue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("--due is required")
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q", raw)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("TODO_CONFIG")); path != "" {
		return path, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "taskboard", "config.json"), nil
}

func printUsage() {
	fmt.Printf("todo CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	todo register --email user@example.com [--password secret] [--api http://localhost:5000]
	todo login --email user@example.com [--password secret] [--api http://localhost:5000]
	todo logout
	todo list [--json]
	todo add --title "Buy milk" --due 2025-01-01T10:00 [--description text]
	todo edit --id <task-id> [--title t] [--description d] [--due date]
	todo rm --id <task-id>
	todo version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
