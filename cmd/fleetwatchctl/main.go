// Command fleetwatchctl is the ad-hoc operator CLI for a fleetwatch
// deployment: one-shot administrative actions against the store and a
// running daemon's PID file, grounded on cmd/dbctl/main.go's flag-
// dispatch shape (-db/-action, one switch over action names) but
// retargeted at fleetwatch's own store, clock, and retention service
// instead of the teacher's agent_control table.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/instance"
	"github.com/fleetwatch/fleetwatch/internal/retention"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

func main() {
	dbPath := flag.String("db", "fleetwatch.db", "Path to the fleetwatch SQLite database")
	action := flag.String("action", "", "Action to perform: retention-run, create-user, create-apikey, revoke-apikey, status, dump-config")
	jsonOutput := flag.Bool("json", false, "Output as JSON")

	dryRun := flag.Bool("dry-run", true, "retention-run: count only, do not delete (pass -dry-run=false to delete)")
	username := flag.String("username", "", "create-user: account username")
	role := flag.String("role", string(domain.RoleViewer), "create-user: Viewer, Operator, Administrator, or Service")
	keyName := flag.String("name", "", "create-apikey: a human-readable label for the key")
	scope := flag.String("scope", "", "create-apikey: comma-separated capability scopes")
	serverName := flag.String("server", "", "create-apikey: server this key is bound to, if any")
	keyID := flag.Int64("id", 0, "revoke-apikey: the api_keys.id to revoke")
	pidFile := flag.String("pid-file", "fleetwatchd.pid", "status: path to the daemon's PID file")

	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: fleetwatchctl -db <path> -action <action> [flags]\n")
		fmt.Fprintf(os.Stderr, "Actions: retention-run, create-user, create-apikey, revoke-apikey, status, dump-config\n")
		os.Exit(1)
	}

	ctx := context.Background()
	clk := clock.New()

	var err error
	switch *action {
	case "retention-run":
		err = runRetention(ctx, *dbPath, clk, *dryRun, *jsonOutput)
	case "create-user":
		err = runCreateUser(ctx, *dbPath, clk, *username, *role, *jsonOutput)
	case "create-apikey":
		err = runCreateAPIKey(ctx, *dbPath, clk, *keyName, *scope, *serverName, *jsonOutput)
	case "revoke-apikey":
		err = runRevokeAPIKey(ctx, *dbPath, clk, *keyID, *jsonOutput)
	case "status":
		err = runStatus(*pidFile, *jsonOutput)
	case "dump-config":
		err = runDumpConfig()
	default:
		err = fmt.Errorf("unknown action: %s", *action)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetwatchctl: %v\n", err)
		os.Exit(1)
	}
}

func openStore(dbPath string) (*store.Store, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// runRetention drives one ad-hoc pass of Component F outside the
// daemon's own cron schedule, the same dry-run/live switch
// cmd/dbctl's maintenance actions offered over agent_control rows.
func runRetention(ctx context.Context, dbPath string, clk clock.Clock, dryRun, asJSON bool) error {
	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := retention.New(st, clk, retention.Policy{
		DefaultDays:    90,
		ErrorDays:      180,
		CriticalDays:   365,
		BatchSize:      10000,
		CleanupTimeUTC: "03:00",
	})

	report, err := svc.Run(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("run retention: %w", err)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	fmt.Printf("%s: trace/debug=%d info=%d warning/error=%d alert-instances=%d audit-logs=%d refresh-tokens=%d\n",
		verb, report.TraceDebug, report.Info, report.WarningError,
		report.AlertInstances, report.AuditLogs, report.RefreshTokens)
	if len(report.DroppedPartitions) > 0 {
		fmt.Printf("dropped partitions: %v\n", report.DroppedPartitions)
	}
	return nil
}

// runCreateUser provisions an operator-facing account. Password
// verification is out of scope (domain.User doc comment) so this
// action only records the identity and role a bearer token will
// later be minted against.
func runCreateUser(ctx context.Context, dbPath string, clk clock.Clock, username, roleStr string, asJSON bool) error {
	if username == "" {
		return fmt.Errorf("create-user requires -username")
	}
	r := domain.Role(roleStr)
	switch r {
	case domain.RoleViewer, domain.RoleOperator, domain.RoleAdministrator, domain.RoleService:
	default:
		return fmt.Errorf("invalid -role %q: must be Viewer, Operator, Administrator, or Service", roleStr)
	}

	stamp, err := randomHex(16)
	if err != nil {
		return err
	}

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	u := &domain.User{
		Username:      username,
		Role:          r,
		SecurityStamp: stamp,
		IsActive:      true,
		CreatedAt:     clk.NowUTC(),
	}
	if err := st.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(u)
	}
	fmt.Printf("created user %q (id=%d, role=%s)\n", u.Username, u.ID, u.Role)
	return nil
}

// runCreateAPIKey mints a scoped API key, printing the plaintext once
// (it is never persisted or shown again) alongside the stored record,
// mirroring internal/auth.NewRefreshToken's plaintext-once discipline.
func runCreateAPIKey(ctx context.Context, dbPath string, clk clock.Clock, name, scopeCSV, serverName string, asJSON bool) error {
	if name == "" {
		return fmt.Errorf("create-apikey requires -name")
	}

	plaintext, err := randomHex(32)
	if err != nil {
		return err
	}

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	k := &domain.APIKey{
		Name:       name,
		KeyHash:    auth.HashToken(plaintext),
		Scope:      splitCSV(scopeCSV),
		ServerName: serverName,
		IsActive:   true,
		CreatedAt:  clk.NowUTC(),
	}
	if err := st.CreateAPIKey(ctx, k); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"apiKey":    k,
			"plaintext": plaintext,
		})
	}
	fmt.Printf("created api key %q (id=%d, scope=%v)\n", k.Name, k.ID, k.Scope)
	fmt.Printf("plaintext (shown once, store it now): %s\n", plaintext)
	return nil
}

func runRevokeAPIKey(ctx context.Context, dbPath string, clk clock.Clock, id int64, asJSON bool) error {
	if id == 0 {
		return fmt.Errorf("revoke-apikey requires -id")
	}

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RevokeAPIKey(ctx, id, clk.NowUTC()); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"revoked": true, "id": id})
	}
	fmt.Printf("revoked api key id=%d\n", id)
	return nil
}

// runStatus reports what a running fleetwatchd instance's PID file
// claims, and whether /healthz currently agrees, without the full
// interactive ConflictResolver prompt flow internal/instance otherwise
// drives at daemon startup.
func runStatus(pidFilePath string, asJSON bool) error {
	mgr := instance.NewManager(pidFilePath, "", 0)
	data, err := mgr.ReadPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{"running": false})
			}
			fmt.Println("no PID file found; fleetwatchd does not appear to be running")
			return nil
		}
		return fmt.Errorf("read PID file: %w", err)
	}

	running, _ := instance.IsProcessRunning(data.PID)
	responding := instance.HealthCheck(data.Port) == nil

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"running":    running,
			"responding": responding,
			"pid":        data.PID,
			"port":       data.Port,
			"startedAt":  data.StartedAt,
			"hostname":   data.Hostname,
		})
	}
	fmt.Printf("pid=%d port=%d started=%s hostname=%s running=%v responding=%v\n",
		data.PID, data.Port, data.StartedAt.Format(time.RFC3339), data.Hostname, running, responding)
	return nil
}

// runDumpConfig prints the effective configuration (defaults overlaid
// by FLEETWATCH_* environment variables, matching config.Load's own
// precedence with no flags bound) as YAML, the format config.Load's
// -config-file already accepts — so an operator can redirect this
// output to a file, edit it, and hand it back to fleetwatchd.
func runDumpConfig() error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Key each value by its mapstructure tag, the names config.Load
	// reads back from a -config-file.
	out := make(map[string]any)
	v := reflect.ValueOf(*cfg)
	for i := 0; i < v.NumField(); i++ {
		out[v.Type().Field(i).Tag.Get("mapstructure")] = v.Field(i).Interface()
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(out)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random value: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
