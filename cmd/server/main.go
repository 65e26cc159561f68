package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"

	_ "modernc.org/sqlite"

	emailPkg "rollcall/internal/adapters/email"
	web "rollcall/internal/adapters/http"
	"rollcall/internal/adapters/http/perf"
	"rollcall/internal/adapters/storage"
	accountStore "rollcall/internal/adapters/storage/account"
	attendanceStore "rollcall/internal/adapters/storage/attendance"
	auditStore "rollcall/internal/adapters/storage/audit"
	lockStore "rollcall/internal/adapters/storage/lock"
	outboxStore "rollcall/internal/adapters/storage/outbox"
	personStore "rollcall/internal/adapters/storage/person"
	"rollcall/internal/application/orchestrators"
	"rollcall/internal/config"
	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()

	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}

	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialise database: %v", err)
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector)

	acctStore := accountStore.NewSQLiteStore(timedDB)
	stores := &web.Stores{
		AccountStore: acctStore,
		PersonStore:  personStore.NewSQLiteStore(timedDB),
		RecordStore:  attendanceStore.NewSQLiteStore(timedDB),
		LockStore:    lockStore.NewSQLiteStore(timedDB),
		AuditStore:   auditStore.NewSQLiteStore(timedDB),
		OutboxStore:  outboxStore.NewSQLiteStore(timedDB),
	}

	if err := seedAdmin(acctStore); err != nil {
		log.Fatalf("failed to seed admin account: %v", err)
	}

	// Email sender for the red-flag digest outbox
	var sender emailPkg.Sender
	if cfg.ResendAPIKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendAPIKey, cfg.AlertFrom)
		log.Println("Email sender configured (Resend)")
	} else {
		sender = emailPkg.NewNoopSender()
		if os.Getenv("ROLLCALL_ENV") == "production" {
			log.Println("WARNING: RESEND_API_KEY is not set, email delivery is DISABLED in production")
		} else {
			log.Println("Email sender configured (noop, set RESEND_API_KEY for real delivery)")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, sender)
	go processor.RunLoop(ctx, cfg.OutboxInterval)

	mux := web.NewMux(stores, collector, web.Config{
		CSRFKey:         []byte(cfg.CSRFKey),
		AlertRecipients: cfg.AlertRecipients,
		LockStateTTL:    cfg.LockStateTTL,
	})

	addr := ":" + cfg.Port
	log.Printf("rollcall %s starting on %s (db=%s)", version, addr, cfg.DBPath)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// seedAdmin creates the first admin login when the account table is
// empty, so a fresh database is usable immediately.
func seedAdmin(store accountStore.Store) error {
	ctx := context.Background()
	username := envOrDefault("ROLLCALL_ADMIN_USER", "warden")
	if _, err := store.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, account.ErrNotFound) {
		return err
	}

	password := envOrDefault("ROLLCALL_ADMIN_PASSWORD", "change-me-now")
	_, err := orchestrators.ExecuteCreateAccount(ctx, orchestrators.CreateAccountInput{
		Username:    username,
		DisplayName: "Warden",
		Password:    password,
		Role:        account.RoleAdmin,
	}, orchestrators.CreateAccountDeps{AccountStore: store})
	if err != nil {
		return err
	}
	log.Printf("Seeded admin account %q (change the default password)", username)

	// Dev convenience: operator logins bound to each session
	if os.Getenv("ROLLCALL_ENV") != "production" {
		for _, sess := range attendance.Sessions {
			_, err := orchestrators.ExecuteCreateAccount(ctx, orchestrators.CreateAccountInput{
				Username:     "operator-" + string(sess),
				DisplayName:  "Operator (" + string(sess) + ")",
				Password:     password,
				Role:         account.RoleOperator,
				BoundSession: sess,
			}, orchestrators.CreateAccountDeps{AccountStore: store})
			if err != nil {
				return err
			}
		}
		log.Println("Seeded dev operator accounts")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
