package main

import (
	"fmt"
	"os"

	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/identityd/config"
	"github.com/oarkflow/identityd/facade"
	"github.com/oarkflow/identityd/httpapi"
	"github.com/oarkflow/identityd/logger"
	"github.com/oarkflow/identityd/pdp"
	"github.com/oarkflow/identityd/scim"
	"github.com/oarkflow/identityd/store"
	"github.com/oarkflow/identityd/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "identityd: startup misconfiguration:", err)
		os.Exit(1)
	}

	log := logger.NewPhusluLogger()

	loader := pdp.NewLoader(cfg.PoliciesPath, log)
	if err := loader.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "identityd: failed to load policies:", err)
		os.Exit(1)
	}
	engine := pdp.NewEngine(loader, log)

	users, groups, db, closeDB, err := openStores(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "identityd: failed to open record store:", err)
		os.Exit(1)
	}
	if closeDB != nil {
		defer closeDB()
	}

	scimSvc := scim.NewService(users, groups, log)
	authenticator := scim.NewUserAuthenticator(users, groups)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		groupCache := scim.NewGroupNameCache(redisClient)
		authenticator = authenticator.WithGroupNameCache(groupCache)
		scimSvc = scimSvc.WithGroupNameCache(groupCache)
	}
	clients := scim.NewStaticClientStore()

	var tokens *token.Service
	switch cfg.JWTAlg {
	case "HS256":
		tokens = token.NewHS256Service(cfg.JWTSecret, cfg.TTL(), authenticator, clients)
	case "RS256":
		tokens = token.NewRS256Service(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.TTL(), authenticator, clients)
	}

	var baseAudit facade.AuditSink = facade.NewLogAuditSink(log)
	if db != nil {
		sqlAudit, err := facade.NewSQLAuditSink(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "identityd: failed to prepare audit log table:", err)
			os.Exit(1)
		}
		baseAudit = sqlAudit
	}
	audit := facade.NewAsyncAuditSink(baseAudit, 256, log)
	authzSvc := facade.NewService(engine, audit, log)

	app := httpapi.New(tokens, scimSvc, authzSvc, loader)

	log.Info("identityd listening", "port", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		fmt.Fprintln(os.Stderr, "identityd: server error:", err)
		os.Exit(1)
	}
}

// openStores opens the Record Store's User/Group collections. DB_PATH
// set selects the SQLite-backed implementation (and returns the
// underlying *squealx.DB so the caller can durably persist audit
// records alongside it); unset keeps the in-process memory
// collections, suitable for development and tests.
func openStores(cfg *config.Config, log logger.Logger) (scim.Users, scim.Groups, *squealx.DB, func(), error) {
	if cfg.DBPath == "" {
		return store.NewUserStore(), store.NewGroupStore(), nil, nil, nil
	}
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Error("closing record store", "error", err.Error())
		}
	}
	return store.NewSQLUserStore(db), store.NewSQLGroupStore(db), db, closeFn, nil
}
