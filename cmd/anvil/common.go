package main

import (
	"os"
	"path/filepath"

	"github.com/metalagman/anvil/internal/config"
	"github.com/metalagman/anvil/internal/db"
)

func stateDir(repoRoot string) string {
	return filepath.Join(repoRoot, config.DefaultDir)
}

func runsDir(repoRoot string) string {
	return filepath.Join(stateDir(repoRoot), "runs")
}

func openDB() (*db.Store, string, func(), error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, "", func() {}, err
	}
	store, closeFn, err := openStore(repoRoot)
	if err != nil {
		return nil, "", func() {}, err
	}
	return store, repoRoot, closeFn, nil
}

func openStore(repoRoot string) (*db.Store, func(), error) {
	if err := os.MkdirAll(stateDir(repoRoot), 0o755); err != nil {
		return nil, func() {}, err
	}
	conn, err := db.Open(filepath.Join(stateDir(repoRoot), db.FileName))
	if err != nil {
		return nil, func() {}, err
	}
	return db.NewStore(conn), func() { _ = conn.Close() }, nil
}
