package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/api"
	"github.com/npnl/enigma-request/internal/config"
	"github.com/npnl/enigma-request/internal/services"
)

// firstRun reports whether the database file does not exist yet.
func firstRun(sqlitePath string) (bool, error) {
	if sqlitePath == "" {
		return false, errors.New("sqlite path is required")
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("check sqlite file: %w", err)
	}
	return true, nil
}

// seedDirectory imports the configured collaborators and admins
// spreadsheets into a new database. Missing or unset files are skipped.
func seedDirectory(cfg config.DirectoryConfig, store api.Store, dir *services.DirectoryService, log *zap.Logger) error {
	log.Info("First run detected, importing directory spreadsheets.")

	if path := strings.TrimSpace(cfg.CollaboratorsCSV); path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("collaborators spreadsheet not found", zap.String("path", path))
		case err != nil:
			return fmt.Errorf("open collaborators csv: %w", err)
		default:
			defer f.Close()
			list, err := services.ParseCollaboratorsCSV(f)
			if err != nil {
				return err
			}
			n, err := dir.Import(list)
			if err != nil {
				return err
			}
			log.Info("collaborators imported", zap.Int("count", n), zap.String("path", path))
		}
	}

	admins := map[services.AdminScope]string{
		services.ScopeDirectory:   cfg.AdminsCSV,
		services.ScopeDataRequest: cfg.RequestAdminsCSV,
	}
	for scope, path := range admins {
		if err := seedAdmins(store, scope, strings.TrimSpace(path), log); err != nil {
			return err
		}
	}
	return nil
}

func seedAdmins(store api.Store, scope services.AdminScope, path string, log *zap.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("admins spreadsheet not found", zap.String("scope", string(scope)), zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open admins csv: %w", err)
	}
	defer f.Close()
	emails, err := services.ParseAdminsCSV(f)
	if err != nil {
		return err
	}
	for _, e := range emails {
		if err := store.AddAdmin(string(scope), e); err != nil {
			return err
		}
	}
	log.Info("admins imported", zap.String("scope", string(scope)), zap.Int("count", len(emails)))
	return nil
}
