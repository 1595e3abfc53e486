// ABOUTME: Encryption setup for coven-responder
// ABOUTME: Enables E2EE through mautrix cryptohelper, resetting the crypto DB after a device change

package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/id"
)

// CryptoManager handles Matrix E2EE setup and lifecycle.
type CryptoManager struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto initializes E2EE for a logged-in client, storing keys in dbPath.
// A failed recovery-key verification is logged; encryption still works
// without cross-signing.
func SetupCrypto(ctx context.Context, client *mautrix.Client, recoveryKey, dbPath string, logger *slog.Logger) (*CryptoManager, error) {
	logger = logger.With("component", "crypto")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating crypto directory: %w", err)
	}
	logger.Info("setting up encryption", "db", dbPath, "user", client.UserID.String())

	if err := resetOnDeviceChange(dbPath, client.DeviceID, logger); err != nil {
		return nil, err
	}

	helper, err := cryptohelper.NewCryptoHelper(client, deriveStoreKey(client.UserID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}

	// Outgoing replies are encrypted automatically once the helper is attached.
	client.Crypto = helper

	cm := &CryptoManager{helper: helper, logger: logger}
	if recoveryKey == "" {
		logger.Info("encryption initialized (no recovery key - cross-signing disabled)")
		return cm, nil
	}

	if err := cm.verifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		logger.Warn("failed to verify with recovery key", "error", err)
		logger.Info("encryption enabled without cross-signing verification")
	} else {
		logger.Info("encryption initialized with cross-signing verification")
	}
	return cm, nil
}

func (cm *CryptoManager) verifyWithRecoveryKey(ctx context.Context, recoveryKey string) error {
	machine := cm.helper.Machine()
	if machine == nil {
		return fmt.Errorf("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("recovery key verification failed: %w", err)
	}
	return nil
}

// Close cleans up crypto resources.
func (cm *CryptoManager) Close() error {
	if cm.helper != nil {
		return cm.helper.Close()
	}
	return nil
}

// deriveStoreKey creates a deterministic 32-byte store key for userID.
func deriveStoreKey(userID id.UserID) []byte {
	h := sha256.Sum256([]byte("coven-responder-crypto:" + userID.String()))
	return h[:]
}

// resetOnDeviceChange removes the crypto database when it belongs to a
// different device than the one this login created. Every password login
// gets a fresh device ID, and mautrix refuses to load a store for another.
func resetOnDeviceChange(dbPath string, deviceID id.DeviceID, logger *slog.Logger) error {
	stored, err := storedDeviceID(dbPath)
	if err != nil {
		logger.Debug("could not check stored device ID", "error", err)
		return nil
	}
	if stored == "" || stored == deviceID.String() {
		return nil
	}

	logger.Warn("device ID changed, resetting crypto database", "stored", stored, "current", deviceID.String())
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

// storedDeviceID returns the device ID recorded in the crypto database, or ""
// when there is no database or no account yet.
func storedDeviceID(dbPath string) (string, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var deviceID string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return deviceID, nil
}
