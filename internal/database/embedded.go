package database

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/config"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
	embeddedPassword = "postgres"
)

// ErrEmbeddedRunning means a postgres from an earlier run still owns the data dir
var ErrEmbeddedRunning = errors.New("embedded postgres already running")

func startEmbedded(cfg config.DatabaseConfig, log *logrus.Logger) (*embeddedpostgres.EmbeddedPostgres, error) {
	if err := clearStalePID(embeddedDataPath, log); err != nil {
		return nil, err
	}
	if portInUse(embeddedPort) {
		return nil, fmt.Errorf("embedded postgres port %d is already in use", embeddedPort)
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(embeddedDataPath).
		Port(uint32(embeddedPort)).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))

	started := time.Now()
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("start embedded postgres: %w", err)
	}
	log.WithFields(logrus.Fields{
		"port":      embeddedPort,
		"data_path": embeddedDataPath,
		"took":      time.Since(started).String(),
	}).Info("embedded postgres started")
	return pg, nil
}

// clearStalePID removes a postmaster.pid left behind by a crashed run.
// A pid that still belongs to a live process is reported, never killed.
func clearStalePID(dataPath string, log *logrus.Logger) error {
	pidFile := filepath.Join(dataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", pidFile, err)
	}

	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err == nil && pid > 0 && processAlive(pid) {
		return fmt.Errorf("%w: pid %d owns %s", ErrEmbeddedRunning, pid, dataPath)
	}

	log.WithFields(logrus.Fields{"pid_file": pidFile, "pid": first}).Warn("removing stale postmaster.pid")
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", pidFile, err)
	}
	return nil
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
