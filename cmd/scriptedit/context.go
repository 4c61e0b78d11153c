package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzdxppq/shop-video-scout/internal/config"
	"github.com/zzdxppq/shop-video-scout/internal/draft"
	"github.com/zzdxppq/shop-video-scout/internal/editor"
	"github.com/zzdxppq/shop-video-scout/internal/logging"
	"github.com/zzdxppq/shop-video-scout/internal/scriptapi"
)

// draftLockWait bounds how long a command waits for another process
// editing the same task.
const draftLockWait = 2 * time.Second

type globalFlags struct {
	apiURL   string
	token    string
	backend  string
	draftDir string
	logLevel string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the environment once and applies flag overrides.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg := config.Load()
		if v := strings.TrimSpace(c.flags.apiURL); v != "" {
			cfg.APIBaseURL = strings.TrimRight(v, "/")
		}
		if v := strings.TrimSpace(c.flags.token); v != "" {
			cfg.APIToken = v
		}
		if v := strings.TrimSpace(c.flags.backend); v != "" {
			cfg.DraftBackend = strings.ToLower(v)
		}
		if v := strings.TrimSpace(c.flags.draftDir); v != "" {
			cfg.DraftDir = v
		}
		if v := strings.TrimSpace(c.flags.logLevel); v != "" {
			cfg.LogLevel = v
		}

		logger, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: cmd.ErrOrStderr(),
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) client() *scriptapi.Client {
	return scriptapi.New(c.config.APIBaseURL,
		scriptapi.WithToken(c.config.APIToken),
		scriptapi.WithHTTPClient(&http.Client{Timeout: c.config.APITimeout}),
	)
}

// openKV returns the configured draft backend and a function releasing it.
func (c *commandContext) openKV() (draft.KV, func(), error) {
	switch c.config.DraftBackend {
	case config.DraftBackendFile, "":
		kv, err := draft.NewFileKV(c.config.DraftDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {}, nil
	case config.DraftBackendRedis:
		kv, err := draft.NewRedisKV(c.config.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil
	case config.DraftBackendMemory:
		return draft.NewMemoryKV(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown draft backend %q", c.config.DraftBackend)
}

// withEditor opens the script for taskID, runs fn and closes the editor,
// which flushes any pending draft write.
func (c *commandContext) withEditor(cmd *cobra.Command, taskID int64, fn func(*editor.Coordinator) error) error {
	kv, release, err := c.openKV()
	if err != nil {
		return err
	}
	defer release()

	if locker, ok := kv.(draft.Locker); ok {
		lockCtx, cancel := context.WithTimeout(cmd.Context(), draftLockWait)
		unlock, err := locker.Lock(lockCtx, draft.Key(taskID))
		cancel()
		if errors.Is(err, draft.ErrLocked) {
			return fmt.Errorf("draft for task %d is in use by another scriptedit process", taskID)
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	coord, err := editor.Open(cmd.Context(), taskID, editor.Options{
		API:        c.client(),
		KV:         kv,
		Schedule:   editor.RealScheduler,
		DraftDelay: c.config.DraftDebounce,
		Logger:     logging.NewComponentLogger(c.logger, "editor"),
	})
	if err != nil {
		return err
	}
	defer coord.Close()
	return fn(coord)
}

func parseTaskID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", value)
	}
	return id, nil
}

// readText returns value, or the contents of stdin when value is "-".
func readText(cmd *cobra.Command, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
