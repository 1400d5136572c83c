// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces bursts of file events from editors into one reload.
const reloadDebounce = 200 * time.Millisecond

// conditionEnv is the typed environment conditions are compiled against.
type conditionEnv struct {
	Event          string
	Timestamp      time.Time
	VerificationID string
	Data           map[string]any
}

func newConditionEnv(ctx *EventContext) conditionEnv {
	return conditionEnv{
		Event:          string(ctx.Event),
		Timestamp:      ctx.Timestamp,
		VerificationID: ctx.VerificationID,
		Data:           ctx.Data,
	}
}

func alwaysTrue(condition string) bool {
	c := strings.TrimSpace(condition)
	return c == "" || c == "true"
}

func compileCondition(condition string) (*vm.Program, error) {
	return expr.Compile(condition, expr.Env(conditionEnv{}), expr.AsBool())
}

// HookManager loads verdict hooks from a directory and runs them on bus events.
type HookManager struct {
	hooksDir string
	eventBus *EventBus

	mu       sync.RWMutex
	hooks    map[HookEvent][]*Hook
	programs map[string]*vm.Program
	actions  map[HookAction]ActionHandler

	inflight sync.WaitGroup

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
	stopOnce    sync.Once
}

// NewHookManager creates a hook manager reading rules from hooksDir.
// An empty hooksDir defaults to ~/.payverify/hooks.
func NewHookManager(hooksDir string, eventBus *EventBus) (*HookManager, error) {
	if eventBus == nil {
		return nil, fmt.Errorf("event bus cannot be nil")
	}
	if hooksDir == "" {
		base, err := os.UserHomeDir()
		if err != nil {
			base, _ = os.Getwd()
		}
		hooksDir = filepath.Join(base, ".payverify", "hooks")
	}

	m := &HookManager{
		hooksDir:    hooksDir,
		eventBus:    eventBus,
		hooks:       make(map[HookEvent][]*Hook),
		programs:    make(map[string]*vm.Program),
		actions:     make(map[HookAction]ActionHandler),
		stopWatcher: make(chan struct{}),
	}
	RegisterBuiltInActions(m)
	return m, nil
}

// LoadHooks reads every *.yaml / *.yml file directly under the hooks directory and
// replaces the active set. Unreadable, malformed or disabled hooks are skipped.
func (m *HookManager) LoadHooks() error {
	if err := os.MkdirAll(m.hooksDir, 0o755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}
	entries, err := os.ReadDir(m.hooksDir)
	if err != nil {
		return fmt.Errorf("failed to read hooks directory: %w", err)
	}

	loaded := make(map[HookEvent][]*Hook)
	programs := make(map[string]*vm.Program)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(m.hooksDir, entry.Name())
		hook, err := readHook(path)
		if err != nil {
			log.WithField("file", path).Warnf("skipping hook: %v", err)
			continue
		}
		if !hook.Enabled {
			continue
		}
		if !alwaysTrue(hook.Condition) {
			program, err := compileCondition(hook.Condition)
			if err != nil {
				log.WithField("file", path).Warnf("skipping hook with invalid condition: %v", err)
				continue
			}
			programs[hook.Condition] = program
		}
		loaded[hook.Event] = append(loaded[hook.Event], hook)
	}

	total := 0
	for event := range loaded {
		slices.SortFunc(loaded[event], func(a, b *Hook) int { return cmp.Compare(a.ID, b.ID) })
		total += len(loaded[event])
	}

	m.mu.Lock()
	m.hooks = loaded
	m.programs = programs
	m.mu.Unlock()

	log.WithField("dir", m.hooksDir).Infof("loaded %d verdict hooks", total)
	return nil
}

func readHook(path string) (*Hook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hook Hook
	if err := yaml.Unmarshal(data, &hook); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if !slices.Contains(AllEvents, hook.Event) {
		return nil, fmt.Errorf("unknown event %q", hook.Event)
	}
	if hook.Action == "" {
		return nil, fmt.Errorf("hook %q has no action", hook.ID)
	}
	hook.FilePath = path
	return &hook, nil
}

// SubscribeToAllEvents subscribes the manager to every verdict event.
func (m *HookManager) SubscribeToAllEvents() {
	for _, event := range AllEvents {
		m.eventBus.Subscribe(event, m.handleEvent)
	}
}

func (m *HookManager) handleEvent(ctx *EventContext) {
	m.mu.RLock()
	hooks := m.hooks[ctx.Event]
	m.mu.RUnlock()

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, ctx)
		if err != nil {
			log.WithField("hook", hook.ID).Warnf("condition %q failed: %v", hook.Condition, err)
			continue
		}
		if !matches {
			continue
		}
		log.WithFields(log.Fields{
			"hook":            hook.ID,
			"action":          hook.Action,
			"verification_id": ctx.VerificationID,
		}).Info("verdict hook triggered")
		m.inflight.Add(1)
		go func(hook *Hook) {
			defer m.inflight.Done()
			m.executeAction(hook, ctx)
		}(hook)
	}
}

func (m *HookManager) evaluateCondition(condition string, ctx *EventContext) (bool, error) {
	if alwaysTrue(condition) {
		return true, nil
	}

	m.mu.RLock()
	program, ok := m.programs[condition]
	m.mu.RUnlock()
	if !ok {
		var err error
		if program, err = compileCondition(condition); err != nil {
			return false, err
		}
		m.mu.Lock()
		m.programs[condition] = program
		m.mu.Unlock()
	}

	out, err := expr.Run(program, newConditionEnv(ctx))
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, not bool", out)
	}
	return result, nil
}

func (m *HookManager) executeAction(hook *Hook, ctx *EventContext) {
	m.mu.RLock()
	handler, ok := m.actions[hook.Action]
	m.mu.RUnlock()

	if !ok {
		log.WithField("hook", hook.ID).Warnf("no handler registered for action %s", hook.Action)
		return
	}
	if err := handler(hook, ctx); err != nil {
		log.WithFields(log.Fields{
			"hook":            hook.ID,
			"verification_id": ctx.VerificationID,
		}).Errorf("action %s failed: %v", hook.Action, err)
	}
}

// RegisterAction registers a handler for a specific action type.
func (m *HookManager) RegisterAction(action HookAction, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[action] = handler
}

// StartWatcher reloads hooks when files in the hooks directory change.
func (m *HookManager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.hooksDir); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		var reload <-chan time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Debugf("hooks directory changed: %s", event.Name)
					reload = time.After(reloadDebounce)
				}
			case <-reload:
				reload = nil
				if err := m.LoadHooks(); err != nil {
					log.Errorf("failed to reload hooks: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("hooks watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()
	return nil
}

// StopWatcher stops the file watcher. It is safe to call when no watcher runs.
func (m *HookManager) StopWatcher() {
	if m.watcher == nil {
		return
	}
	m.stopOnce.Do(func() {
		close(m.stopWatcher)
		_ = m.watcher.Close()
	})
}

// Wait blocks until every triggered action has returned. Call it after the
// event bus is shut down so no new actions can start.
func (m *HookManager) Wait() {
	m.inflight.Wait()
}

// GetHooksDir returns the hooks directory path.
func (m *HookManager) GetHooksDir() string {
	return m.hooksDir
}

// GetHooks returns all loaded hooks ordered by event then ID.
func (m *HookManager) GetHooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Hook
	for _, event := range AllEvents {
		out = append(out, m.hooks[event]...)
	}
	return out
}
